// Package stubserver is an in-process stand-in for the remote actuarial
// computation service, used for local development and tests.
//
// The math here is a deliberately small deterministic model, NOT the real
// actuarial engine (which is a remote collaborator outside this
// repository). It is just rich enough to make the orchestrator's behavior
// observable: contribution changes move the deficit, suggestion application
// closes it, identical snapshots produce identical results.
package stubserver

import (
	"math"
	"time"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

// annuityMonths approximates the expected benefit-payment horizon per
// mortality table, in months. Unknown codes use a neutral default.
var annuityMonths = map[string]float64{
	"AT-2000":     180,
	"AT-83":       165,
	"BR-EMS-2021": 210,
	"BR-EMS-2015": 204,
}

const defaultAnnuityMonths = 200

// lookupTables is the fixed table catalog the stub publishes.
var lookupTables = []datatypes.LookupTable{
	{Code: "AT-2000", DisplayName: "AT-2000 Basic", Approved: true},
	{Code: "AT-83", DisplayName: "AT-83 IAM", Approved: false},
	{Code: "BR-EMS-2021", DisplayName: "BR-EMS 2021 (both lives)", Approved: true},
	{Code: "BR-EMS-2015", DisplayName: "BR-EMS 2015 (both lives)", Approved: true},
}

// defaultSnapshot is the parameter set the stub hands out on GET defaults.
func defaultSnapshot() datatypes.ParameterSnapshot {
	return datatypes.ParameterSnapshot{
		CurrentAge:            30,
		RetirementAge:         65,
		Gender:                "F",
		Dependents:            0,
		MonthlySalary:         8000,
		InitialBalance:        25000,
		ContributionRate:      12,
		EmployerMatchRate:     6,
		SalaryGrowthRate:      2,
		BenefitTargetMode:     datatypes.BenefitTargetReplacementRate,
		TargetReplacementRate: datatypes.Float64Ptr(70),
		MortalityTable:        "BR-EMS-2021",
		DiscountRate:          5,
		FundingMethod:         "PUC",
		AdminFeeRate:          1,
		LoadingFeeRate:        2,
		ProjectionGranularity: datatypes.GranularityAnnual,
		ResultPrecision:       2,
		ShowNominalValues:     false,
	}
}

// calculate runs the toy projection for a snapshot.
func calculate(s datatypes.ParameterSnapshot) datatypes.ResultSnapshot {
	months := (s.RetirementAge - s.CurrentAge) * 12
	if months < 0 {
		months = 0
	}

	benefit, reserve, finalSalary, projection := project(s, s.ContributionRate, months)
	target := targetBenefit(s, finalSalary, benefit)

	achieved := 0.0
	if finalSalary > 0 {
		achieved = benefit / finalSalary * 100
	}

	return datatypes.ResultSnapshot{
		Fingerprint:             s.Fingerprint(),
		MonthlyBenefit:          round2(benefit),
		AchievedReplacementRate: round2(achieved),
		TotalReserve:            round2(reserve),
		DeficitSurplus:          round2(benefit - target),
		Projection:              projection,
		ComputedAt:              time.Now().UTC(),
	}
}

// project accumulates the balance to retirement with the given contribution
// rate and annuitizes it. Returns the monthly benefit, the reserve at
// retirement, the projected final salary and the annual trajectory.
func project(s datatypes.ParameterSnapshot, contributionRate float64, months int) (benefit, reserve, finalSalary float64, projection []datatypes.ProjectionPoint) {
	monthlyReturn := (s.DiscountRate - s.AdminFeeRate) / 100 / 12
	monthlyGrowth := s.SalaryGrowthRate / 100 / 12
	contribFactor := (contributionRate + s.EmployerMatchRate) / 100 * (1 - s.LoadingFeeRate/100)

	balance := s.InitialBalance
	salary := s.MonthlySalary
	horizon := annuityHorizon(s.MortalityTable)

	for m := 1; m <= months; m++ {
		balance = balance*(1+monthlyReturn) + salary*contribFactor
		salary *= 1 + monthlyGrowth
		if m%12 == 0 {
			projection = append(projection, datatypes.ProjectionPoint{
				Age:     s.CurrentAge + m/12,
				Balance: round2(balance),
				Benefit: round2(balance / horizon),
			})
		}
	}
	return balance / horizon, balance, salary, projection
}

// targetBenefit resolves the benefit goal in R$/month. With no goal set the
// achieved benefit is its own target (zero deficit).
func targetBenefit(s datatypes.ParameterSnapshot, finalSalary, achieved float64) float64 {
	switch s.BenefitTargetMode {
	case datatypes.BenefitTargetReplacementRate:
		if s.TargetReplacementRate != nil {
			return finalSalary * *s.TargetReplacementRate / 100
		}
	case datatypes.BenefitTargetFixedValue:
		if s.TargetBenefitValue != nil {
			return *s.TargetBenefitValue
		}
	}
	return achieved
}

// requiredContributionRate solves for the contribution rate that zeroes the
// deficit. The benefit is linear in the contribution rate, so two probe
// projections determine the line exactly.
func requiredContributionRate(s datatypes.ParameterSnapshot) (float64, bool) {
	months := (s.RetirementAge - s.CurrentAge) * 12
	if months <= 0 {
		return 0, false
	}
	b0, _, finalSalary, _ := project(s, 0, months)
	b1, _, _, _ := project(s, 10, months)
	slope := (b1 - b0) / 10
	if slope <= 0 {
		return 0, false
	}
	current, _, _, _ := project(s, s.ContributionRate, months)
	target := targetBenefit(s, finalSalary, current)
	required := (target - b0) / slope
	if required < 0 || required > 100 {
		return 0, false
	}
	return round2(required), true
}

func annuityHorizon(table string) float64 {
	if h, ok := annuityMonths[table]; ok {
		return h
	}
	return defaultAnnuityMonths
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
