// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the simulation orchestrator.
//
// This file contains the parameter snapshot, the partial-update patch applied
// to it, and the fingerprint used for duplicate-dispatch suppression.
// For computed results see result.go, for suggestions see suggestion.go.
package datatypes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// ENUMS
// =============================================================================

// BenefitTargetMode selects how the retirement benefit goal is expressed.
//
// The two representations are mutually exclusive: when the mode is
// REPLACEMENT_RATE only TargetReplacementRate is meaningful, and when it is
// FIXED_VALUE only TargetBenefitValue is. Normalize clears the inactive one
// so the compute service never receives an ambiguous pair.
type BenefitTargetMode string

const (
	// BenefitTargetReplacementRate expresses the goal as a percentage of the
	// final salary (e.g. 70 means "70% of salary at retirement").
	BenefitTargetReplacementRate BenefitTargetMode = "REPLACEMENT_RATE"

	// BenefitTargetFixedValue expresses the goal as an absolute monthly
	// benefit in R$.
	BenefitTargetFixedValue BenefitTargetMode = "FIXED_VALUE"
)

// Granularity values for projection output.
const (
	GranularityMonthly = "monthly"
	GranularityAnnual  = "annual"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// snapshotValidate is the validator instance for snapshot datatypes.
var snapshotValidate = validator.New()

// =============================================================================
// ParameterSnapshot
// =============================================================================

// ParameterSnapshot is an immutable record of all simulation inputs.
//
// # Description
//
// A snapshot is never mutated in place. Every edit goes through Apply, which
// copies the snapshot, applies a ParameterPatch and returns the new value.
// LastUpdate is a monotonically increasing timestamp (unix milliseconds)
// maintained by the state store, not by callers.
//
// Rates are expressed in percent (ContributionRate 14.5 means 14.5%),
// monetary values in R$.
type ParameterSnapshot struct {
	// Demographic
	CurrentAge    int    `json:"current_age" yaml:"current_age" validate:"gte=16,lte=100"`
	RetirementAge int    `json:"retirement_age" yaml:"retirement_age" validate:"gte=45,lte=100,gtefield=CurrentAge"`
	Gender        string `json:"gender" yaml:"gender" validate:"oneof=M F"`
	Dependents    int    `json:"dependents" yaml:"dependents" validate:"gte=0,lte=20"`

	// Financial
	MonthlySalary     float64 `json:"monthly_salary" yaml:"monthly_salary" validate:"gt=0"`
	InitialBalance    float64 `json:"initial_balance" yaml:"initial_balance" validate:"gte=0"`
	ContributionRate  float64 `json:"contribution_rate" yaml:"contribution_rate" validate:"gte=0,lte=100"`
	EmployerMatchRate float64 `json:"employer_match_rate" yaml:"employer_match_rate" validate:"gte=0,lte=100"`
	SalaryGrowthRate  float64 `json:"salary_growth_rate" yaml:"salary_growth_rate" validate:"gte=0,lte=30"`

	// Benefit target. The two value fields are mutually exclusive; see
	// BenefitTargetMode and Normalize.
	BenefitTargetMode     BenefitTargetMode `json:"benefit_target_mode" yaml:"benefit_target_mode" validate:"oneof=REPLACEMENT_RATE FIXED_VALUE"`
	TargetReplacementRate *float64          `json:"target_replacement_rate,omitempty" yaml:"target_replacement_rate,omitempty" validate:"omitempty,gt=0,lte=100"`
	TargetBenefitValue    *float64          `json:"target_benefit_value,omitempty" yaml:"target_benefit_value,omitempty" validate:"omitempty,gt=0"`

	// Actuarial method
	MortalityTable string  `json:"mortality_table" yaml:"mortality_table" validate:"required"`
	DiscountRate   float64 `json:"discount_rate" yaml:"discount_rate" validate:"gte=0,lte=30"`
	FundingMethod  string  `json:"funding_method" yaml:"funding_method" validate:"oneof=PUC EAN AGG"`

	// Administrative fees
	AdminFeeRate   float64 `json:"admin_fee_rate" yaml:"admin_fee_rate" validate:"gte=0,lte=20"`
	LoadingFeeRate float64 `json:"loading_fee_rate" yaml:"loading_fee_rate" validate:"gte=0,lte=20"`

	// Technical/presentation knobs. These do not change monetary outcomes.
	ProjectionGranularity string `json:"projection_granularity" yaml:"projection_granularity" validate:"oneof=monthly annual"`
	ResultPrecision       int    `json:"result_precision" yaml:"result_precision" validate:"gte=0,lte=6"`
	ShowNominalValues     bool   `json:"show_nominal_values" yaml:"show_nominal_values"`

	// LastUpdate is set by the state store on every merge (unix millis).
	LastUpdate int64 `json:"last_update" yaml:"last_update"`
}

// Validate checks the snapshot against its field constraints.
//
// Returns a validator.ValidationErrors chain describing every violated
// constraint, or nil if the snapshot is valid.
func (s ParameterSnapshot) Validate() error {
	return snapshotValidate.Struct(s)
}

// Normalize returns a copy with the inactive benefit-target field cleared.
//
// This is the single canonical place that resolves the mutually exclusive
// pair: REPLACEMENT_RATE clears TargetBenefitValue, FIXED_VALUE clears
// TargetReplacementRate. Both the dispatcher (before every remote call) and
// the suggestion validator (after every optimistic merge) go through here.
func Normalize(s ParameterSnapshot) ParameterSnapshot {
	switch s.BenefitTargetMode {
	case BenefitTargetReplacementRate:
		s.TargetBenefitValue = nil
	case BenefitTargetFixedValue:
		s.TargetReplacementRate = nil
	}
	return s
}

// Fingerprint returns a cheap equality key for the snapshot.
//
// The fingerprint is the SHA-256 of the normalized snapshot's JSON form with
// LastUpdate zeroed, so two edits that round-trip to the same effective
// values produce the same fingerprint even though their timestamps differ.
func (s ParameterSnapshot) Fingerprint() string {
	n := Normalize(s)
	n.LastUpdate = 0
	// Marshal of a plain struct cannot fail.
	b, _ := json.Marshal(n)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// ParameterPatch
// =============================================================================

// ParameterPatch is a partial update: nil fields are left untouched.
//
// Pointer-to-pointer fields (target rate/value) distinguish "leave as is"
// (nil) from "clear" (pointer to nil).
type ParameterPatch struct {
	CurrentAge    *int    `json:"current_age,omitempty" yaml:"current_age"`
	RetirementAge *int    `json:"retirement_age,omitempty" yaml:"retirement_age"`
	Gender        *string `json:"gender,omitempty" yaml:"gender"`
	Dependents    *int    `json:"dependents,omitempty" yaml:"dependents"`

	MonthlySalary     *float64 `json:"monthly_salary,omitempty" yaml:"monthly_salary"`
	InitialBalance    *float64 `json:"initial_balance,omitempty" yaml:"initial_balance"`
	ContributionRate  *float64 `json:"contribution_rate,omitempty" yaml:"contribution_rate"`
	EmployerMatchRate *float64 `json:"employer_match_rate,omitempty" yaml:"employer_match_rate"`
	SalaryGrowthRate  *float64 `json:"salary_growth_rate,omitempty" yaml:"salary_growth_rate"`

	BenefitTargetMode     *BenefitTargetMode `json:"benefit_target_mode,omitempty" yaml:"benefit_target_mode"`
	TargetReplacementRate **float64          `json:"-" yaml:"-"`
	TargetBenefitValue    **float64          `json:"-" yaml:"-"`

	MortalityTable *string  `json:"mortality_table,omitempty" yaml:"mortality_table"`
	DiscountRate   *float64 `json:"discount_rate,omitempty" yaml:"discount_rate"`
	FundingMethod  *string  `json:"funding_method,omitempty" yaml:"funding_method"`

	AdminFeeRate   *float64 `json:"admin_fee_rate,omitempty" yaml:"admin_fee_rate"`
	LoadingFeeRate *float64 `json:"loading_fee_rate,omitempty" yaml:"loading_fee_rate"`

	ProjectionGranularity *string `json:"projection_granularity,omitempty" yaml:"projection_granularity"`
	ResultPrecision       *int    `json:"result_precision,omitempty" yaml:"result_precision"`
	ShowNominalValues     *bool   `json:"show_nominal_values,omitempty" yaml:"show_nominal_values"`
}

// IsZero reports whether the patch changes nothing.
func (p ParameterPatch) IsZero() bool {
	return p == (ParameterPatch{})
}

// Apply merges the patch into the snapshot and returns the result.
//
// The receiver is taken by value, so the caller's snapshot is untouched;
// the returned snapshot is a fresh copy with non-nil patch fields applied.
// LastUpdate is NOT set here; that is the state store's job.
func (s ParameterSnapshot) Apply(p ParameterPatch) ParameterSnapshot {
	if p.CurrentAge != nil {
		s.CurrentAge = *p.CurrentAge
	}
	if p.RetirementAge != nil {
		s.RetirementAge = *p.RetirementAge
	}
	if p.Gender != nil {
		s.Gender = *p.Gender
	}
	if p.Dependents != nil {
		s.Dependents = *p.Dependents
	}
	if p.MonthlySalary != nil {
		s.MonthlySalary = *p.MonthlySalary
	}
	if p.InitialBalance != nil {
		s.InitialBalance = *p.InitialBalance
	}
	if p.ContributionRate != nil {
		s.ContributionRate = *p.ContributionRate
	}
	if p.EmployerMatchRate != nil {
		s.EmployerMatchRate = *p.EmployerMatchRate
	}
	if p.SalaryGrowthRate != nil {
		s.SalaryGrowthRate = *p.SalaryGrowthRate
	}
	if p.BenefitTargetMode != nil {
		s.BenefitTargetMode = *p.BenefitTargetMode
	}
	if p.TargetReplacementRate != nil {
		s.TargetReplacementRate = *p.TargetReplacementRate
	}
	if p.TargetBenefitValue != nil {
		s.TargetBenefitValue = *p.TargetBenefitValue
	}
	if p.MortalityTable != nil {
		s.MortalityTable = *p.MortalityTable
	}
	if p.DiscountRate != nil {
		s.DiscountRate = *p.DiscountRate
	}
	if p.FundingMethod != nil {
		s.FundingMethod = *p.FundingMethod
	}
	if p.AdminFeeRate != nil {
		s.AdminFeeRate = *p.AdminFeeRate
	}
	if p.LoadingFeeRate != nil {
		s.LoadingFeeRate = *p.LoadingFeeRate
	}
	if p.ProjectionGranularity != nil {
		s.ProjectionGranularity = *p.ProjectionGranularity
	}
	if p.ResultPrecision != nil {
		s.ResultPrecision = *p.ResultPrecision
	}
	if p.ShowNominalValues != nil {
		s.ShowNominalValues = *p.ShowNominalValues
	}
	return s
}

// =============================================================================
// Field Diff
// =============================================================================

// Field names as transmitted on the wire. The classifier keys its tier
// lists off these, so they must match the JSON tags above.
const (
	FieldCurrentAge            = "current_age"
	FieldRetirementAge         = "retirement_age"
	FieldGender                = "gender"
	FieldDependents            = "dependents"
	FieldMonthlySalary         = "monthly_salary"
	FieldInitialBalance        = "initial_balance"
	FieldContributionRate      = "contribution_rate"
	FieldEmployerMatchRate     = "employer_match_rate"
	FieldSalaryGrowthRate      = "salary_growth_rate"
	FieldBenefitTargetMode     = "benefit_target_mode"
	FieldTargetReplacementRate = "target_replacement_rate"
	FieldTargetBenefitValue    = "target_benefit_value"
	FieldMortalityTable        = "mortality_table"
	FieldDiscountRate          = "discount_rate"
	FieldFundingMethod         = "funding_method"
	FieldAdminFeeRate          = "admin_fee_rate"
	FieldLoadingFeeRate        = "loading_fee_rate"
	FieldProjectionGranularity = "projection_granularity"
	FieldResultPrecision       = "result_precision"
	FieldShowNominalValues     = "show_nominal_values"
)

// Diff returns the names of fields whose values differ between prev and next.
//
// The result is in fixed declaration order (never map-iteration order), so
// classification downstream is deterministic. LastUpdate is ignored: a merge
// that changes nothing but the timestamp is not a change.
func Diff(prev, next ParameterSnapshot) []string {
	var changed []string
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add(FieldCurrentAge, prev.CurrentAge != next.CurrentAge)
	add(FieldRetirementAge, prev.RetirementAge != next.RetirementAge)
	add(FieldGender, prev.Gender != next.Gender)
	add(FieldDependents, prev.Dependents != next.Dependents)
	add(FieldMonthlySalary, prev.MonthlySalary != next.MonthlySalary)
	add(FieldInitialBalance, prev.InitialBalance != next.InitialBalance)
	add(FieldContributionRate, prev.ContributionRate != next.ContributionRate)
	add(FieldEmployerMatchRate, prev.EmployerMatchRate != next.EmployerMatchRate)
	add(FieldSalaryGrowthRate, prev.SalaryGrowthRate != next.SalaryGrowthRate)
	add(FieldBenefitTargetMode, prev.BenefitTargetMode != next.BenefitTargetMode)
	add(FieldTargetReplacementRate, !floatPtrEqual(prev.TargetReplacementRate, next.TargetReplacementRate))
	add(FieldTargetBenefitValue, !floatPtrEqual(prev.TargetBenefitValue, next.TargetBenefitValue))
	add(FieldMortalityTable, prev.MortalityTable != next.MortalityTable)
	add(FieldDiscountRate, prev.DiscountRate != next.DiscountRate)
	add(FieldFundingMethod, prev.FundingMethod != next.FundingMethod)
	add(FieldAdminFeeRate, prev.AdminFeeRate != next.AdminFeeRate)
	add(FieldLoadingFeeRate, prev.LoadingFeeRate != next.LoadingFeeRate)
	add(FieldProjectionGranularity, prev.ProjectionGranularity != next.ProjectionGranularity)
	add(FieldResultPrecision, prev.ResultPrecision != next.ResultPrecision)
	add(FieldShowNominalValues, prev.ShowNominalValues != next.ShowNominalValues)
	return changed
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Float64Ptr returns a pointer to v. Convenience for building patches.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// ModePtr returns a pointer to m.
func ModePtr(m BenefitTargetMode) *BenefitTargetMode { return &m }
