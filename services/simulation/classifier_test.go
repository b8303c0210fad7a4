package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

func testSnapshot() datatypes.ParameterSnapshot {
	return datatypes.ParameterSnapshot{
		CurrentAge:            30,
		RetirementAge:         65,
		Gender:                "F",
		MonthlySalary:         8000,
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
	}
}

func TestClassify(t *testing.T) {
	base := testSnapshot()

	tests := []struct {
		name  string
		patch datatypes.ParameterPatch
		want  ChangeTier
	}{
		{
			name:  "salary change is immediate",
			patch: datatypes.ParameterPatch{MonthlySalary: datatypes.Float64Ptr(9000)},
			want:  TierImmediate,
		},
		{
			name:  "contribution rate is immediate",
			patch: datatypes.ParameterPatch{ContributionRate: datatypes.Float64Ptr(14.5)},
			want:  TierImmediate,
		},
		{
			name:  "admin fee alone is administrative",
			patch: datatypes.ParameterPatch{AdminFeeRate: datatypes.Float64Ptr(1.5)},
			want:  TierAdministrative,
		},
		{
			name: "both fee fields together stay administrative",
			patch: datatypes.ParameterPatch{
				AdminFeeRate:   datatypes.Float64Ptr(1.5),
				LoadingFeeRate: datatypes.Float64Ptr(2.5),
			},
			want: TierAdministrative,
		},
		{
			name:  "precision alone is technical",
			patch: datatypes.ParameterPatch{ResultPrecision: datatypes.IntPtr(4)},
			want:  TierTechnical,
		},
		{
			name: "granularity plus nominal toggle stays technical",
			patch: datatypes.ParameterPatch{
				ProjectionGranularity: datatypes.StringPtr(datatypes.GranularityMonthly),
				ShowNominalValues:     datatypes.BoolPtr(true),
			},
			want: TierTechnical,
		},
		{
			name: "technical mixed with financial escalates to immediate",
			patch: datatypes.ParameterPatch{
				ResultPrecision:  datatypes.IntPtr(4),
				ContributionRate: datatypes.Float64Ptr(14.5),
			},
			want: TierImmediate,
		},
		{
			name: "administrative mixed with technical escalates to immediate",
			patch: datatypes.ParameterPatch{
				AdminFeeRate:    datatypes.Float64Ptr(1.5),
				ResultPrecision: datatypes.IntPtr(4),
			},
			want: TierImmediate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base.Apply(tt.patch)
			assert.Equal(t, tt.want, Classify(base, next))
		})
	}
}

func TestClassify_EmptyDiffIsImmediate(t *testing.T) {
	base := testSnapshot()
	// An empty change set should never reach the classifier; if it does, fail
	// toward the shortest delay.
	assert.Equal(t, TierImmediate, Classify(base, base))
}

func TestClassify_Deterministic(t *testing.T) {
	base := testSnapshot()
	next := base.Apply(datatypes.ParameterPatch{
		AdminFeeRate:    datatypes.Float64Ptr(1.5),
		ResultPrecision: datatypes.IntPtr(4),
		MonthlySalary:   datatypes.Float64Ptr(9000),
	})
	first := Classify(base, next)
	for i := 0; i < 50; i++ {
		if got := Classify(base, next); got != first {
			t.Fatalf("classification flapped on run %d: %v then %v", i, first, got)
		}
	}
}
