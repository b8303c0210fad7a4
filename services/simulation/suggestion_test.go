package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/previsim/previsim/services/compute"
	"github.com/previsim/previsim/services/simulation/datatypes"
)

// fakeSuggestionService answers Calculate with a scripted deficit/surplus and
// records ApplySuggestion bookkeeping calls.
type fakeSuggestionService struct {
	mu       sync.Mutex
	deficit  float64
	calcErr  error
	applyErr error

	applied []compute.ApplySuggestionRequest
	calcs   []datatypes.ParameterSnapshot
}

func (f *fakeSuggestionService) Calculate(_ context.Context, snapshot datatypes.ParameterSnapshot) (*datatypes.ResultSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calcs = append(f.calcs, snapshot)
	if f.calcErr != nil {
		return nil, f.calcErr
	}
	return &datatypes.ResultSnapshot{
		Fingerprint:    snapshot.Fingerprint(),
		DeficitSurplus: f.deficit,
	}, nil
}

func (f *fakeSuggestionService) ApplySuggestion(_ context.Context, req compute.ApplySuggestionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, req)
	return f.applyErr
}

func (f *fakeSuggestionService) setDeficit(v float64) {
	f.mu.Lock()
	f.deficit = v
	f.mu.Unlock()
}

func newTestValidator(t *testing.T, svc SuggestionService) (*Store, *Validator) {
	t.Helper()
	store := NewStore(testSnapshot())
	// Short settling delay keeps the tests fast without changing semantics.
	valid := NewValidator(store, svc, 20*time.Millisecond, DefaultConvergenceTolerance, nil)
	return store, valid
}

func waitForOutcome(t *testing.T, v *Validator, id string) *datatypes.SuggestionOutcome {
	t.Helper()
	require.Eventually(t, func() bool {
		out := v.Outcome(id)
		return out != nil && out.State != datatypes.OutcomePending
	}, time.Second, 5*time.Millisecond)
	return v.Outcome(id)
}

func TestBuildPatch(t *testing.T) {
	tests := []struct {
		name    string
		sug     datatypes.Suggestion
		wantErr bool
		check   func(t *testing.T, patch datatypes.ParameterPatch)
	}{
		{
			name: "update contribution rate",
			sug: datatypes.Suggestion{
				ID:          "s1",
				Action:      datatypes.ActionUpdateContributionRate,
				ActionValue: datatypes.Float64Ptr(14.5),
			},
			check: func(t *testing.T, patch datatypes.ParameterPatch) {
				require.NotNil(t, patch.ContributionRate)
				assert.Equal(t, 14.5, *patch.ContributionRate)
			},
		},
		{
			name: "update retirement age truncates to whole years",
			sug: datatypes.Suggestion{
				ID:          "s2",
				Action:      datatypes.ActionUpdateRetirementAge,
				ActionValue: datatypes.Float64Ptr(67.8),
			},
			check: func(t *testing.T, patch datatypes.ParameterPatch) {
				require.NotNil(t, patch.RetirementAge)
				assert.Equal(t, 67, *patch.RetirementAge)
			},
		},
		{
			name: "set target replacement rate flips mode and clears value",
			sug: datatypes.Suggestion{
				ID:          "s3",
				Action:      datatypes.ActionSetTargetReplacementRate,
				ActionValue: datatypes.Float64Ptr(75),
			},
			check: func(t *testing.T, patch datatypes.ParameterPatch) {
				require.NotNil(t, patch.BenefitTargetMode)
				assert.Equal(t, datatypes.BenefitTargetReplacementRate, *patch.BenefitTargetMode)
				require.NotNil(t, patch.TargetReplacementRate)
				assert.Equal(t, 75.0, **patch.TargetReplacementRate)
				require.NotNil(t, patch.TargetBenefitValue)
				assert.Nil(t, *patch.TargetBenefitValue, "alternate representation must be cleared")
			},
		},
		{
			name: "set target benefit value flips mode and clears rate",
			sug: datatypes.Suggestion{
				ID:          "s4",
				Action:      datatypes.ActionSetTargetBenefitValue,
				ActionValue: datatypes.Float64Ptr(5000),
			},
			check: func(t *testing.T, patch datatypes.ParameterPatch) {
				require.NotNil(t, patch.BenefitTargetMode)
				assert.Equal(t, datatypes.BenefitTargetFixedValue, *patch.BenefitTargetMode)
				require.NotNil(t, patch.TargetBenefitValue)
				assert.Equal(t, 5000.0, **patch.TargetBenefitValue)
				require.NotNil(t, patch.TargetReplacementRate)
				assert.Nil(t, *patch.TargetReplacementRate)
			},
		},
		{
			name: "adjust parameters over the allowed set",
			sug: datatypes.Suggestion{
				ID:     "s5",
				Action: datatypes.ActionAdjustParameters,
				ActionValues: map[string]float64{
					datatypes.FieldContributionRate: 13,
					datatypes.FieldRetirementAge:    66,
				},
			},
			check: func(t *testing.T, patch datatypes.ParameterPatch) {
				require.NotNil(t, patch.ContributionRate)
				assert.Equal(t, 13.0, *patch.ContributionRate)
				require.NotNil(t, patch.RetirementAge)
				assert.Equal(t, 66, *patch.RetirementAge)
			},
		},
		{
			name: "adjust parameters rejects fields outside the allowed set",
			sug: datatypes.Suggestion{
				ID:           "s6",
				Action:       datatypes.ActionAdjustParameters,
				ActionValues: map[string]float64{datatypes.FieldMonthlySalary: 100000},
			},
			wantErr: true,
		},
		{
			name:    "missing action value",
			sug:     datatypes.Suggestion{ID: "s7", Action: datatypes.ActionUpdateContributionRate},
			wantErr: true,
		},
		{
			name:    "unknown action",
			sug:     datatypes.Suggestion{ID: "s8", Action: "delete_everything"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := BuildPatch(tt.sug)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, patch)
		})
	}
}

func TestValidator_AppliesOptimistically(t *testing.T) {
	svc := &fakeSuggestionService{deficit: 40}
	store, valid := newTestValidator(t, svc)

	err := valid.Apply(context.Background(), datatypes.Suggestion{
		ID:          "sug-1",
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	})
	require.NoError(t, err)

	// The merge happens before verification resolves.
	assert.Equal(t, 14.5, store.Current().ContributionRate)
	out := valid.Outcome("sug-1")
	require.NotNil(t, out)
	assert.Equal(t, datatypes.OutcomePending, out.State)
}

func TestValidator_ConvergedWithinTolerance(t *testing.T) {
	svc := &fakeSuggestionService{deficit: -40} // R$ 40 surplus residual
	_, valid := newTestValidator(t, svc)

	require.NoError(t, valid.Apply(context.Background(), datatypes.Suggestion{
		ID:          "sug-1",
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	}))

	out := waitForOutcome(t, valid, "sug-1")
	assert.Equal(t, datatypes.OutcomeConverged, out.State)
	assert.Equal(t, 40.0, out.Residual)
	assert.Empty(t, out.Warning)
	assert.False(t, out.ResolvedAt.IsZero())
}

func TestValidator_DivergedWarningCarriesFormattedResidual(t *testing.T) {
	svc := &fakeSuggestionService{deficit: 2500}
	_, valid := newTestValidator(t, svc)

	require.NoError(t, valid.Apply(context.Background(), datatypes.Suggestion{
		ID:          "sug-1",
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	}))

	out := waitForOutcome(t, valid, "sug-1")
	assert.Equal(t, datatypes.OutcomeDiverged, out.State)
	assert.Contains(t, out.Warning, "R$ 2.500,00")
}

func TestValidator_VerificationReadsFreshSnapshot(t *testing.T) {
	svc := &fakeSuggestionService{deficit: 40}
	store, valid := newTestValidator(t, svc)

	require.NoError(t, valid.Apply(context.Background(), datatypes.Suggestion{
		ID:          "sug-1",
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	}))

	// The user edits again inside the settling window; verification must see
	// the edit, not the snapshot captured at apply time.
	store.Merge(datatypes.ParameterPatch{MonthlySalary: datatypes.Float64Ptr(9000)})

	waitForOutcome(t, valid, "sug-1")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.calcs, 1)
	assert.Equal(t, 9000.0, svc.calcs[0].MonthlySalary)
}

func TestValidator_ReapplySupersedesEarlierVerification(t *testing.T) {
	svc := &fakeSuggestionService{deficit: 2500}
	_, valid := newTestValidator(t, svc)

	sug := datatypes.Suggestion{
		ID:          "sug-1",
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	}
	require.NoError(t, valid.Apply(context.Background(), sug))

	// Re-apply immediately; the plan now balances.
	svc.setDeficit(30)
	sug.ActionValue = datatypes.Float64Ptr(16)
	require.NoError(t, valid.Apply(context.Background(), sug))

	out := waitForOutcome(t, valid, "sug-1")
	assert.Equal(t, datatypes.OutcomeConverged, out.State,
		"the superseded verification must not overwrite the newer outcome")

	// Give the first timer time to fire and be discarded.
	time.Sleep(50 * time.Millisecond)
	out = valid.Outcome("sug-1")
	assert.Equal(t, datatypes.OutcomeConverged, out.State)
}

func TestValidator_ApplyFailureDowngradesWithFailureClass(t *testing.T) {
	svc := &fakeSuggestionService{applyErr: &compute.APIError{
		StatusCode: 422,
		Class:      compute.ClassValidation,
		Message:    "contribution rate out of range",
	}}
	store, valid := newTestValidator(t, svc)

	err := valid.Apply(context.Background(), datatypes.Suggestion{
		ID:          "sug-1",
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	})
	require.Error(t, err)

	out := valid.Outcome("sug-1")
	require.NotNil(t, out)
	assert.Equal(t, datatypes.OutcomeDiverged, out.State)
	assert.Contains(t, out.Warning, string(compute.ClassValidation))

	// Optimistic merge happened regardless of the bookkeeping failure.
	assert.Equal(t, 14.5, store.Current().ContributionRate)
}

func TestValidator_VerificationFailureDiverges(t *testing.T) {
	svc := &fakeSuggestionService{calcErr: &compute.APIError{
		StatusCode: 503,
		Class:      compute.ClassServer,
		Message:    "compute overloaded",
	}}
	_, valid := newTestValidator(t, svc)

	require.NoError(t, valid.Apply(context.Background(), datatypes.Suggestion{
		ID:          "sug-1",
		Action:      datatypes.ActionUpdateContributionRate,
		ActionValue: datatypes.Float64Ptr(14.5),
	}))

	out := waitForOutcome(t, valid, "sug-1")
	assert.Equal(t, datatypes.OutcomeDiverged, out.State)
	assert.Contains(t, out.Warning, string(compute.ClassServer))
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "R$ 0,00"},
		{42.5, "R$ 42,50"},
		{2500, "R$ 2.500,00"},
		{1234567.89, "R$ 1.234.567,89"},
		{-987.6, "-R$ 987,60"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBRL(tt.in))
	}
}
