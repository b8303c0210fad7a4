package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/previsim/previsim/services/compute"
	"github.com/previsim/previsim/services/simulation/datatypes"
	"github.com/previsim/previsim/services/simulation/observability"
)

// SuggestionService is the slice of the computation client the validator
// needs.
type SuggestionService interface {
	Calculator
	ApplySuggestion(ctx context.Context, req compute.ApplySuggestionRequest) error
}

// DefaultVerificationDelay gives the store merge and any dependent
// recalculation time to settle before the verification call.
const DefaultVerificationDelay = 2 * time.Second

// DefaultConvergenceTolerance is the maximum acceptable |deficit/surplus|
// residual, in R$, for a suggestion to count as converged.
const DefaultConvergenceTolerance = 100.0

// adjustableFields is the closed set of numeric fields an
// adjust_parameters suggestion may touch, mapped to patch builders.
// An action value for any other field is an error, not a silent skip.
var adjustableFields = map[string]func(*datatypes.ParameterPatch, float64){
	datatypes.FieldContributionRate:  func(p *datatypes.ParameterPatch, v float64) { p.ContributionRate = &v },
	datatypes.FieldEmployerMatchRate: func(p *datatypes.ParameterPatch, v float64) { p.EmployerMatchRate = &v },
	datatypes.FieldRetirementAge: func(p *datatypes.ParameterPatch, v float64) {
		age := int(v)
		p.RetirementAge = &age
	},
	datatypes.FieldSalaryGrowthRate: func(p *datatypes.ParameterPatch, v float64) { p.SalaryGrowthRate = &v },
	datatypes.FieldDiscountRate:     func(p *datatypes.ParameterPatch, v float64) { p.DiscountRate = &v },
	datatypes.FieldAdminFeeRate:     func(p *datatypes.ParameterPatch, v float64) { p.AdminFeeRate = &v },
	datatypes.FieldLoadingFeeRate:   func(p *datatypes.ParameterPatch, v float64) { p.LoadingFeeRate = &v },
}

// BuildPatch maps a suggestion's action to concrete field updates.
//
// Single-value actions set one field; the benefit-target actions also flip
// the mode flag so the value is interpreted correctly. adjust_parameters
// fans its value map out over adjustableFields. The action set is closed:
// anything else is an error.
func BuildPatch(sug datatypes.Suggestion) (datatypes.ParameterPatch, error) {
	var patch datatypes.ParameterPatch
	switch sug.Action {
	case datatypes.ActionUpdateContributionRate:
		if sug.ActionValue == nil {
			return patch, fmt.Errorf("suggestion %s: %s requires action_value", sug.ID, sug.Action)
		}
		patch.ContributionRate = sug.ActionValue

	case datatypes.ActionUpdateRetirementAge:
		if sug.ActionValue == nil {
			return patch, fmt.Errorf("suggestion %s: %s requires action_value", sug.ID, sug.Action)
		}
		age := int(*sug.ActionValue)
		patch.RetirementAge = &age

	case datatypes.ActionSetTargetReplacementRate:
		if sug.ActionValue == nil {
			return patch, fmt.Errorf("suggestion %s: %s requires action_value", sug.ID, sug.Action)
		}
		patch.BenefitTargetMode = datatypes.ModePtr(datatypes.BenefitTargetReplacementRate)
		rate := *sug.ActionValue
		ratePtr := &rate
		patch.TargetReplacementRate = &ratePtr
		patch.TargetBenefitValue = new(*float64) // clear the alternate representation

	case datatypes.ActionSetTargetBenefitValue:
		if sug.ActionValue == nil {
			return patch, fmt.Errorf("suggestion %s: %s requires action_value", sug.ID, sug.Action)
		}
		patch.BenefitTargetMode = datatypes.ModePtr(datatypes.BenefitTargetFixedValue)
		value := *sug.ActionValue
		valuePtr := &value
		patch.TargetBenefitValue = &valuePtr
		patch.TargetReplacementRate = new(*float64)

	case datatypes.ActionAdjustParameters:
		if len(sug.ActionValues) == 0 {
			return patch, fmt.Errorf("suggestion %s: %s requires action_values", sug.ID, sug.Action)
		}
		for field, value := range sug.ActionValues {
			apply, ok := adjustableFields[field]
			if !ok {
				return datatypes.ParameterPatch{}, fmt.Errorf(
					"suggestion %s: field %q is not adjustable", sug.ID, field)
			}
			apply(&patch, value)
		}

	default:
		return patch, fmt.Errorf("suggestion %s: unknown action %q", sug.ID, sug.Action)
	}
	return patch, nil
}

// Validator applies suggestions optimistically and verifies convergence.
//
// # Description
//
// Apply merges the suggested change into the store right away (optimistic
// UI), reports it to the computation service for bookkeeping, then after a
// fixed delay issues a fresh calculation against the new snapshot and
// checks the deficit/surplus metric against the convergence tolerance.
//
// # Concurrency Rule
//
// At most one verification is live per suggestion id. Re-applying the same
// id supersedes the earlier verification: it may still complete, but its
// result is discarded and never overwrites the newer outcome.
type Validator struct {
	store     *Store
	service   SuggestionService
	delay     time.Duration
	tolerance float64
	metrics   *observability.Metrics

	mu       sync.Mutex
	outcomes map[string]*datatypes.SuggestionOutcome
	epochs   map[string]int // bumped on every Apply per id
}

// NewValidator creates a Validator. delay and tolerance fall back to the
// package defaults when zero; metrics may be nil.
func NewValidator(store *Store, service SuggestionService, delay time.Duration, tolerance float64, metrics *observability.Metrics) *Validator {
	if delay <= 0 {
		delay = DefaultVerificationDelay
	}
	if tolerance <= 0 {
		tolerance = DefaultConvergenceTolerance
	}
	return &Validator{
		store:     store,
		service:   service,
		delay:     delay,
		tolerance: tolerance,
		metrics:   metrics,
		outcomes:  make(map[string]*datatypes.SuggestionOutcome),
		epochs:    make(map[string]int),
	}
}

// Outcome returns the recorded outcome for a suggestion id, or nil.
func (v *Validator) Outcome(suggestionID string) *datatypes.SuggestionOutcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	out, ok := v.outcomes[suggestionID]
	if !ok {
		return nil
	}
	copied := *out
	return &copied
}

// Apply applies a suggestion and schedules its deferred verification.
//
// The merge into the store happens even if the bookkeeping call fails; a
// failed apply call downgrades the outcome to diverged with a warning
// naming the failure class instead of silently discarding the suggestion.
func (v *Validator) Apply(ctx context.Context, sug datatypes.Suggestion) error {
	patch, err := BuildPatch(sug)
	if err != nil {
		return err
	}

	epoch := v.begin(sug.ID)

	snapshot := v.store.Current()
	applyErr := v.service.ApplySuggestion(ctx, compute.ApplySuggestionRequest{
		Snapshot:     datatypes.Normalize(snapshot),
		Action:       sug.Action,
		ActionValue:  sug.ActionValue,
		ActionValues: sug.ActionValues,
	})

	_, _ = v.store.Merge(patch)
	slog.Info("suggestion applied", "suggestion_id", sug.ID, "action", string(sug.Action))

	if applyErr != nil {
		v.resolve(sug.ID, epoch, datatypes.OutcomeDiverged, 0,
			fmt.Sprintf("suggestion bookkeeping failed (%s): %v", compute.Classify(applyErr), applyErr))
		return applyErr
	}

	// Verification reads the snapshot as it stands after the settling
	// delay, not the one captured here, so dependent recalculations that
	// land in between are included.
	time.AfterFunc(v.delay, func() { v.verify(sug.ID, epoch) })
	return nil
}

// begin registers a pending outcome and returns the epoch guarding it.
func (v *Validator) begin(suggestionID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.epochs[suggestionID]++
	v.outcomes[suggestionID] = &datatypes.SuggestionOutcome{
		SuggestionID: suggestionID,
		State:        datatypes.OutcomePending,
		AppliedAt:    time.Now(),
	}
	return v.epochs[suggestionID]
}

// verify runs on the deferred timer and resolves the outcome.
func (v *Validator) verify(suggestionID string, epoch int) {
	snapshot := datatypes.Normalize(v.store.Current())
	res, err := v.service.Calculate(context.Background(), snapshot)
	if err != nil {
		v.resolve(suggestionID, epoch, datatypes.OutcomeDiverged, 0,
			fmt.Sprintf("verification failed (%s): %v", compute.Classify(err), err))
		return
	}
	if res == nil {
		v.resolve(suggestionID, epoch, datatypes.OutcomeDiverged, 0,
			"verification inconclusive: result deferred to push channel")
		return
	}

	residual := math.Abs(res.DeficitSurplus)
	if residual <= v.tolerance {
		v.resolve(suggestionID, epoch, datatypes.OutcomeConverged, residual, "")
		return
	}
	v.resolve(suggestionID, epoch, datatypes.OutcomeDiverged, residual,
		fmt.Sprintf("suggestion did not close the plan gap: residual of %s remains", FormatBRL(residual)))
}

// resolve writes a terminal outcome unless a newer Apply superseded epoch.
func (v *Validator) resolve(suggestionID string, epoch int, state datatypes.OutcomeState, residual float64, warning string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.epochs[suggestionID] != epoch {
		slog.Debug("stale suggestion verification discarded",
			"suggestion_id", suggestionID, "epoch", epoch)
		return
	}
	out := v.outcomes[suggestionID]
	out.State = state
	out.Residual = residual
	out.Warning = warning
	out.ResolvedAt = time.Now()
	v.metrics.SuggestionResolved(string(state))
	if state == datatypes.OutcomeDiverged {
		slog.Warn("suggestion diverged", "suggestion_id", suggestionID, "warning", warning)
	} else {
		slog.Info("suggestion converged", "suggestion_id", suggestionID, "residual", residual)
	}
}

// FormatBRL renders a monetary value as Brazilian currency text, with a
// dot thousands separator and comma decimals: 2500 → "R$ 2.500,00".
func FormatBRL(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(math.Round(v * 100))
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var grouped []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, d)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped, frac)
}
