// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the simulation orchestrator.
//
// This file contains the suggestion types exchanged with the computation
// service and the outcome record the suggestion validator maintains.
package datatypes

import "time"

// SuggestionAction identifies what a suggestion changes when applied.
//
// The set is closed: the suggestion validator dispatches over these kinds
// through a fixed table, and an unknown action is an error rather than a
// silent no-op.
type SuggestionAction string

const (
	// ActionUpdateContributionRate sets contribution_rate to ActionValue.
	ActionUpdateContributionRate SuggestionAction = "update_contribution_rate"

	// ActionUpdateRetirementAge sets retirement_age to ActionValue
	// (truncated to a whole year).
	ActionUpdateRetirementAge SuggestionAction = "update_retirement_age"

	// ActionSetTargetReplacementRate sets target_replacement_rate to
	// ActionValue and flips benefit_target_mode to REPLACEMENT_RATE so the
	// value is interpreted correctly.
	ActionSetTargetReplacementRate SuggestionAction = "set_target_replacement_rate"

	// ActionSetTargetBenefitValue sets target_benefit_value to ActionValue
	// and flips benefit_target_mode to FIXED_VALUE.
	ActionSetTargetBenefitValue SuggestionAction = "set_target_benefit_value"

	// ActionAdjustParameters fans ActionValues out as field→value updates
	// over a fixed set of numeric fields.
	ActionAdjustParameters SuggestionAction = "adjust_parameters"
)

// Suggestion is one server-recommended parameter change.
type Suggestion struct {
	ID     string           `json:"id"`
	Title  string           `json:"title"`
	Action SuggestionAction `json:"action"`

	// ActionValue carries the payload for single-field actions.
	ActionValue *float64 `json:"action_value,omitempty"`

	// ActionValues carries field→value pairs for adjust_parameters.
	ActionValues map[string]float64 `json:"action_values,omitempty"`

	// ImpactDescription is display text describing the expected effect.
	ImpactDescription string `json:"impact_description,omitempty"`
}

// OutcomeState is the lifecycle state of an applied suggestion.
type OutcomeState string

const (
	// OutcomePending means the deferred verification has not resolved yet.
	OutcomePending OutcomeState = "pending"

	// OutcomeConverged means the post-apply calculation landed within the
	// convergence tolerance of a balanced plan.
	OutcomeConverged OutcomeState = "converged"

	// OutcomeDiverged means the residual exceeded the tolerance, or the
	// apply/verify call itself failed; Warning says which.
	OutcomeDiverged OutcomeState = "diverged"
)

// SuggestionOutcome records what happened after a suggestion was applied.
//
// Created in state pending when the suggestion is applied, resolved by the
// deferred verification call, and replaced wholesale when the same
// suggestion id is applied again (the prior verification, if still in
// flight, is superseded and its result discarded).
type SuggestionOutcome struct {
	SuggestionID string       `json:"suggestion_id"`
	State        OutcomeState `json:"state"`

	// Warning is a human-readable message set when State is diverged.
	Warning string `json:"warning,omitempty"`

	// Residual is the |deficit/surplus| observed by verification (R$).
	Residual float64 `json:"residual,omitempty"`

	AppliedAt  time.Time `json:"applied_at"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}
