// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the simulation orchestrator.
//
// This file contains the computed output types returned by the remote
// computation service, plus the lookup-table metadata it publishes.
package datatypes

import "time"

// ResultSnapshot is the output of one remote calculation.
//
// # Description
//
// Every result is tagged with the Fingerprint of the parameter snapshot it
// was computed from. The state store uses that tag two ways: a result whose
// fingerprint does not match the currently dispatched fingerprint is
// discarded (it answers a superseded request), and a result that matches the
// dispatched fingerprint but not the current snapshot is kept and flagged
// Stale so the presentation layer can show "recalculating".
type ResultSnapshot struct {
	// Fingerprint of the ParameterSnapshot this result was computed from.
	Fingerprint string `json:"fingerprint"`

	// MonthlyBenefit is the projected monthly benefit at retirement (R$).
	MonthlyBenefit float64 `json:"monthly_benefit"`

	// AchievedReplacementRate is MonthlyBenefit as a percent of the
	// projected final salary.
	AchievedReplacementRate float64 `json:"achieved_replacement_rate"`

	// TotalReserve is the accumulated balance at retirement (R$).
	TotalReserve float64 `json:"total_reserve"`

	// DeficitSurplus is the gap between the benefit target and what the
	// plan actually funds (R$/month). Negative means deficit. This is the
	// metric the suggestion validator checks against its tolerance.
	DeficitSurplus float64 `json:"deficit_surplus"`

	// Projection is the balance/benefit trajectory, one point per period
	// at the snapshot's projection granularity.
	Projection []ProjectionPoint `json:"projection,omitempty"`

	// ComputedAt is the server-side completion time.
	ComputedAt time.Time `json:"computed_at"`

	// Stale is set client-side when a newer parameter snapshot already
	// exists at the time this result arrives. Never transmitted.
	Stale bool `json:"-"`
}

// ProjectionPoint is one step of the projected trajectory.
type ProjectionPoint struct {
	Age     int     `json:"age"`
	Balance float64 `json:"balance"`
	Benefit float64 `json:"benefit"`
}

// CalculationProgress is the payload of calculation_started and
// results_update push messages.
type CalculationProgress struct {
	Fingerprint string  `json:"fingerprint"`
	Phase       string  `json:"phase,omitempty"`
	Percent     float64 `json:"percent,omitempty"`
	// Partial carries intermediate results on results_update, nil otherwise.
	Partial *ResultSnapshot `json:"partial,omitempty"`
}

// LookupTable describes one selectable actuarial reference table.
type LookupTable struct {
	// Code is the short identifier used in ParameterSnapshot.MortalityTable
	// (e.g. "AT-2000", "BR-EMS-2021").
	Code string `json:"code"`

	// DisplayName is the human-readable table name.
	DisplayName string `json:"display_name"`

	// Approved indicates regulatory approval for new plans.
	Approved bool `json:"approved"`
}
