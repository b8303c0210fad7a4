// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	// None of these may panic.
	m.DispatchStarted("immediate")
	m.DuplicateSuppressed()
	m.DispatchFailed()
	m.CalculationObserved(time.Second)
	m.ReconnectAttempt()
	m.ConnectionStateChanged(1)
	m.SuggestionResolved("converged")
}

func TestMetrics_CountersIncrement(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.DispatchStarted("immediate")
	m.DispatchStarted("immediate")
	m.DispatchStarted("technical")
	m.DuplicateSuppressed()
	m.SuggestionResolved("converged")
	m.ConnectionStateChanged(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchesTotal.WithLabelValues("immediate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchesTotal.WithLabelValues("technical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicatesSuppressedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuggestionOutcomesTotal.WithLabelValues("converged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionState))
}

func TestMetrics_RegistersCleanlyTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
