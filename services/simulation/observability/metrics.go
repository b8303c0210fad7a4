// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the three coordination hot spots: the debounced dispatcher
// (dispatch counts by tier, suppressed duplicates, failures, calculation
// latency), the push channel (connection state, reconnect attempts) and the
// suggestion validator (outcomes by state).
//
// # Integration
//
// Pass a prometheus.Registerer (prometheus.DefaultRegisterer in production,
// a fresh prometheus.NewRegistry() in tests); the stub server exposes the
// default registry on /metrics.
//
// # Thread Safety
//
// All operations are thread-safe via Prometheus's internal locking. Every
// method is a no-op on a nil *Metrics, so components can treat metrics as
// optional without nil checks at each call site.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "previsim"

// Metrics holds all Prometheus collectors for the orchestrator.
type Metrics struct {
	// DispatchesTotal counts remote calculation dispatches by change tier.
	DispatchesTotal *prometheus.CounterVec

	// DuplicatesSuppressedTotal counts edits whose fingerprint matched the
	// DispatchRecord and therefore scheduled nothing.
	DuplicatesSuppressedTotal prometheus.Counter

	// DispatchFailuresTotal counts failed calculation calls.
	DispatchFailuresTotal prometheus.Counter

	// CalculationSeconds observes round-trip latency of calculation calls.
	CalculationSeconds prometheus.Histogram

	// ReconnectAttemptsTotal counts push-channel reconnect attempts.
	ReconnectAttemptsTotal prometheus.Counter

	// ConnectionState is the push-channel state as a number:
	// 0 connecting, 1 open, 2 reconnecting, 3 closed.
	ConnectionState prometheus.Gauge

	// SuggestionOutcomesTotal counts resolved suggestion verifications by
	// terminal state (converged/diverged).
	SuggestionOutcomesTotal *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg and returns the set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "dispatches_total",
			Help:      "Remote calculation dispatches by change tier.",
		}, []string{"tier"}),
		DuplicatesSuppressedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "duplicates_suppressed_total",
			Help:      "Edits suppressed because the dispatch fingerprint was unchanged.",
		}),
		DispatchFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "failures_total",
			Help:      "Failed calculation dispatches.",
		}),
		CalculationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatcher",
			Name:      "calculation_seconds",
			Help:      "Round-trip latency of calculation requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReconnectAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pushchannel",
			Name:      "reconnect_attempts_total",
			Help:      "Push-channel reconnect attempts.",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pushchannel",
			Name:      "connection_state",
			Help:      "Push-channel state: 0 connecting, 1 open, 2 reconnecting, 3 closed.",
		}),
		SuggestionOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "suggestions",
			Name:      "outcomes_total",
			Help:      "Resolved suggestion verifications by state.",
		}, []string{"state"}),
	}
}

// DispatchStarted records a dispatch for the given tier label.
func (m *Metrics) DispatchStarted(tier string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(tier).Inc()
}

// DuplicateSuppressed records a fingerprint-suppressed edit.
func (m *Metrics) DuplicateSuppressed() {
	if m == nil {
		return
	}
	m.DuplicatesSuppressedTotal.Inc()
}

// DispatchFailed records a failed calculation call.
func (m *Metrics) DispatchFailed() {
	if m == nil {
		return
	}
	m.DispatchFailuresTotal.Inc()
}

// CalculationObserved records the round-trip latency of a successful call.
func (m *Metrics) CalculationObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.CalculationSeconds.Observe(d.Seconds())
}

// ReconnectAttempt records one reconnect attempt.
func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttemptsTotal.Inc()
}

// ConnectionStateChanged records the numeric connection state.
func (m *Metrics) ConnectionStateChanged(state float64) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(state)
}

// SuggestionResolved records a terminal suggestion outcome.
func (m *Metrics) SuggestionResolved(state string) {
	if m == nil {
		return
	}
	m.SuggestionOutcomesTotal.WithLabelValues(state).Inc()
}
