package simulation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/previsim/previsim/services/simulation/datatypes"
	"github.com/previsim/previsim/services/simulation/observability"
)

// Calculator is the slice of the computation client the dispatcher needs.
type Calculator interface {
	Calculate(ctx context.Context, snapshot datatypes.ParameterSnapshot) (*datatypes.ResultSnapshot, error)
}

// DispatchDelays maps change tiers to debounce delays.
//
// The values are tuning knobs, not a contract: immediate changes get the
// shortest window because the user is waiting on a number, technical changes
// the longest because nothing monetary moved.
type DispatchDelays struct {
	Immediate      time.Duration `yaml:"immediate"`
	Administrative time.Duration `yaml:"administrative"`
	Technical      time.Duration `yaml:"technical"`
}

// DefaultDispatchDelays returns the standard debounce windows.
func DefaultDispatchDelays() DispatchDelays {
	return DispatchDelays{
		Immediate:      500 * time.Millisecond,
		Administrative: 750 * time.Millisecond,
		Technical:      1000 * time.Millisecond,
	}
}

// forTier returns the delay for a tier.
func (d DispatchDelays) forTier(t ChangeTier) time.Duration {
	switch t {
	case TierAdministrative:
		return d.Administrative
	case TierTechnical:
		return d.Technical
	default:
		return d.Immediate
	}
}

// Dispatcher coalesces bursts of edits into single remote calculations.
//
// # Description
//
// The dispatcher owns at most one pending timer per store. Every snapshot
// change cancels the pending timer, classifies the change against the last
// dispatched snapshot, and either suppresses the dispatch (same effective
// fingerprint as the last one sent) or schedules a fresh timer at the
// tier's delay. When the timer fires the snapshot is normalized, the
// DispatchRecord is updated synchronously, and the calculation request goes
// out.
//
// # Failure Policy
//
// A failed calculation sets the store's error state and is NOT retried
// automatically; the next user edit is the only retry trigger. Automatic
// retry on a user-editable form risks stacking stale requests behind a
// struggling backend.
//
// # Cancellation
//
// Pending timers are the cancellation mechanism. In-flight network calls
// are never aborted; a response to a superseded request is discarded by the
// store's fingerprint check instead.
type Dispatcher struct {
	store   *Store
	calc    Calculator
	delays  DispatchDelays
	metrics *observability.Metrics

	mu    sync.Mutex
	timer *time.Timer
}

// NewDispatcher creates a Dispatcher bound to the store and calculator.
// metrics may be nil.
func NewDispatcher(store *Store, calc Calculator, delays DispatchDelays, metrics *observability.Metrics) *Dispatcher {
	if delays == (DispatchDelays{}) {
		delays = DefaultDispatchDelays()
	}
	return &Dispatcher{
		store:   store,
		calc:    calc,
		delays:  delays,
		metrics: metrics,
	}
}

// OnSnapshotChange reacts to a store merge. Register it as a store change
// listener; it can also be called directly in tests.
//
// Any pending timer is silently discarded first, so a burst of edits within
// the debounce window produces exactly one dispatch reflecting the final
// snapshot. If the normalized next snapshot fingerprints identically to the
// last one dispatched, nothing is scheduled.
func (d *Dispatcher) OnSnapshotChange(_, next datatypes.ParameterSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	dispatched, dispatchedFP := d.store.Dispatched()
	fp := next.Fingerprint()
	if dispatchedFP != "" && fp == dispatchedFP {
		slog.Debug("dispatch suppressed, fingerprint unchanged", "fingerprint", fp[:12])
		d.metrics.DuplicateSuppressed()
		return
	}

	tier := Classify(dispatched, next)
	delay := d.delays.forTier(tier)
	slog.Debug("dispatch scheduled", "tier", tier.String(), "delay", delay)
	d.timer = time.AfterFunc(delay, func() { d.fire(next, tier) })
}

// Stop cancels any pending timer. In-flight calls, if any, run to completion
// and are resolved by the store's fingerprint check.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}

// fire runs on the timer goroutine when the debounce window closes.
func (d *Dispatcher) fire(next datatypes.ParameterSnapshot, tier ChangeTier) {
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()

	sent := datatypes.Normalize(next)
	if err := sent.Validate(); err != nil {
		slog.Warn("snapshot failed validation, dispatch skipped", "error", err)
		d.store.SetError(err)
		return
	}

	fp := sent.Fingerprint()
	// DispatchRecord moves before the call resolves; a second edit arriving
	// mid-flight must compare against this request, not the previous one.
	d.store.RecordDispatch(sent, fp)
	d.metrics.DispatchStarted(tier.String())

	start := time.Now()
	// Background on purpose: the transport has no cooperative cancellation
	// in this design, the client's own request timeout bounds the call.
	res, err := d.calc.Calculate(context.Background(), sent)
	if err != nil {
		slog.Error("calculation dispatch failed", "fingerprint", fp[:12], "error", err)
		d.store.SetError(err)
		d.metrics.DispatchFailed()
		return
	}
	d.metrics.CalculationObserved(time.Since(start))

	if res == nil {
		// Some deployments answer over the push channel instead; the store
		// will pick the result up from there.
		return
	}
	if res.Fingerprint == "" {
		res.Fingerprint = fp
	}
	if !d.store.SetResult(*res) {
		slog.Debug("calculation result discarded as superseded", "fingerprint", res.Fingerprint[:12])
	}
}
