package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/previsim/previsim/services/compute"
	"github.com/previsim/previsim/services/pushchannel"
	"github.com/previsim/previsim/services/simulation/datatypes"
	"github.com/previsim/previsim/services/simulation/observability"
)

// Session ties one orchestrator instance together for the lifetime of a
// user session.
//
// # Description
//
// The session owns the state store, the debounced dispatcher, the push
// channel and the suggestion validator, and tears them all down on Close.
// It is created once per application session and injected into dependents;
// nothing in this package reaches a global instance.
//
// Data flow: Edit → store merge → dispatcher schedules → compute call →
// result lands in the store either via the synchronous response or as a
// calculation_completed push event.
type Session struct {
	cfg     SessionConfig
	store   *Store
	disp    *Dispatcher
	comp    *compute.Client
	push    *pushchannel.Client
	valid   *Validator
	metrics *observability.Metrics

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewSession builds the component graph. Nothing touches the network until
// Start.
func NewSession(cfg SessionConfig, metrics *observability.Metrics) (*Session, error) {
	cfg.ApplyDefaults()

	comp, err := compute.NewClient(compute.Config{
		BaseURL:        cfg.ComputeURL,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("simulation: build compute client: %w", err)
	}

	push := pushchannel.NewClient(pushchannel.Config{
		URL:         cfg.PushURL,
		BaseDelay:   cfg.ReconnectBaseDelay,
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Metrics:     metrics,
	})

	return &Session{
		cfg:     cfg,
		comp:    comp,
		push:    push,
		metrics: metrics,
	}, nil
}

// Start bootstraps the session: fetch defaults, seed the store, wire the
// dispatcher and push handlers, open the channel and start the heartbeat.
//
// A failed push-channel handshake is logged, not fatal: the
// request/response path works without the channel, which keeps retrying in
// the background.
func (s *Session) Start(ctx context.Context) error {
	defaults, err := s.comp.Defaults(ctx)
	if err != nil {
		return fmt.Errorf("simulation: fetch defaults: %w", err)
	}

	s.store = NewStore(*defaults)
	s.disp = NewDispatcher(s.store, s.comp, s.cfg.Delays, s.metrics)
	s.store.OnChange(s.disp.OnSnapshotChange)
	s.valid = NewValidator(s.store, s.comp, s.cfg.VerificationDelay, s.cfg.ConvergenceTolerance, s.metrics)

	s.registerPushHandlers()
	if err := s.push.Connect(ctx); err != nil {
		slog.Warn("push channel unavailable, continuing request/response only", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, runCtx = errgroup.WithContext(runCtx)
	s.group.Go(func() error { return s.heartbeat(runCtx) })
	return nil
}

// registerPushHandlers connects channel events to the store. The channel
// itself never mutates state; these handlers, owned by the session, do.
func (s *Session) registerPushHandlers() {
	s.push.RegisterHandler(datatypes.MessageCalculationStarted, func(payload json.RawMessage) {
		var progress datatypes.CalculationProgress
		if err := json.Unmarshal(payload, &progress); err != nil {
			return
		}
		slog.Debug("calculation started", "fingerprint", progress.Fingerprint)
	})
	s.push.RegisterHandler(datatypes.MessageResultsUpdate, func(payload json.RawMessage) {
		var progress datatypes.CalculationProgress
		if err := json.Unmarshal(payload, &progress); err != nil {
			slog.Warn("malformed results_update payload", "error", err)
			return
		}
		slog.Debug("calculation progress", "percent", progress.Percent, "phase", progress.Phase)
	})
	s.push.RegisterHandler(datatypes.MessageCalculationCompleted, func(payload json.RawMessage) {
		var res datatypes.ResultSnapshot
		if err := json.Unmarshal(payload, &res); err != nil {
			slog.Warn("malformed calculation_completed payload", "error", err)
			return
		}
		if !s.store.SetResult(res) {
			slog.Debug("pushed result discarded as superseded", "fingerprint", res.Fingerprint)
		}
	})
	s.push.RegisterHandler(datatypes.MessageError, func(payload json.RawMessage) {
		var chanErr datatypes.ChannelError
		if err := json.Unmarshal(payload, &chanErr); err != nil {
			return
		}
		s.store.SetError(errors.New(chanErr.Message))
	})
	// sensitivity_update stays unregistered: no state depends on it yet and
	// unhandled types are ignored by design.
	s.push.RegisterHandler(datatypes.MessagePong, func(json.RawMessage) {
		slog.Debug("push channel pong")
	})
}

// heartbeat pings the channel on a fixed cadence. A missed pong is not a
// failure signal; reconnection is driven by transport errors alone.
func (s *Session) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.push.State() == pushchannel.StateOpen {
				if err := s.push.SendPing(); err != nil {
					slog.Debug("ping failed", "error", err)
				}
			}
		}
	}
}

// Edit merges a partial parameter update, driving the reactive pipeline.
func (s *Session) Edit(patch datatypes.ParameterPatch) (datatypes.ParameterSnapshot, bool) {
	return s.store.Merge(patch)
}

// Replace installs a full snapshot (e.g. from a watched parameter file).
func (s *Session) Replace(next datatypes.ParameterSnapshot) datatypes.ParameterSnapshot {
	return s.store.Replace(next)
}

// Store exposes the state store for read access and listener registration.
func (s *Session) Store() *Store { return s.store }

// Validator exposes the suggestion validator.
func (s *Session) Validator() *Validator { return s.valid }

// Compute exposes the computation client for one-shot calls (lookup
// tables, suggestion listing).
func (s *Session) Compute() *compute.Client { return s.comp }

// PushState returns the current push-channel connection state.
func (s *Session) PushState() pushchannel.State { return s.push.State() }

// OnPushStateChange registers a connection-state listener, e.g. for an
// offline indicator.
func (s *Session) OnPushStateChange(fn pushchannel.StateListener) {
	s.push.OnStateChange(fn)
}

// Close tears the session down: pending debounce timers are cancelled, the
// push channel closes, the heartbeat drains. In-flight compute calls run to
// completion and are discarded by the fingerprint check.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.disp != nil {
		s.disp.Stop()
	}
	err := s.push.Close()
	if s.group != nil {
		if gerr := s.group.Wait(); gerr != nil && err == nil {
			err = gerr
		}
	}
	return err
}
