package simulation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/previsim/previsim/services/compute"
)

// SessionConfig is the user-tunable configuration of one orchestrator
// session, loadable from YAML with env-style defaults for everything.
type SessionConfig struct {
	// ComputeURL is the computation service root.
	ComputeURL string `yaml:"compute_url"`

	// PushURL is the websocket endpoint for the push channel.
	PushURL string `yaml:"push_url"`

	// RequestTimeout bounds each compute call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Delays are the per-tier debounce windows.
	Delays DispatchDelays `yaml:"debounce"`

	// ReconnectBaseDelay seeds the push-channel backoff.
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`

	// ReconnectMaxAttempts is the reconnect budget.
	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`

	// VerificationDelay is the settling time before suggestion
	// re-verification.
	VerificationDelay time.Duration `yaml:"verification_delay"`

	// ConvergenceTolerance is the acceptable |deficit/surplus| residual in
	// R$ after applying a suggestion.
	ConvergenceTolerance float64 `yaml:"convergence_tolerance"`

	// PingInterval is the heartbeat cadence on the push channel.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// ApplyDefaults fills zero fields with production defaults.
func (c *SessionConfig) ApplyDefaults() {
	if c.ComputeURL == "" {
		c.ComputeURL = "http://localhost:8600"
	}
	if c.PushURL == "" {
		c.PushURL = "ws://localhost:8600/ws"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = compute.DefaultRequestTimeout
	}
	if c.Delays == (DispatchDelays{}) {
		c.Delays = DefaultDispatchDelays()
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = 8
	}
	if c.VerificationDelay <= 0 {
		c.VerificationDelay = DefaultVerificationDelay
	}
	if c.ConvergenceTolerance <= 0 {
		c.ConvergenceTolerance = DefaultConvergenceTolerance
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

// LoadSessionConfig reads a YAML config file. A missing path returns the
// defaults; a present but malformed file is an error.
func LoadSessionConfig(path string) (SessionConfig, error) {
	var cfg SessionConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("simulation: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("simulation: parse config %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
