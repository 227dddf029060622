package authsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds engine settings. A Config is read once by [Builder.Build] and
// copied; later mutation of the caller's value has no effect.
type Config struct {
	Bootstrap   BootstrapConfig
	Events      EventsConfig
	Diagnostics DiagnosticsConfig
	Metrics     MetricsConfig
	Session     SessionConfig

	// Locale selects the message preset when Messages is left empty.
	Locale   string   `env:"AUTHSYNC_LOCALE" envDefault:"en"`
	Messages Messages
}

/*
====================================
BOOTSTRAP CONFIG
====================================
*/

// BootstrapConfig controls the startup session check.
type BootstrapConfig struct {
	// RejectExpiredIDToken treats a JWT id token past its exp as no session.
	RejectExpiredIDToken bool `env:"AUTHSYNC_BOOTSTRAP_REJECT_EXPIRED" envDefault:"true"`
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig sizes the identity event queue of the event bridge.
type EventsConfig struct {
	BufferSize int `env:"AUTHSYNC_EVENTS_BUFFER_SIZE" envDefault:"64"`
}

/*
====================================
DIAGNOSTICS CONFIG
====================================
*/

// DiagnosticsConfig controls the diagnostics dispatcher.
type DiagnosticsConfig struct {
	Enabled    bool `env:"AUTHSYNC_DIAGNOSTICS_ENABLED" envDefault:"false"`
	BufferSize int  `env:"AUTHSYNC_DIAGNOSTICS_BUFFER_SIZE" envDefault:"256"`
	DropIfFull bool `env:"AUTHSYNC_DIAGNOSTICS_DROP_IF_FULL" envDefault:"true"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"AUTHSYNC_METRICS_ENABLED" envDefault:"false"`
	EnableLatencyHistograms bool `env:"AUTHSYNC_METRICS_LATENCY" envDefault:"false"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig selects the token cache the session store mirrors into.
type SessionConfig struct {
	// UseGlobalTokenCache makes the store write session.GlobalTokens() when no
	// cache is passed to the builder. Otherwise each engine gets its own cache.
	UseGlobalTokenCache bool `env:"AUTHSYNC_SESSION_GLOBAL_CACHE" envDefault:"true"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Bootstrap: BootstrapConfig{
			RejectExpiredIDToken: true,
		},
		Events: EventsConfig{
			BufferSize: 64,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Session: SessionConfig{
			UseGlobalTokenCache: true,
		},
		Locale:   "en",
		Messages: DefaultMessages(),
	}
}

// LoadConfigFromEnv reads AUTHSYNC_* variables over the defaults. Messages
// follow AUTHSYNC_LOCALE.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Messages = MessagesFor(cfg.Locale)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0")
	}
	if c.Diagnostics.Enabled && c.Diagnostics.BufferSize <= 0 {
		return errors.New("Diagnostics BufferSize must be > 0 when Enabled is true")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Enabled")
	}
	if strings.TrimSpace(c.Locale) != c.Locale {
		return errors.New("Locale must not contain surrounding whitespace")
	}
	return nil
}

// normalized fills the message set. Empty messages come from the locale
// preset, individual empty fields from the English defaults.
func (c Config) normalized() Config {
	if c.Messages == (Messages{}) {
		c.Messages = MessagesFor(c.Locale)
	}
	c.Messages = c.Messages.withDefaults()
	return c
}
