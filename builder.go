package authsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/session"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config   Config
	provider identity.Provider
	logger   *slog.Logger
	tokens   *session.TokenCache
	diagSink DiagnosticsSink

	metricsEnabled    *bool
	latencyHistograms *bool

	built bool
}

// New returns a builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithProvider sets the identity provider client. Required.
func (b *Builder) WithProvider(p identity.Provider) *Builder {
	b.provider = p
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithTokenCache makes the session store mirror into c instead of the cache
// selected by Config.Session.
func (b *Builder) WithTokenCache(c *session.TokenCache) *Builder {
	b.tokens = c
	return b
}

// WithDiagnosticsSink sets the receiver of diagnostic events. It is used only
// when Config.Diagnostics.Enabled is true.
func (b *Builder) WithDiagnosticsSink(sink DiagnosticsSink) *Builder {
	b.diagSink = sink
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled. The override holds
// regardless of the order in which WithConfig is called.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.metricsEnabled = &enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
// Like WithMetricsEnabled it survives a later WithConfig.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.latencyHistograms = &enabled
	return b
}

// Build validates the configuration and returns an idle engine. Call
// [Engine.Start] to run bootstrap.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	cfg := b.config
	if b.metricsEnabled != nil {
		cfg.Metrics.Enabled = *b.metricsEnabled
	}
	if b.latencyHistograms != nil {
		cfg.Metrics.EnableLatencyHistograms = *b.latencyHistograms
	}
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	cache := b.tokens
	if cache == nil && !cfg.Session.UseGlobalTokenCache {
		cache = session.NewTokenCache()
	}

	e := &Engine{
		config:   cfg,
		provider: b.provider,
		store:    session.NewStore(cache),
		log:      logger.With("component", "authsync"),
		metrics:  NewMetrics(cfg.Metrics),
		diag:     newDiagnosticsDispatcher(cfg.Diagnostics, b.diagSink),
		ready:    make(chan struct{}),
		now:      time.Now,
	}
	e.lifetime, e.stopLifetime = context.WithCancel(context.Background())
	e.bridge = newEventBridge(e, cfg.Events.BufferSize)

	b.built = true
	return e, nil
}
