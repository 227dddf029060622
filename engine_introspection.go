package authsync

import (
	"context"
	"time"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/jwt"
)

// SessionInfo is the safe introspection view of the current session.
// It intentionally excludes token material.
type SessionInfo struct {
	Phase         Phase
	Authenticated bool
	Username      string
	Version       uint64
	// IDTokenExpiresAt is the exp of a JWT id token; zero for opaque tokens.
	IDTokenExpiresAt time.Time
	TokenCached      bool
}

// HealthStatus is an on-demand provider health result.
type HealthStatus struct {
	ProviderAvailable  bool
	ProviderLatency    time.Duration
	BridgeSubscribed   bool
	DiagnosticsDropped uint64
}

// EngineState is a point-in-time view of the engine's runtime gauges.
type EngineState struct {
	Phase          Phase
	Authenticated  bool
	SessionVersion uint64
	// BridgeQueued is the number of identity events waiting for the bridge.
	BridgeQueued int
	Diagnostics  DiagnosticsStats
}

// State reports the bootstrap phase, the session status and the queue depths
// of the event bridge and the diagnostics dispatcher.
func (e *Engine) State() EngineState {
	if e == nil {
		return EngineState{}
	}
	s := e.store.Snapshot()
	return EngineState{
		Phase:          e.Phase(),
		Authenticated:  s.Authenticated(),
		SessionVersion: s.Version,
		BridgeQueued:   e.bridge.queued(),
		Diagnostics:    e.diag.Stats(),
	}
}

// SessionInfo describes the current session without exposing tokens.
func (e *Engine) SessionInfo() SessionInfo {
	s := e.store.Snapshot()
	info := SessionInfo{
		Phase:         e.Phase(),
		Authenticated: s.Authenticated(),
		Username:      s.Username(),
		Version:       s.Version,
	}
	_, info.TokenCached = e.Tokens().Get()
	if s.IDToken != "" {
		if in, err := jwt.Inspect(s.IDToken); err == nil {
			info.IDTokenExpiresAt = in.ExpiresAt
		}
	}
	return info
}

// Health probes the provider with a current-user lookup. A "no session" answer
// counts as available. Health never writes the store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil {
		return HealthStatus{}
	}

	start := time.Now()
	_, err := e.provider.GetCurrentUser(ctx)
	latency := time.Since(start)

	return HealthStatus{
		ProviderAvailable:  err == nil || identity.KindOf(err) != identity.KindUnavailable,
		ProviderLatency:    latency,
		BridgeSubscribed:   e.bridge.subscribed(),
		DiagnosticsDropped: e.DiagnosticsDropped(),
	}
}
