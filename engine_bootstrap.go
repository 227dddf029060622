package authsync

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsync/internal/flows"
)

// Start subscribes the event bridge and runs the one-shot bootstrap: it
// resolves the provider session and leaves the engine ready, authenticated or
// anonymous. Start blocks until bootstrap finishes. Bootstrap failures are
// never returned; they end in PhaseReadyAnonymous.
func (e *Engine) Start(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	e.setPhase(PhaseLoading)
	// Subscribe before resolving so no event raised during bootstrap is lost.
	// The bridge holds events until bootstrap has written its result.
	e.bridge.start(e.provider)

	res := e.resolveSession(ctx)
	if res.OK() {
		err := e.applyResolved(res)
		if err == nil {
			e.log.Info("bootstrap restored session", "phase", PhaseReadyAuthenticated.String(), "username", res.Username)
			e.metricInc(MetricBootstrapAuthenticated)
			e.finishBootstrap(PhaseReadyAuthenticated)
			return nil
		}
		if errors.Is(err, ErrEngineClosed) {
			e.finishBootstrap(PhaseReadyAnonymous)
			return nil
		}
	}

	if e.clearAuth() != nil {
		e.finishBootstrap(PhaseReadyAnonymous)
		return nil
	}
	e.log.Info("bootstrap found no session",
		"phase", PhaseReadyAnonymous.String(),
		"reason", res.Failure.String(),
	)
	if res.Err != nil {
		e.log.Debug("bootstrap provider error", "error", res.Err)
	}
	if res.Failure != flows.ResolveFailureNoUser {
		ev := DiagnosticEvent{
			EventType: diagBootstrap,
			Op:        "Start",
			Username:  res.Username,
			Metadata:  map[string]string{"reason": res.Failure.String()},
		}
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
		e.diagnose(ctx, ev)
	}
	e.metricInc(MetricBootstrapAnonymous)
	e.finishBootstrap(PhaseReadyAnonymous)
	return nil
}

// Ready is closed once bootstrap has finished.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Phase reports the bootstrap phase.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// InitialRoute is the screen to show after bootstrap. It is RouteNone until
// bootstrap has finished.
func (e *Engine) InitialRoute() Route {
	switch e.Phase() {
	case PhaseReadyAuthenticated:
		return RouteApp
	case PhaseReadyAnonymous:
		return RouteAuth
	}
	return RouteNone
}

func (e *Engine) setPhase(p Phase) {
	e.phase.Store(int32(p))
}

func (e *Engine) finishBootstrap(p Phase) {
	e.setPhase(p)
	e.readyOnce.Do(func() { close(e.ready) })
}
