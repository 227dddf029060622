package authsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/internal/flows"
	"github.com/MrEthical07/authsync/session"
)

const resolveKey = "session"

// Engine keeps the client's session in sync with the identity provider.
//
// It owns the session store, the event bridge and the bootstrap barrier. All
// methods are safe for concurrent use.
type Engine struct {
	config   Config
	provider identity.Provider
	store    *session.Store
	log      *slog.Logger
	metrics  *Metrics
	diag     *diagnosticsDispatcher
	bridge   *eventBridge
	now      func() time.Time

	resolver singleflight.Group

	// lifetime carries shared provider calls. Close cancels it.
	lifetime     context.Context
	stopLifetime context.CancelFunc

	phase     atomic.Int32
	started   atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once

	closed    atomic.Bool
	closeOnce sync.Once
}

// Store returns the session store.
func (e *Engine) Store() *session.Store {
	return e.store
}

// Tokens returns the token cache the store mirrors its id token into.
func (e *Engine) Tokens() *session.TokenCache {
	return e.store.Tokens()
}

// Session returns a snapshot of the current session.
func (e *Engine) Session() session.Session {
	return e.store.Snapshot()
}

// Messages returns the message set flows use.
func (e *Engine) Messages() Messages {
	return e.config.Messages
}

// SignOut ends the provider session and clears the store. The store is cleared
// even when the provider call fails; that failure is still returned.
func (e *Engine) SignOut(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	err := e.provider.SignOut(ctx)
	if e.clearAuth() == nil {
		e.metricInc(MetricSignOut)
	}
	if err != nil {
		e.log.Info("provider sign-out failed", "op", "SignOut", "kind", identity.KindOf(err).String(), "error", err)
		e.diagnose(ctx, DiagnosticEvent{
			EventType: diagSignOutFailure,
			Op:        "SignOut",
			Kind:      identity.KindOf(err).String(),
			Class:     classOf(err).String(),
			Error:     err.Error(),
		})
		return &FlowError{
			Op:    "SignOut",
			Class: classOf(err),
			Kind:  identity.KindOf(err),
			Err:   err,
		}
	}
	return nil
}

// Close stops the event bridge and the diagnostics dispatcher and cancels
// in-flight provider reads. After Close returns no component of the engine
// writes the store, and the token cache no longer holds a token this engine
// wrote.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.stopLifetime()
		e.store.Seal()
		e.bridge.close()
		e.diag.Close()
	})
}

// DiagnosticsDropped returns the number of diagnostic events lost to a full queue.
func (e *Engine) DiagnosticsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.diag.Dropped()
}

// MetricsSnapshot returns the engine counters. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) diagnose(ctx context.Context, ev DiagnosticEvent) {
	if e.diag == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}
	e.diag.Emit(ctx, ev)
}

// resolveSession reads the provider session. Concurrent callers share one
// pair of provider calls. The shared calls run until they finish or the engine
// closes; a caller whose ctx ends first gets a provider failure while the
// others still receive the result.
func (e *Engine) resolveSession(ctx context.Context) flows.ResolveResult {
	ch := e.resolver.DoChan(resolveKey, func() (any, error) {
		rctx, cancel := e.detach(ctx)
		defer cancel()
		start := time.Now()
		res := flows.RunResolveSession(rctx, flows.SessionDeps{
			GetCurrentUser:   e.provider.GetCurrentUser,
			FetchAuthSession: e.provider.FetchAuthSession,
			Now:              e.now,
			RejectExpired:    e.config.Bootstrap.RejectExpiredIDToken,
		})
		e.metrics.Observe(MetricSessionResolveLatency, time.Since(start))
		if res.OK() {
			e.metricInc(MetricSessionResolveSuccess)
		} else {
			e.metricInc(MetricSessionResolveFailure)
		}
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Shared {
			e.metricInc(MetricSessionResolveShared)
		}
		return r.Val.(flows.ResolveResult)
	case <-ctx.Done():
		return flows.ResolveResult{
			Failure: flows.ResolveFailureProvider,
			Err:     identity.NewError("resolveSession", identity.KindUnavailable, "", ctx.Err()),
		}
	}
}

// detach returns a context with the values of ctx that is cancelled only when
// the engine closes.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(e.lifetime, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// applyResolved writes a resolved session. The username always comes from the
// provider. It returns ErrEngineClosed once Close has started.
func (e *Engine) applyResolved(res flows.ResolveResult) error {
	err := e.store.SetSession(res.AccessToken, res.IDToken, session.User{Username: res.Username})
	if errors.Is(err, session.ErrSealed) {
		return ErrEngineClosed
	}
	return err
}

// clearAuth clears the store unless Close has started.
func (e *Engine) clearAuth() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.store.ClearAuth()
	return nil
}

func (e *Engine) checkReady() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if !e.Phase().Ready() {
		return ErrNotReady
	}
	return nil
}
