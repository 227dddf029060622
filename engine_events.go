package authsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authsync/identity"
	"github.com/MrEthical07/authsync/internal/flows"
)

type bridgeItem struct {
	event identity.Event
	// ack is closed after the item is handled; set only by flush.
	ack chan struct{}
}

// eventBridge applies provider lifecycle events to the session store. Events
// are queued by the provider callback and applied one at a time by a single
// worker, after bootstrap has finished.
type eventBridge struct {
	e  *Engine
	ch chan bridgeItem

	done      chan struct{}
	wg        sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	unsubMu     sync.Mutex
	unsubscribe func()
}

func newEventBridge(e *Engine, buffer int) *eventBridge {
	if buffer <= 0 {
		buffer = 1
	}
	return &eventBridge{
		e:    e,
		ch:   make(chan bridgeItem, buffer),
		done: make(chan struct{}),
	}
}

func (b *eventBridge) start(p identity.Provider) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go b.run()

	unsub := p.Subscribe(b.enqueue)
	b.unsubMu.Lock()
	if b.closed.Load() {
		b.unsubMu.Unlock()
		unsub()
		return
	}
	b.unsubscribe = unsub
	b.unsubMu.Unlock()
}

// enqueue is the provider callback. It waits for queue space so SignedOut is
// never lost, and returns immediately once the bridge is closed.
func (b *eventBridge) enqueue(ev identity.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.ch <- bridgeItem{event: ev}:
	case <-b.done:
	}
}

// queued counts pending events, including flush barriers.
func (b *eventBridge) queued() int {
	return len(b.ch)
}

func (b *eventBridge) subscribed() bool {
	b.unsubMu.Lock()
	defer b.unsubMu.Unlock()
	return b.unsubscribe != nil
}

// flush waits until every event queued before it has been applied.
func (b *eventBridge) flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case b.ch <- bridgeItem{ack: ack}:
	case <-b.done:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-b.done:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *eventBridge) run() {
	defer b.wg.Done()

	select {
	case <-b.e.ready:
	case <-b.done:
		return
	}

	for {
		select {
		case <-b.done:
			return
		case it := <-b.ch:
			select {
			case <-b.done:
				return
			default:
			}
			if it.ack != nil {
				close(it.ack)
				continue
			}
			b.apply(it.event)
		}
	}
}

func (b *eventBridge) apply(ev identity.Event) {
	e := b.e
	log := e.log.With("event", string(ev.Kind), "event_id", ev.ID.String())

	switch flows.EventActionFor(ev.Kind) {
	case flows.EventResolve:
		ctx, cancel := b.context()
		res := e.resolveSession(ctx)
		cancel()
		if !res.OK() {
			log.Info("session refetch after event failed", "reason", res.Failure.String())
			e.metricInc(MetricBridgeEventIgnored)
			return
		}
		if err := e.applyResolved(res); err != nil {
			if !errors.Is(err, ErrEngineClosed) {
				log.Warn("session write after event failed", "error", err)
			}
			return
		}
		log.Debug("session refreshed from event", "username", res.Username)
		e.metricInc(MetricBridgeEventApplied)

	case flows.EventClear:
		if e.clearAuth() != nil {
			return
		}
		log.Debug("session cleared by event")
		e.metricInc(MetricBridgeEventApplied)

	case flows.EventClearAndReport:
		if e.clearAuth() != nil {
			return
		}
		log.Info("identity failure event cleared session")
		diag := DiagnosticEvent{
			EventType: diagIdentityFailure,
			Kind:      string(ev.Kind),
			Metadata:  map[string]string{"event_id": ev.ID.String()},
		}
		if ev.Payload != nil {
			diag.Error = payloadText(ev.Payload)
		}
		e.diagnose(context.Background(), diag)
		e.metricInc(MetricBridgeEventFailure)

	default:
		log.Debug("ignoring unrecognized identity event")
		e.metricInc(MetricBridgeEventIgnored)
	}
}

// context is canceled when the bridge closes.
func (b *eventBridge) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-b.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// close unsubscribes exactly once and stops the worker; queued events are
// dropped. It waits for an event being applied to finish.
func (b *eventBridge) close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)

		b.unsubMu.Lock()
		unsub := b.unsubscribe
		b.unsubscribe = nil
		b.unsubMu.Unlock()
		if unsub != nil {
			unsub()
		}

		b.wg.Wait()
	})
}

func payloadText(p any) string {
	switch v := p.(type) {
	case error:
		return v.Error()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}
