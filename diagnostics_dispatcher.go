package authsync

import (
	"context"
	"sync"
	"sync/atomic"
)

// diagnosticsDispatcher hands diagnostic events to the sink from one worker.
// Events wait in a bounded queue; the worker takes the whole queue at once and
// delivers it in emit order, so a slow sink frees the queue a batch at a time.
type diagnosticsDispatcher struct {
	sink     DiagnosticsSink
	capacity int
	dropFull bool

	mu     sync.Mutex
	queue  []DiagnosticEvent
	closed bool

	wake  chan struct{}
	space chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// DiagnosticsStats counts dispatcher activity.
type DiagnosticsStats struct {
	Queued    int
	Delivered uint64
	Dropped   uint64
}

// newDiagnosticsDispatcher returns nil when diagnostics are disabled; all
// methods accept a nil receiver.
func newDiagnosticsDispatcher(cfg DiagnosticsConfig, sink DiagnosticsSink) *diagnosticsDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &diagnosticsDispatcher{
		sink:     sink,
		capacity: cfg.BufferSize,
		dropFull: cfg.DropIfFull,
		queue:    make([]DiagnosticEvent, 0, cfg.BufferSize),
		wake:     make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Emit queues event. With DropIfFull a full queue drops and counts the event;
// otherwise Emit waits for space, ctx or Close.
func (d *diagnosticsDispatcher) Emit(ctx context.Context, event DiagnosticEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		if len(d.queue) < d.capacity {
			d.queue = append(d.queue, event)
			d.mu.Unlock()
			signal(d.wake)
			return
		}
		d.mu.Unlock()

		if d.dropFull {
			d.dropped.Add(1)
			return
		}
		select {
		case <-d.space:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
}

func (d *diagnosticsDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.wake:
		case <-d.done:
			d.deliver(d.take())
			return
		}
		d.deliver(d.take())
	}
}

// take empties the queue and wakes one blocked emitter.
func (d *diagnosticsDispatcher) take() []DiagnosticEvent {
	d.mu.Lock()
	batch := d.queue
	d.queue = make([]DiagnosticEvent, 0, d.capacity)
	d.mu.Unlock()
	if len(batch) > 0 {
		signal(d.space)
	}
	return batch
}

func (d *diagnosticsDispatcher) deliver(batch []DiagnosticEvent) {
	for _, ev := range batch {
		d.sink.Emit(context.Background(), ev)
		d.delivered.Add(1)
	}
}

// Close delivers queued events to the sink and stops the worker. Events
// emitted after Close are discarded.
func (d *diagnosticsDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		d.wg.Wait()
	})
}

func (d *diagnosticsDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stats reports the queue depth and delivery counters.
func (d *diagnosticsDispatcher) Stats() DiagnosticsStats {
	if d == nil {
		return DiagnosticsStats{}
	}
	d.mu.Lock()
	queued := len(d.queue)
	d.mu.Unlock()
	return DiagnosticsStats{
		Queued:    queued,
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
