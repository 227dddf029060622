package authsync

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSignUpSuccess counts sign-ups completed without a confirmation step.
	MetricSignUpSuccess MetricID = iota
	// MetricSignUpConfirmRequired counts sign-ups that need a confirmation code.
	MetricSignUpConfirmRequired
	// MetricSignUpFailure counts sign-ups rejected by the provider or unreachable.
	MetricSignUpFailure
	MetricConfirmSuccess
	MetricConfirmFailure
	MetricResendSuccess
	MetricResendFailure
	// MetricSignInSuccess counts sign-ins that wrote a session, including the
	// already-authenticated path.
	MetricSignInSuccess
	// MetricSignInConfirmRequired counts sign-ins routed to account confirmation.
	MetricSignInConfirmRequired
	MetricSignInFailure
	// MetricSignInTokensMissing counts sign-ins the provider accepted without tokens.
	MetricSignInTokensMissing
	MetricSignOut
	// MetricValidationRejected counts submissions rejected before any provider call.
	MetricValidationRejected
	// MetricFlowBusy counts submissions rejected while another one was in flight.
	MetricFlowBusy
	MetricBootstrapAuthenticated
	MetricBootstrapAnonymous
	// MetricBridgeEventApplied counts identity events that changed or refreshed the session.
	MetricBridgeEventApplied
	// MetricBridgeEventFailure counts failure events that cleared the session.
	MetricBridgeEventFailure
	MetricBridgeEventIgnored
	MetricSessionResolveSuccess
	MetricSessionResolveFailure
	// MetricSessionResolveShared counts callers that received a result shared with
	// another concurrent caller.
	MetricSessionResolveShared
	// MetricSessionResolveLatency is the only histogram.
	MetricSessionResolveLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A nil or disabled Metrics records
// nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
	latencySum    atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// LatencySum is the total of every duration observed into
	// MetricSessionResolveLatency.
	LatencySum time.Duration
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricSessionResolveLatency
// has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricSessionResolveLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	m.latencySum.Add(int64(d))
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricSessionResolveLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricSessionResolveLatency].buckets[i])
		}
		s.Histograms[MetricSessionResolveLatency] = buckets
		s.LatencySum = time.Duration(m.latencySum.Load())
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
