package internaldefs

import (
	"math"
	"strconv"

	"github.com/MrEthical07/authsync"
)

// CounterDef binds a counter ID to its exported name.
type CounterDef struct {
	ID   authsync.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram ID to its exported base name.
type HistogramDef struct {
	ID   authsync.MetricID
	Name string
	Help string
}

// StateDef binds a value read from [authsync.EngineState] to its exported
// name. Monotonic values are exported as counters, the rest as gauges.
type StateDef struct {
	Name      string
	Help      string
	Monotonic bool
	Value     func(authsync.EngineState) int64
}

// The bootstrap phase is exported as one gauge series per phase, labelled by
// PhaseLabel; the current phase reads 1.
const (
	PhaseName  = "authsync_bootstrap_phase"
	PhaseHelp  = "Current bootstrap phase; the series of the active phase is 1."
	PhaseLabel = "phase"
	BoundLabel = "le"
)

// Phases lists every bootstrap phase in order.
var Phases = []authsync.Phase{
	authsync.PhaseIdle,
	authsync.PhaseLoading,
	authsync.PhaseReadyAuthenticated,
	authsync.PhaseReadyAnonymous,
}

// PhaseValue is 1 when p is the current phase of s.
func PhaseValue(s authsync.EngineState, p authsync.Phase) int64 {
	if s.Phase == p {
		return 1
	}
	return 0
}

// CounterDefs lists every counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: authsync.MetricSignUpSuccess, Name: "authsync_sign_up_success_total", Help: "Sign-ups completed without a confirmation step."},
	{ID: authsync.MetricSignUpConfirmRequired, Name: "authsync_sign_up_confirm_required_total", Help: "Sign-ups that require a confirmation code."},
	{ID: authsync.MetricSignUpFailure, Name: "authsync_sign_up_failure_total", Help: "Failed sign-ups."},
	{ID: authsync.MetricConfirmSuccess, Name: "authsync_confirm_success_total", Help: "Successful sign-up confirmations."},
	{ID: authsync.MetricConfirmFailure, Name: "authsync_confirm_failure_total", Help: "Failed sign-up confirmations."},
	{ID: authsync.MetricResendSuccess, Name: "authsync_resend_success_total", Help: "Confirmation codes resent."},
	{ID: authsync.MetricResendFailure, Name: "authsync_resend_failure_total", Help: "Failed confirmation code resends."},
	{ID: authsync.MetricSignInSuccess, Name: "authsync_sign_in_success_total", Help: "Sign-ins that wrote a session."},
	{ID: authsync.MetricSignInConfirmRequired, Name: "authsync_sign_in_confirm_required_total", Help: "Sign-ins routed to account confirmation."},
	{ID: authsync.MetricSignInFailure, Name: "authsync_sign_in_failure_total", Help: "Failed sign-ins."},
	{ID: authsync.MetricSignInTokensMissing, Name: "authsync_sign_in_tokens_missing_total", Help: "Sign-ins accepted by the provider without tokens."},
	{ID: authsync.MetricSignOut, Name: "authsync_sign_out_total", Help: "Sign-out operations."},
	{ID: authsync.MetricValidationRejected, Name: "authsync_validation_rejected_total", Help: "Submissions rejected before any provider call."},
	{ID: authsync.MetricFlowBusy, Name: "authsync_flow_busy_total", Help: "Submissions rejected while another was in flight."},
	{ID: authsync.MetricBootstrapAuthenticated, Name: "authsync_bootstrap_authenticated_total", Help: "Bootstraps that restored a session."},
	{ID: authsync.MetricBootstrapAnonymous, Name: "authsync_bootstrap_anonymous_total", Help: "Bootstraps that ended anonymous."},
	{ID: authsync.MetricBridgeEventApplied, Name: "authsync_bridge_event_applied_total", Help: "Identity events applied to the session."},
	{ID: authsync.MetricBridgeEventFailure, Name: "authsync_bridge_event_failure_total", Help: "Identity failure events that cleared the session."},
	{ID: authsync.MetricBridgeEventIgnored, Name: "authsync_bridge_event_ignored_total", Help: "Identity events that changed nothing."},
	{ID: authsync.MetricSessionResolveSuccess, Name: "authsync_session_resolve_success_total", Help: "Successful provider session resolutions."},
	{ID: authsync.MetricSessionResolveFailure, Name: "authsync_session_resolve_failure_total", Help: "Failed provider session resolutions."},
	{ID: authsync.MetricSessionResolveShared, Name: "authsync_session_resolve_shared_total", Help: "Resolutions shared with a concurrent caller."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: authsync.MetricSessionResolveLatency, Name: "authsync_session_resolve_latency_seconds", Help: "Provider session resolution latency."},
}

// StateDefs lists the values exported from the engine state.
var StateDefs = []StateDef{
	{
		Name:  "authsync_authenticated",
		Help:  "1 while the session store holds a complete session.",
		Value: func(s authsync.EngineState) int64 { return boolValue(s.Authenticated) },
	},
	{
		Name:  "authsync_session_version",
		Help:  "Effective session writes since the engine was built.",
		Value: func(s authsync.EngineState) int64 { return int64(s.SessionVersion) },
	},
	{
		Name:  "authsync_bridge_queue_depth",
		Help:  "Identity events waiting for the event bridge.",
		Value: func(s authsync.EngineState) int64 { return int64(s.BridgeQueued) },
	},
	{
		Name:  "authsync_diagnostics_queue_depth",
		Help:  "Diagnostic events waiting for the sink.",
		Value: func(s authsync.EngineState) int64 { return int64(s.Diagnostics.Queued) },
	},
	{
		Name:      "authsync_diagnostics_delivered_total",
		Help:      "Diagnostic events handed to the sink.",
		Monotonic: true,
		Value:     func(s authsync.EngineState) int64 { return int64(s.Diagnostics.Delivered) },
	},
	{
		Name:      "authsync_diagnostics_dropped_total",
		Help:      "Diagnostic events dropped because the queue was full.",
		Monotonic: true,
		Value:     func(s authsync.EngineState) int64 { return int64(s.Diagnostics.Dropped) },
	},
}

// HistogramBounds are the bucket upper bounds in seconds.
var HistogramBounds = [8]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, math.Inf(1)}

// FormatBound renders a bucket bound the way Prometheus writes le labels.
func FormatBound(b float64) string {
	if math.IsInf(b, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(b, 'g', -1, 64)
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
