package prometheus

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/identity/memory"
)

type fakeSource struct {
	snapshot authsync.MetricsSnapshot
	state    authsync.EngineState
}

func (f fakeSource) MetricsSnapshot() authsync.MetricsSnapshot { return f.snapshot }
func (f fakeSource) State() authsync.EngineState               { return f.state }

func TestRenderOmitsCountersWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsync.MetricsSnapshot{
			Counters:   map[authsync.MetricID]uint64{},
			Histograms: map[authsync.MetricID][]uint64{},
		},
		state: authsync.EngineState{Phase: authsync.PhaseLoading, BridgeQueued: 3},
	})

	out := exp.Render()
	if strings.Contains(out, "authsync_sign_in_success_total") {
		t.Fatalf("expected no counters for disabled metrics, got:\n%s", out)
	}
	for _, line := range []string{
		`authsync_bootstrap_phase{phase="loading"} 1`,
		`authsync_bootstrap_phase{phase="idle"} 0`,
		"authsync_bridge_queue_depth 3",
		"authsync_authenticated 0",
	} {
		if !strings.Contains(out, line+"\n") {
			t.Fatalf("expected %q in output, got:\n%s", line, out)
		}
	}
	if NewPrometheusExporterFromSource(nil).Render() != "" {
		t.Fatal("expected empty output without a source")
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsync.MetricsSnapshot{
			Counters: map[authsync.MetricID]uint64{
				authsync.MetricSignInSuccess: 7,
			},
			Histograms: map[authsync.MetricID][]uint64{
				authsync.MetricSessionResolveLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			LatencySum: 1500 * time.Millisecond,
		},
		state: authsync.EngineState{
			Phase:         authsync.PhaseReadyAuthenticated,
			Authenticated: true,
			Diagnostics:   authsync.DiagnosticsStats{Queued: 1, Delivered: 5, Dropped: 2},
		},
	})

	out := exp.Render()
	if !strings.Contains(out, "authsync_sign_in_success_total 7") {
		t.Fatalf("expected sign_in_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authsync_session_resolve_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authsync_session_resolve_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	for _, line := range []string{
		"authsync_session_resolve_latency_seconds_sum 1.5",
		"authsync_session_resolve_latency_seconds_count 36",
		"# TYPE authsync_diagnostics_dropped_total counter",
		"authsync_diagnostics_dropped_total 2",
		"authsync_diagnostics_delivered_total 5",
		"# TYPE authsync_diagnostics_queue_depth gauge",
		"authsync_diagnostics_queue_depth 1",
		"authsync_authenticated 1",
		`authsync_bootstrap_phase{phase="ready_authenticated"} 1`,
	} {
		if !strings.Contains(out, line+"\n") {
			t.Fatalf("expected %q in output, got:\n%s", line, out)
		}
	}
	if exp.Render() != out {
		t.Fatal("expected deterministic output")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsync.MetricsSnapshot{
			Counters:   map[authsync.MetricID]uint64{authsync.MetricSignOut: 1},
			Histograms: map[authsync.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authsync_sign_out_total 1") {
		t.Fatalf("expected sign_out counter, got:\n%s", rec.Body.String())
	}
}

func TestExporterReadsLiveEngine(t *testing.T) {
	cfg := authsync.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Session.UseGlobalTokenCache = false

	provider, err := memory.New()
	if err != nil {
		t.Fatalf("memory.New failed: %v", err)
	}
	e, err := authsync.New().
		WithConfig(cfg).
		WithProvider(provider).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := NewPrometheusExporter(e).Render()
	if !strings.Contains(out, "authsync_bootstrap_anonymous_total 1") {
		t.Fatalf("expected anonymous bootstrap counter, got:\n%s", out)
	}
	if !strings.Contains(out, `authsync_bootstrap_phase{phase="ready_anonymous"} 1`) {
		t.Fatalf("expected the anonymous phase series set, got:\n%s", out)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsync.MetricsSnapshot{
			Counters: map[authsync.MetricID]uint64{
				authsync.MetricSignInSuccess:         1000,
				authsync.MetricSignInFailure:         40,
				authsync.MetricSignUpSuccess:         800,
				authsync.MetricSignUpFailure:         10,
				authsync.MetricBridgeEventApplied:    800,
				authsync.MetricBridgeEventFailure:    20,
				authsync.MetricSessionResolveSuccess: 3,
			},
			Histograms: map[authsync.MetricID][]uint64{
				authsync.MetricSessionResolveLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
