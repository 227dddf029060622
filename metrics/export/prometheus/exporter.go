package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authsync.MetricsSnapshot
	State() authsync.EngineState
}

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from engine.
func NewPrometheusExporter(engine *authsync.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any
// snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. The engine state families are always
// present; counters and the latency histogram only while metrics are enabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	state := p.source.State()

	var w writer
	w.b.Grow(4096)

	phase := family{name: internaldefs.PhaseName, help: internaldefs.PhaseHelp, kind: "gauge"}
	for _, ph := range internaldefs.Phases {
		phase.samples = append(phase.samples, sample{
			labels: []label{{internaldefs.PhaseLabel, ph.String()}},
			value:  strconv.FormatInt(internaldefs.PhaseValue(state, ph), 10),
		})
	}
	w.family(phase)

	for _, def := range internaldefs.StateDefs {
		kind := "gauge"
		if def.Monotonic {
			kind = "counter"
		}
		w.family(family{
			name:    def.Name,
			help:    def.Help,
			kind:    kind,
			samples: []sample{{value: strconv.FormatInt(def.Value(state), 10)}},
		})
	}

	if len(snapshot.Counters) == 0 {
		return w.b.String()
	}

	for _, def := range internaldefs.CounterDefs {
		w.family(family{
			name:    def.Name,
			help:    def.Help,
			kind:    "counter",
			samples: []sample{{value: strconv.FormatUint(snapshot.Counters[def.ID], 10)}},
		})
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		w.family(histogram(def, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)), snapshot.LatencySum.Seconds()))
	}

	return w.b.String()
}

type label struct {
	name, value string
}

type sample struct {
	suffix string
	labels []label
	value  string
}

type family struct {
	name, help, kind string
	samples          []sample
}

func histogram(def internaldefs.HistogramDef, cumulative [8]uint64, sum float64) family {
	f := family{name: def.Name, help: def.Help, kind: "histogram"}
	for i, bound := range internaldefs.HistogramBounds {
		f.samples = append(f.samples, sample{
			suffix: "_bucket",
			labels: []label{{internaldefs.BoundLabel, internaldefs.FormatBound(bound)}},
			value:  strconv.FormatUint(cumulative[i], 10),
		})
	}
	f.samples = append(f.samples,
		sample{suffix: "_sum", value: strconv.FormatFloat(sum, 'g', -1, 64)},
		sample{suffix: "_count", value: strconv.FormatUint(cumulative[len(cumulative)-1], 10)},
	)
	return f
}

type writer struct {
	b strings.Builder
}

func (w *writer) family(f family) {
	w.b.WriteString("# HELP ")
	w.b.WriteString(f.name)
	w.b.WriteByte(' ')
	w.b.WriteString(escapeHelp(f.help))
	w.b.WriteString("\n# TYPE ")
	w.b.WriteString(f.name)
	w.b.WriteByte(' ')
	w.b.WriteString(f.kind)
	w.b.WriteByte('\n')

	for _, s := range f.samples {
		w.b.WriteString(f.name)
		w.b.WriteString(s.suffix)
		if len(s.labels) > 0 {
			w.b.WriteByte('{')
			for i, l := range s.labels {
				if i > 0 {
					w.b.WriteByte(',')
				}
				w.b.WriteString(l.name)
				w.b.WriteString(`="`)
				w.b.WriteString(escapeLabel(l.value))
				w.b.WriteByte('"')
			}
			w.b.WriteByte('}')
		}
		w.b.WriteByte(' ')
		w.b.WriteString(s.value)
		w.b.WriteByte('\n')
	}
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}
