package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authsync.MetricsSnapshot
	State() authsync.EngineState
}

type counterInstrument struct {
	id         authsync.MetricID
	instrument metric.Int64ObservableCounter
}

type stateInstrument struct {
	def        internaldefs.StateDef
	instrument metric.Int64Observable
}

type histogramInstrument struct {
	id      authsync.MetricID
	buckets metric.Int64ObservableGauge
	bounds  [8]metric.ObserveOption
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// OTelExporter publishes engine metrics as OTel observable instruments. One
// callback reads the engine state and counter snapshot per collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	phase      metric.Int64ObservableGauge
	phaseAttrs []metric.ObserveOption
	states     []stateInstrument
	counters   []counterInstrument
	histograms []histogramInstrument
}

func NewOTelExporter(meter metric.Meter, engine *authsync.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	phase, err := meter.Int64ObservableGauge(internaldefs.PhaseName, metric.WithDescription(internaldefs.PhaseHelp))
	if err != nil {
		return nil, fmt.Errorf("create phase gauge: %w", err)
	}
	e.phase = phase
	for _, p := range internaldefs.Phases {
		e.phaseAttrs = append(e.phaseAttrs, metric.WithAttributes(attribute.String(internaldefs.PhaseLabel, p.String())))
	}
	observables = append(observables, phase)

	for _, def := range internaldefs.StateDefs {
		var ins metric.Int64Observable
		if def.Monotonic {
			ins, err = meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		} else {
			ins, err = meter.Int64ObservableGauge(def.Name, metric.WithDescription(def.Help))
		}
		if err != nil {
			return nil, fmt.Errorf("create state instrument %s: %w", def.Name, err)
		}
		e.states = append(e.states, stateInstrument{def: def, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h, err := newHistogramInstrument(meter, def)
		if err != nil {
			return nil, err
		}
		e.histograms = append(e.histograms, h)
		observables = append(observables, h.buckets, h.count, h.sum)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func newHistogramInstrument(meter metric.Meter, def internaldefs.HistogramDef) (histogramInstrument, error) {
	h := histogramInstrument{id: def.ID}
	var err error
	h.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription(def.Help+" Cumulative count per upper bound."))
	if err != nil {
		return h, fmt.Errorf("create histogram buckets %s: %w", def.Name, err)
	}
	for i, b := range internaldefs.HistogramBounds {
		h.bounds[i] = metric.WithAttributes(attribute.String(internaldefs.BoundLabel, internaldefs.FormatBound(b)))
	}
	h.count, err = meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
	if err != nil {
		return h, fmt.Errorf("create histogram count %s: %w", def.Name, err)
	}
	h.sum, err = meter.Float64ObservableGauge(def.Name+"_sum", metric.WithDescription(def.Help+" Sum in seconds."), metric.WithUnit("s"))
	if err != nil {
		return h, fmt.Errorf("create histogram sum %s: %w", def.Name, err)
	}
	return h, nil
}

// observe runs on every collection. Counters and histograms are skipped while
// engine metrics are disabled; the state instruments are always reported.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	state := e.source.State()
	for i, p := range internaldefs.Phases {
		o.ObserveInt64(e.phase, internaldefs.PhaseValue(state, p), e.phaseAttrs[i])
	}
	for _, s := range e.states {
		o.ObserveInt64(s.instrument, s.def.Value(state))
	}

	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 {
		return nil
	}
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets, int64(v), h.bounds[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(h.sum, snapshot.LatencySum.Seconds())
	}
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
