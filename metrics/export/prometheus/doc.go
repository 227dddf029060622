// Package prometheus renders authsync metrics in Prometheus text format.
//
// [NewPrometheusExporter] reads the engine state and counter snapshot per
// scrape. The bootstrap phase is one authsync_bootstrap_phase series per
// phase; queue depths and the authenticated flag are plain gauges. Counter
// names are authsync_*_total and the single histogram is
// authsync_session_resolve_latency_seconds, with a real _sum.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
