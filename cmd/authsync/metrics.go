package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/authsync"
	otelexport "github.com/MrEthical07/authsync/metrics/export/otel"
	promexport "github.com/MrEthical07/authsync/metrics/export/prometheus"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Bootstrap once and print or serve engine metrics",
	Long: `Bootstrap the engine with metrics enabled and render its counters.

Examples:
  authsync metrics                      # Prometheus text
  authsync metrics --format otel        # OTel instruments via a manual reader
  authsync metrics --serve :9464        # serve /metrics until interrupted`,
	RunE: runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().String("format", "prometheus", "output format: prometheus or otel")
	metricsCmd.Flags().String("serve", "", "serve Prometheus metrics on this address")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	serveAddr, _ := cmd.Flags().GetString("serve")

	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := openRuntime(ctx, runtimeOptions{metrics: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	if serveAddr != "" {
		return serveMetrics(cmd, rt.engine, serveAddr)
	}

	switch format {
	case "prometheus":
		_, err := io.WriteString(cmd.OutOrStdout(), promexport.NewPrometheusExporter(rt.engine).Render())
		return err
	case "otel":
		return writeOTel(ctx, cmd.OutOrStdout(), rt.engine)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func serveMetrics(cmd *cobra.Command, e *authsync.Engine, addr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promexport.NewPrometheusExporter(e).Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on %s/metrics\n", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeOTel(ctx context.Context, w io.Writer, e *authsync.Engine) error {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	exp, err := otelexport.NewOTelExporter(provider.Meter("authsync"), e)
	if err != nil {
		return err
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	// Attributed series are printed one line per attribute set.
	values := map[string]float64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[seriesName(m.Name, dp.Attributes)] += float64(dp.Value)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[seriesName(m.Name, dp.Attributes)] += float64(dp.Value)
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					values[seriesName(m.Name, dp.Attributes)] += dp.Value
				}
			}
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s %g\n", name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

func seriesName(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	parts := make([]string, 0, attrs.Len())
	for _, kv := range attrs.ToSlice() {
		parts = append(parts, fmt.Sprintf("%s=%q", kv.Key, kv.Value.Emit()))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}
