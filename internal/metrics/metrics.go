// Package metrics provides Prometheus metrics for the lake ETL.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ETL.
type Metrics struct {
	// Ingestion
	RecordsRead     *prometheus.CounterVec // by source collection
	MalformedLines  *prometheus.CounterVec
	RejectedRecords *prometheus.CounterVec // strict mode only

	// Transform
	RowsEmitted *prometheus.CounterVec // by table
	JoinHits    prometheus.Counter
	JoinMisses  prometheus.Counter
	// Fraction of fact rows with a catalog match in the last run.
	JoinMatchRate prometheus.Gauge

	// Output
	WriteDuration *prometheus.HistogramVec // by table
	BytesWritten  *prometheus.CounterVec   // by table

	// Run
	PipelineDuration *prometheus.HistogramVec // by pipeline
	RunsTotal        *prometheus.CounterVec   // by status
}

var defaultMetrics *Metrics

// Init initializes the package-level metrics. Call once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sparkify_etl"
	}

	m := &Metrics{
		RecordsRead: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Input records decoded, by source collection.",
		}, []string{"source"}),
		MalformedLines: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_lines_total",
			Help:      "Input lines that were not valid JSON objects.",
		}, []string{"source"}),
		RejectedRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_records_total",
			Help:      "Records rejected in strict mode due to coercion failures.",
		}, []string{"source"}),
		RowsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_emitted_total",
			Help:      "Rows emitted into star-schema tables.",
		}, []string{"table"}),
		JoinHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_hits_total",
			Help:      "Play events matched to the song catalog.",
		}),
		JoinMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_misses_total",
			Help:      "Play events with no catalog match.",
		}),
		JoinMatchRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "join_match_rate",
			Help:      "Catalog match rate of the most recent run.",
		}),
		WriteDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Dataset publish duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		BytesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Parquet bytes written, by table.",
		}, []string{"table"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"pipeline"}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "ETL runs, by terminal status.",
		}, []string{"status"}),
	}

	defaultMetrics = m
	return m
}

// Get returns the initialized metrics, or nil if Init was never called.
func Get() *Metrics {
	return defaultMetrics
}

// Serve starts the metrics HTTP listener and blocks until ctx is done.
func Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "address", address)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
