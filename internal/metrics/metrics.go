package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for mmgen
type Metrics struct {
	// Generation metrics
	RecordsAccepted *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	Candidates      *prometheus.CounterVec
	Target          *prometheus.GaugeVec

	// Provider metrics
	LLMRequests *prometheus.CounterVec
	LLMLatency  *prometheus.HistogramVec

	// Persistence metrics
	CheckpointWrites *prometheus.CounterVec
	RecordsExported  prometheus.Counter

	// Tool metrics
	ToolsDiscovered *prometheus.GaugeVec
	ToolDispatches  *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec

	EventsPublished *prometheus.CounterVec
	LogEntries      *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			RecordsAccepted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_records_accepted_total",
					Help: "Records accepted into the dataset",
				},
				[]string{"recipe", "pattern"},
			),
			RecordsRejected: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_records_rejected_total",
					Help: "Candidate records dropped by validation",
				},
				[]string{"recipe", "reason"},
			),
			Candidates: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_candidates_total",
					Help: "Synthesis attempts by outcome",
				},
				[]string{"recipe", "outcome"},
			),
			Target: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "mmgen_target_records",
					Help: "Configured target size of the dataset",
				},
				[]string{"recipe"},
			),
			LLMRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_llm_requests_total",
					Help: "Total number of language model requests",
				},
				[]string{"provider", "model", "success"},
			),
			LLMLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mmgen_llm_request_duration_seconds",
					Help:    "Language model request latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
				},
				[]string{"provider", "model"},
			),
			CheckpointWrites: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_checkpoint_writes_total",
					Help: "Checkpoint saves by result",
				},
				[]string{"result"},
			),
			RecordsExported: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "mmgen_records_exported_total",
					Help: "Records written to the export database",
				},
			),
			ToolsDiscovered: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "mmgen_tools_discovered",
					Help: "Tools discovered per server",
				},
				[]string{"server"},
			),
			ToolDispatches: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_tool_dispatches_total",
					Help: "Backend calls made by generated tools",
				},
				[]string{"tool", "success"},
			),
			DispatchLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mmgen_tool_dispatch_duration_seconds",
					Help:    "Backend call latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_events_published_total",
					Help: "Events published to the message bus",
				},
				[]string{"type"},
			),
			LogEntries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mmgen_log_entries_total",
					Help: "Log entries by level and source",
				},
				[]string{"level", "source"},
			),
		}
	})

	return sharedMetrics
}

// RecordLLMRequest records one language model call
func (m *Metrics) RecordLLMRequest(provider, model string, success bool, latency time.Duration) {
	m.LLMRequests.WithLabelValues(provider, model, strconv.FormatBool(success)).Inc()
	m.LLMLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordDispatch records one backend call
func (m *Metrics) RecordDispatch(tool string, success bool, latency time.Duration) {
	m.ToolDispatches.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
	m.DispatchLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordLogEntry counts one log entry
func (m *Metrics) RecordLogEntry(level, source string) {
	m.LogEntries.WithLabelValues(level, source).Inc()
}

// RecordCheckpoint records the outcome of a checkpoint save
func (m *Metrics) RecordCheckpoint(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CheckpointWrites.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[Metrics] Serving Prometheus metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
