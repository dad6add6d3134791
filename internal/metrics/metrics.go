// Package metrics defines the Prometheus collectors exported by the
// generation pipeline, the credit ledger and the task runner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carouselmaker"

// Metrics groups every collector. Build it once per process with New and
// share it; registering the same collectors twice panics.
type Metrics struct {
	GenerationOutcomes *prometheus.CounterVec
	StepDuration       *prometheus.HistogramVec
	ImagesInFlight     prometheus.Gauge
	ImageRetries       prometheus.Counter
	ImageFallbacks     prometheus.Counter
	LedgerOperations   *prometheus.CounterVec
	TaskOutcomes       *prometheus.CounterVec
	CleanupDeleted     prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GenerationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Carousel generations by final outcome.",
		}, []string{"outcome"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		ImagesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_requests_in_flight",
			Help:      "Image generation requests currently holding a permit.",
		}),
		ImageRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_request_retries_total",
			Help:      "Image generation attempts beyond the first.",
		}),
		ImageFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_request_fallbacks_total",
			Help:      "Slides rendered without a generated image after retries ran out.",
		}),
		LedgerOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Credit ledger operations by type and result.",
		}, []string{"operation", "result"}),
		TaskOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Task executions by type and outcome.",
		}, []string{"type", "outcome"}),
		CleanupDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_objects_deleted_total",
			Help:      "Stored slide objects deleted by the retention sweep.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// NewUnregistered returns collectors registered with a private registry.
// Use it in tests and one-shot commands.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
