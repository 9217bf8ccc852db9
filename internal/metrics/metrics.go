// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UploadRecorder receives one observation per meal upload.
type UploadRecorder interface {
	ObserveUpload(outcome string, elapsed time.Duration)
}

type discard struct{}

func (discard) ObserveUpload(string, time.Duration) {}

// Discard drops every observation.
var Discard UploadRecorder = discard{}

// Collectors holds the service's Prometheus collectors on a private registry.
type Collectors struct {
	Registry *prometheus.Registry

	uploads        *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	mealsLogged    prometheus.Counter
}

func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plate_log",
				Name:      "uploads_total",
				Help:      "Meal image uploads by outcome.",
			},
			[]string{"outcome"},
		),
		uploadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "plate_log",
				Name:      "upload_duration_seconds",
				Help:      "Duration of meal image uploads including analysis.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"outcome"},
		),
		mealsLogged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "plate_log",
				Name:      "meals_logged_total",
				Help:      "Analysed meals persisted to the meal log.",
			},
		),
	}
	c.Registry.MustRegister(c.uploads, c.uploadDuration, c.mealsLogged)
	return c
}

func (c *Collectors) ObserveUpload(outcome string, elapsed time.Duration) {
	c.uploads.WithLabelValues(outcome).Inc()
	c.uploadDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (c *Collectors) MealLogged() {
	c.mealsLogged.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
