package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts      *prometheus.CounterVec
	trainings      *prometheus.HistogramVec
	trainingRows   *prometheus.HistogramVec
	registryEvents *prometheus.CounterVec
	registrySize   prometheus.Gauge
	errorsTotal    *prometheus.CounterVec
	lastPrediction *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agricast_forecasts_total",
				Help: "Forecast requests by product and result",
			},
			[]string{"product", "result"},
		),
		trainings: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agricast_training_duration_seconds",
				Help:    "Time to fetch, normalize and fit one model",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"product"},
		),
		trainingRows: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agricast_training_rows",
				Help:    "Training rows per fitted model",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"product"},
		),
		registryEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agricast_registry_events_total",
				Help: "Model registry hits, misses, stale entries, trainings and evictions",
			},
			[]string{"event"},
		),
		registrySize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "agricast_registry_entries",
				Help: "Models currently resident in the registry",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agricast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		lastPrediction: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agricast_last_predicted_price",
				Help: "First-day predicted price of the latest forecast",
			},
			[]string{"product", "city"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agricast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecast counts a forecast request outcome.
func (r *Recorder) RecordForecast(product, result string) {
	r.forecasts.WithLabelValues(product, result).Inc()
}

// RecordTraining observes one model fit.
func (r *Recorder) RecordTraining(product string, rows int, seconds float64) {
	r.trainings.WithLabelValues(product).Observe(seconds)
	r.trainingRows.WithLabelValues(product).Observe(float64(rows))
}

// RecordRegistry counts a registry event; a negative size leaves the gauge untouched.
func (r *Recorder) RecordRegistry(event string, size int) {
	r.registryEvents.WithLabelValues(event).Inc()
	switch {
	case size >= 0:
		r.registrySize.Set(float64(size))
	case event == "evict":
		r.registrySize.Dec()
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrediction records the latest first-day prediction.
func (r *Recorder) RecordLastPrediction(product, city string, price float64) {
	r.lastPrediction.WithLabelValues(product, city).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every metric.
type Nop struct{}

func (Nop) RecordForecast(string, string) {}
func (Nop) RecordTraining(string, int, float64) {}
func (Nop) RecordRegistry(string, int) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLastPrediction(string, string, float64) {}
func (Nop) RecordLatency(string, float64) {}
