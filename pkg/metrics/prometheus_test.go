package metrics

import (
	"testing"

	"AgriCast/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var (
	_ repository.Metrics = (*Recorder)(nil)
	_ repository.Metrics = Nop{}
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordForecast("Potatoes", "ok")
	r.RecordForecast("Potatoes", "ok")
	r.RecordForecast("Potatoes", "not_found")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.forecasts.WithLabelValues("Potatoes", "ok")))

	r.RecordRegistry("trained", 3)
	r.RecordRegistry("evict", -1)
	r.RecordRegistry("hit", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.registrySize))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.registryEvents.WithLabelValues("evict")))

	r.RecordLastPrediction("Potatoes", "Nanjing", 11.42)
	assert.Equal(t, 11.42, testutil.ToFloat64(r.lastPrediction.WithLabelValues("Potatoes", "Nanjing")))

	r.RecordTraining("Potatoes", 27, 0.2)
	assert.Equal(t, 1, testutil.CollectAndCount(r.trainings))
}
