package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"AgriCast/internal/domain/models"
	"AgriCast/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyWriter struct {
	mu      sync.Mutex
	fail    int
	batches [][]models.Observation
}

func (w *flakyWriter) StoreObservations(_ context.Context, obs []models.Observation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail > 0 {
		w.fail--
		return errors.New("store unavailable")
	}
	w.batches = append(w.batches, obs)
	return nil
}

func (w *flakyWriter) stored() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func obsAt(day int, price float64) models.Observation {
	return models.Observation{
		Product: "Potatoes",
		City:    "Nanjing",
		Date:    time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Price:   price,
	}
}

func TestIngestPipelineStoresAndNotifies(t *testing.T) {
	w := &flakyWriter{}
	var notified []models.Observation
	p := NewIngestPipeline(w, metrics.Nop{}, WithOnStored(func(obs []models.Observation) {
		notified = append(notified, obs...)
	}))

	err := p.Process(context.Background(), []models.Observation{obsAt(1, 10), obsAt(2, 10.5)})
	require.NoError(t, err)
	assert.Equal(t, 1, w.stored())
	assert.Len(t, notified, 2)
}

func TestIngestPipelineRejectsInvalid(t *testing.T) {
	p := NewIngestPipeline(&flakyWriter{}, metrics.Nop{})

	cases := []models.Observation{
		{City: "Nanjing", Date: time.Now(), Price: 1},
		{Product: "Potatoes", Date: time.Now(), Price: 1},
		{Product: "Potatoes", City: "Nanjing", Price: 1},
		{Product: "Potatoes", City: "Nanjing", Date: time.Now(), Price: -1},
		{Product: "Potatoes", City: "Nanjing", Date: time.Now(), Price: math.NaN()},
		{Product: "Potatoes", City: "Nanjing", Date: time.Now(), Price: 0},
	}
	for _, o := range cases {
		err := p.Process(context.Background(), []models.Observation{o})
		assert.True(t, errors.Is(err, models.ErrInvalidArgument), "%+v", o)
	}
}

func TestIngestPipelineBuffersAndFlushes(t *testing.T) {
	w := &flakyWriter{fail: 1}
	done := make(chan struct{}, 1)
	p := NewIngestPipeline(w, metrics.Nop{}, WithBufferSize(4), WithOnStored(func([]models.Observation) {
		done <- struct{}{}
	}))

	require.NoError(t, p.Process(context.Background(), []models.Observation{obsAt(1, 10)}))
	assert.Equal(t, 1, p.Buffered())
	assert.Equal(t, 0, w.stored())

	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("buffered batch was not flushed")
	}
	assert.Equal(t, 1, w.stored())
}

func TestIngestPipelineFullBufferReportsError(t *testing.T) {
	w := &flakyWriter{fail: 10}
	p := NewIngestPipeline(w, metrics.Nop{}, WithBufferSize(1))

	require.NoError(t, p.Process(context.Background(), []models.Observation{obsAt(1, 10)}))
	err := p.Process(context.Background(), []models.Observation{obsAt(2, 10)})
	assert.ErrorContains(t, err, "store unavailable")
}

func TestIngestPipelineThrottleHonorsContext(t *testing.T) {
	p := NewIngestPipeline(&flakyWriter{}, metrics.Nop{}, WithMaxRPS(0.001, 1))

	require.NoError(t, p.Process(context.Background(), []models.Observation{obsAt(1, 10)}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Process(ctx, []models.Observation{obsAt(2, 10)})
	assert.Error(t, err)
}
