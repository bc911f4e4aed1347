package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"AgriCast/internal/domain/models"
	domsvc "AgriCast/internal/domain/service"
	"AgriCast/internal/middleware"
	"AgriCast/pkg/kafka"
	"AgriCast/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	batches [][]models.Observation
	err     error
}

func (p *recordingProcessor) Process(_ context.Context, obs []models.Observation) error {
	p.batches = append(p.batches, obs)
	return p.err
}

func TestPriceIngestDecodesSingleAndArray(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewPriceIngestHandler("agricast.market_prices", proc, metrics.Nop{})
	assert.Equal(t, "agricast.market_prices", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"product":"Potatoes","city":"Nanjing","date":"2024-01-05","price":"10.25"}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(` [{"product":"Cabbage","city":"Nanjing","date":"2024-01-05T08:00:00Z","price":3.1},
		{"product":"Cabbage","city":"Nanjing","date":"2024-01-06","price":3.2}]`)))

	require.Len(t, proc.batches, 2)
	assert.Equal(t, models.Observation{
		Product: "Potatoes",
		City:    "Nanjing",
		Date:    time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Price:   10.25,
	}, proc.batches[0][0])
	require.Len(t, proc.batches[1], 2)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), proc.batches[1][0].Date)
}

func TestPriceIngestMalformedIsPermanent(t *testing.T) {
	h := NewPriceIngestHandler("t", &recordingProcessor{}, metrics.Nop{})

	err := h.Handle(context.Background(), []byte(`{not json`))
	assert.True(t, errors.Is(err, kafka.ErrPermanent))

	err = h.Handle(context.Background(), []byte(`{"product":"Potatoes","city":"Nanjing","date":"yesterday","price":1}`))
	assert.True(t, errors.Is(err, kafka.ErrPermanent))
}

func TestPriceIngestInvalidObservationIsPermanent(t *testing.T) {
	pipe := middleware.NewIngestPipeline(&noopWriter{}, metrics.Nop{})
	h := NewPriceIngestHandler("t", pipe, metrics.Nop{})

	err := h.Handle(context.Background(), []byte(`{"product":"","city":"Nanjing","date":"2024-01-05","price":1}`))
	assert.True(t, errors.Is(err, kafka.ErrPermanent))
}

func TestPriceIngestStoreErrorIsRetryable(t *testing.T) {
	h := NewPriceIngestHandler("t", &recordingProcessor{err: errors.New("store down")}, metrics.Nop{})

	err := h.Handle(context.Background(), []byte(`{"product":"Potatoes","city":"Nanjing","date":"2024-01-05","price":1}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, kafka.ErrPermanent))
}

type noopWriter struct{}

func (noopWriter) StoreObservations(context.Context, []models.Observation) error { return nil }

type notedRegistry struct {
	domsvc.ModelRegistry
	noted map[models.SeriesKey]int
}

func (r *notedRegistry) NoteObservations(key models.SeriesKey, n int) {
	if r.noted == nil {
		r.noted = make(map[models.SeriesKey]int)
	}
	r.noted[key] += n
}

func TestObservationNotifierCountsPerSeries(t *testing.T) {
	reg := &notedRegistry{}
	catalog := &countingCatalog{}
	products := NewProductsUseCase(catalog, nil, 0)
	notify := ObservationNotifier(reg, products)

	notify([]models.Observation{
		{Product: "Potatoes", City: "Nanjing"},
		{Product: "Potatoes", City: "Nanjing"},
		{Product: "Potatoes", City: "Beijing"},
	})
	assert.Equal(t, 2, reg.noted[models.SeriesKey{Product: "Potatoes", City: "Nanjing"}])
	assert.Equal(t, 1, reg.noted[models.SeriesKey{Product: "Potatoes", City: "Beijing"}])
}
