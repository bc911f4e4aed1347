package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"AgriCast/internal/domain/models"
	"AgriCast/internal/services/forecast"
	"AgriCast/internal/services/model"
	"AgriCast/internal/services/registry"
	"AgriCast/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seriesStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu    sync.Mutex
	calls map[models.SeriesKey]int
	data  map[models.SeriesKey][]models.Observation
}

func newFakeSource() *fakeSource {
	obs := make([]models.Observation, 20)
	for i := range obs {
		obs[i] = models.Observation{Product: "Potatoes", City: "Nanjing", Date: seriesStart.AddDate(0, 0, i), Price: 10 + float64(i%5)*0.1}
	}
	return &fakeSource{
		calls: make(map[models.SeriesKey]int),
		data:  map[models.SeriesKey][]models.Observation{{Product: "Potatoes", City: "Nanjing"}: obs},
	}
}

func (s *fakeSource) FetchSeries(_ context.Context, product, city string) ([]models.Observation, error) {
	key := models.SeriesKey{Product: product, City: city}
	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()
	obs, ok := s.data[key]
	if !ok {
		return nil, models.NotFoundError("product %s not found", product)
	}
	return obs, nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []models.PredictionRecord
	err     error
}

func (s *fakeSink) SavePredictions(_ context.Context, records []models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *fakeSink) Close() error { return nil }

type memExporter struct {
	files map[string][]byte
}

func (e *memExporter) Export(_ context.Context, key models.SeriesKey, artifact []byte) (string, error) {
	if e.files == nil {
		e.files = make(map[string][]byte)
	}
	name := key.String() + ".json"
	e.files[name] = artifact
	return name, nil
}

func newUseCase(t *testing.T, src *fakeSource, opts ...ForecastOption) *ForecastUseCase {
	t.Helper()
	trainer := model.NewTrainer(model.WithParams(model.Params{NumTrees: 10, MaxDepth: 3, LearningRate: 0.1, Lambda: 1, MinChildWeight: 1, Subsample: 1, Seed: 42}))
	reg, err := registry.New(trainer)
	require.NoError(t, err)
	return NewForecastUseCase(src, reg, forecast.New(), metrics.Nop{}, opts...)
}

func TestForecastProducesConsecutiveDays(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	uc := newUseCase(t, src, WithSink(sink))

	f, err := uc.Forecast(context.Background(), ForecastParams{Product: "Potatoes", City: "Nanjing", Days: 3})
	require.NoError(t, err)
	require.Len(t, f.Points, 3)
	for i, p := range f.Points {
		assert.Equal(t, seriesStart.AddDate(0, 0, 20+i), p.Date)
	}
	assert.Equal(t, registry.DefaultModelVersion, f.ModelVersion)
	assert.Len(t, sink.records, 3)

	// second request reuses the trained model
	_, err = uc.Forecast(context.Background(), ForecastParams{Product: "Potatoes", City: "Nanjing", Days: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls[models.SeriesKey{Product: "Potatoes", City: "Nanjing"}])
}

func TestForecastValidatesArguments(t *testing.T) {
	src := newFakeSource()
	uc := newUseCase(t, src, WithMaxHorizon(10))

	cases := []ForecastParams{
		{Product: "", City: "Nanjing", Days: 3},
		{Product: "Potatoes", City: " ", Days: 3},
		{Product: "Potatoes", City: "Nanjing", Days: 0},
		{Product: "Potatoes", City: "Nanjing", Days: 11},
	}
	for _, p := range cases {
		_, err := uc.Forecast(context.Background(), p)
		assert.True(t, errors.Is(err, models.ErrInvalidArgument), "%+v", p)
	}
	assert.Empty(t, src.calls)
}

func TestForecastPropagatesNotFound(t *testing.T) {
	uc := newUseCase(t, newFakeSource())

	_, err := uc.Forecast(context.Background(), ForecastParams{Product: "Apples", City: "Nanjing", Days: 3})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestForecastIgnoresSinkFailure(t *testing.T) {
	uc := newUseCase(t, newFakeSource(), WithSink(&fakeSink{err: errors.New("db down")}))

	f, err := uc.Forecast(context.Background(), ForecastParams{Product: "Potatoes", City: "Nanjing", Days: 2})
	require.NoError(t, err)
	assert.Len(t, f.Points, 2)
}

func TestModelsAndArtifact(t *testing.T) {
	uc := newUseCase(t, newFakeSource())
	key := models.SeriesKey{Product: "Potatoes", City: "Nanjing"}

	_, err := uc.Artifact(key)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Empty(t, uc.Models())

	_, err = uc.Forecast(context.Background(), ForecastParams{Product: "Potatoes", City: "Nanjing", Days: 1})
	require.NoError(t, err)

	infos := uc.Models()
	require.Len(t, infos, 1)
	assert.Equal(t, "Potatoes", infos[0].Product)
	assert.Equal(t, seriesStart.AddDate(0, 0, 19), infos[0].LastDate)
	assert.Equal(t, 17, infos[0].TrainingRows)

	b, err := uc.Artifact(key)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Contains(t, doc, "trees")
}

func TestInvalidateRetrainsOnNextForecast(t *testing.T) {
	src := newFakeSource()
	uc := newUseCase(t, src)
	key := models.SeriesKey{Product: "Potatoes", City: "Nanjing"}

	assert.True(t, errors.Is(uc.Invalidate(key), models.ErrNotFound))

	_, err := uc.Forecast(context.Background(), ForecastParams{Product: "Potatoes", City: "Nanjing", Days: 1})
	require.NoError(t, err)
	require.NoError(t, uc.Invalidate(key))
	assert.Empty(t, uc.Models())

	_, err = uc.Forecast(context.Background(), ForecastParams{Product: "Potatoes", City: "Nanjing", Days: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls[key])
}

func TestExportRequiresExporter(t *testing.T) {
	key := models.SeriesKey{Product: "Potatoes", City: "Nanjing"}
	uc := newUseCase(t, newFakeSource())
	_, err := uc.Export(context.Background(), key)
	assert.Error(t, err)

	exp := &memExporter{}
	uc = newUseCase(t, newFakeSource(), WithExporter(exp))
	_, err = uc.Export(context.Background(), key)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = uc.Forecast(context.Background(), ForecastParams{Product: "Potatoes", City: "Nanjing", Days: 1})
	require.NoError(t, err)
	path, err := uc.Export(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "Potatoes_Nanjing.json", path)
	assert.NotEmpty(t, exp.files[path])
}

func TestBatchForecastReportsPerTarget(t *testing.T) {
	exp := &memExporter{}
	uc := newUseCase(t, newFakeSource(), WithExporter(exp))

	results := uc.BatchForecast(context.Background(), []models.SeriesKey{
		{Product: "Potatoes", City: "Nanjing"},
		{Product: "Apples", City: "Nanjing"},
	}, 3, 2, true)

	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Forecast.Points, 3)
	assert.Equal(t, "Potatoes_Nanjing.json", results[0].ArtifactPath)
	assert.True(t, errors.Is(results[1].Err, models.ErrNotFound))
}
