package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AgriCast/internal/domain/models"
	domrepo "AgriCast/internal/domain/repository"
	domsvc "AgriCast/internal/domain/service"
	applogger "AgriCast/pkg/logger"
)

// ForecastUseCase answers forecast requests: it resolves the model through the registry,
// rolls it forward and hands the result to the prediction sink.
type ForecastUseCase struct {
	source     domrepo.SeriesSource
	registry   domsvc.ModelRegistry
	forecaster domsvc.Forecaster
	sink       domrepo.PredictionSink
	exporter   domrepo.ModelExporter
	metrics    domrepo.Metrics
	logger     *applogger.Logger

	maxHorizon int
	persist    bool
	now        func() time.Time
}

type ForecastOption func(*ForecastUseCase)

// WithSink persists every successful forecast to sink.
func WithSink(sink domrepo.PredictionSink) ForecastOption {
	return func(uc *ForecastUseCase) {
		uc.sink = sink
		uc.persist = sink != nil
	}
}

func WithExporter(e domrepo.ModelExporter) ForecastOption {
	return func(uc *ForecastUseCase) { uc.exporter = e }
}

// WithMaxHorizon caps the requested number of days; 0 leaves it unbounded.
func WithMaxHorizon(n int) ForecastOption {
	return func(uc *ForecastUseCase) { uc.maxHorizon = n }
}

func WithForecastLogger(l *applogger.Logger) ForecastOption {
	return func(uc *ForecastUseCase) { uc.logger = l }
}

func WithForecastClock(now func() time.Time) ForecastOption {
	return func(uc *ForecastUseCase) { uc.now = now }
}

func NewForecastUseCase(source domrepo.SeriesSource, registry domsvc.ModelRegistry, forecaster domsvc.Forecaster, metrics domrepo.Metrics, opts ...ForecastOption) *ForecastUseCase {
	uc := &ForecastUseCase{
		source:     source,
		registry:   registry,
		forecaster: forecaster,
		metrics:    metrics,
		logger:     applogger.Nop(),
		maxHorizon: 30,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type ForecastParams struct {
	Product string
	City    string
	Days    int
}

// Forecast trains or reuses the model for (product, city) and predicts Days consecutive days.
func (uc *ForecastUseCase) Forecast(ctx context.Context, p ForecastParams) (*models.Forecast, error) {
	start := time.Now()
	f, err := uc.forecast(ctx, p)
	uc.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	if err != nil {
		kind := string(models.KindOf(err))
		if kind == "" {
			kind = "internal"
		}
		uc.metrics.RecordForecast(p.Product, kind)
		uc.metrics.RecordError(kind)
		return nil, err
	}
	uc.metrics.RecordForecast(p.Product, "ok")
	uc.metrics.RecordLastPrediction(f.Product, f.City, f.Points[0].Price)

	if uc.persist {
		uc.save(ctx, f)
	}
	return f, nil
}

func (uc *ForecastUseCase) forecast(ctx context.Context, p ForecastParams) (*models.Forecast, error) {
	p.Product = strings.TrimSpace(p.Product)
	p.City = strings.TrimSpace(p.City)
	if p.Product == "" || p.City == "" {
		return nil, models.InvalidArgumentError("product and city are required")
	}
	if p.Days < 1 {
		return nil, models.InvalidArgumentError("days must be >= 1, got %d", p.Days)
	}
	if uc.maxHorizon > 0 && p.Days > uc.maxHorizon {
		return nil, models.InvalidArgumentError("days must be <= %d, got %d", uc.maxHorizon, p.Days)
	}

	key := models.SeriesKey{Product: p.Product, City: p.City}
	entry, err := uc.registry.GetOrTrain(ctx, key, func(ctx context.Context) ([]models.Observation, error) {
		return uc.source.FetchSeries(ctx, p.Product, p.City)
	})
	if err != nil {
		return nil, err
	}

	points, err := uc.forecaster.Forecast(entry, p.Days)
	if err != nil {
		return nil, err
	}
	return &models.Forecast{
		Product:      p.Product,
		City:         p.City,
		Points:       points,
		ModelVersion: entry.ModelVersion,
		GeneratedAt:  uc.now(),
	}, nil
}

// save never fails the forecast; sink errors are logged and counted.
func (uc *ForecastUseCase) save(ctx context.Context, f *models.Forecast) {
	if err := uc.sink.SavePredictions(ctx, f.Records()); err != nil {
		uc.metrics.RecordError("persist_predictions")
		uc.logger.Error("save predictions failed",
			applogger.String("product", f.Product),
			applogger.String("city", f.City),
			applogger.Error(err),
		)
	}
}

// Models lists the models currently held by the registry.
func (uc *ForecastUseCase) Models() []models.ModelInfo {
	entries := uc.registry.Entries()
	out := make([]models.ModelInfo, 0, len(entries))
	for _, e := range entries {
		info := models.ModelInfo{
			Product:      e.Key.Product,
			City:         e.Key.City,
			TrainedAt:    e.TrainedAt,
			TrainingRows: e.TrainingRows,
			ModelVersion: e.ModelVersion,
		}
		if last, ok := e.SeedWindow.Last(); ok {
			info.LastDate = last.Date
		}
		out = append(out, info)
	}
	return out
}

// Invalidate drops the cached model for key so its next forecast retrains.
func (uc *ForecastUseCase) Invalidate(key models.SeriesKey) error {
	if !uc.registry.Invalidate(key) {
		return models.NotFoundError("no model cached for %s in %s", key.Product, key.City)
	}
	uc.logger.Info("model invalidated", applogger.String("key", key.String()))
	return nil
}

// Artifact returns the JSON artifact of the cached model for key without training.
func (uc *ForecastUseCase) Artifact(key models.SeriesKey) ([]byte, error) {
	e, ok := uc.registry.Get(key)
	if !ok {
		return nil, models.NotFoundError("no model cached for %s in %s", key.Product, key.City)
	}
	m, ok := e.Model.(json.Marshaler)
	if !ok {
		return nil, fmt.Errorf("model for %s is not exportable", key)
	}
	b, err := m.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode model %s: %w", key, err)
	}
	return b, nil
}

// Export writes the cached model for key through the configured exporter.
func (uc *ForecastUseCase) Export(ctx context.Context, key models.SeriesKey) (string, error) {
	if uc.exporter == nil {
		return "", fmt.Errorf("model export is not configured")
	}
	b, err := uc.Artifact(key)
	if err != nil {
		return "", err
	}
	path, err := uc.exporter.Export(ctx, key, b)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", key, err)
	}
	uc.logger.Info("model exported", applogger.String("key", key.String()), applogger.String("path", path))
	return path, nil
}
