package service

import (
	"context"
	"time"

	"AgriCast/internal/domain/models"
)

// Regressor scores feature vectors laid out in its own schema order.
type Regressor interface {
	Predict(features []float64) (float64, error)
	Schema() []string
}

// Entry is an immutable trained model plus the context needed to forecast from it.
type Entry struct {
	Key          models.SeriesKey
	Model        Regressor
	Schema       []string
	SeedWindow   models.DailySeries
	TrainedAt    time.Time
	ModelVersion string
	TrainingRows int
}

// FetchFunc supplies raw observations on a registry miss.
type FetchFunc func(ctx context.Context) ([]models.Observation, error)

// ModelRegistry returns a trained entry per key, training at most once concurrently per key.
type ModelRegistry interface {
	GetOrTrain(ctx context.Context, key models.SeriesKey, fetch FetchFunc) (*Entry, error)
	Get(key models.SeriesKey) (*Entry, bool)
	Entries() []*Entry
	NoteObservations(key models.SeriesKey, n int)
	Invalidate(key models.SeriesKey) bool
}

// Forecaster rolls an entry forward for a number of days.
type Forecaster interface {
	Forecast(entry *Entry, horizon int) ([]models.ForecastPoint, error)
}
