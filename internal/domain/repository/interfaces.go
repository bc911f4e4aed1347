package repository

import (
	"context"

	"AgriCast/internal/domain/models"
)

// SeriesSource fetches the raw observations of one product in one city.
// Unknown products or empty results are NotFound; transport failures are UpstreamFetch.
type SeriesSource interface {
	FetchSeries(ctx context.Context, product, city string) ([]models.Observation, error)
}

type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// PredictionSink persists forecast records outside the core.
type PredictionSink interface {
	SavePredictions(ctx context.Context, records []models.PredictionRecord) error
	Close() error
}

// ObservationWriter stores newly ingested market prices.
type ObservationWriter interface {
	StoreObservations(ctx context.Context, obs []models.Observation) error
}

// ModelExporter writes a portable artifact of a trained model.
type ModelExporter interface {
	Export(ctx context.Context, key models.SeriesKey, artifact []byte) (string, error)
}

type Metrics interface {
	RecordForecast(product, result string)
	RecordTraining(product string, rows int, seconds float64)
	RecordRegistry(event string, size int)
	RecordError(kind string)
	RecordLastPrediction(product, city string, price float64)
	RecordLatency(op string, seconds float64)
}
