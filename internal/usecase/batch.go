package usecase

import (
	"context"

	"AgriCast/internal/domain/models"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one target of a batch run.
type BatchResult struct {
	Key          models.SeriesKey
	Forecast     *models.Forecast
	ArtifactPath string
	Err          error
}

// BatchForecast forecasts every target with at most concurrency runs in flight.
// A failing target is reported in its result and does not stop the others.
func (uc *ForecastUseCase) BatchForecast(ctx context.Context, targets []models.SeriesKey, days, concurrency int, export bool) []BatchResult {
	results := make([]BatchResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, key := range targets {
		g.Go(func() error {
			res := BatchResult{Key: key}
			res.Forecast, res.Err = uc.Forecast(gctx, ForecastParams{Product: key.Product, City: key.City, Days: days})
			if res.Err == nil && export && uc.exporter != nil {
				res.ArtifactPath, res.Err = uc.Export(gctx, key)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
