package forecast

import (
	"slices"

	"AgriCast/internal/domain/models"
	domsvc "AgriCast/internal/domain/service"
	"AgriCast/internal/services/features"
	xutil "AgriCast/pkg/util"

	"github.com/shopspring/decimal"
)

// Step is one forecast day together with the inputs the model saw.
type Step struct {
	Point  models.ForecastPoint
	Inputs models.FeatureRow
}

// Forecaster produces multi-day forecasts by feeding each prediction back
// into the next day's lags and rolling means.
type Forecaster struct{}

func New() *Forecaster { return &Forecaster{} }

// Forecast returns horizon consecutive days starting the day after the seed window ends.
func (f *Forecaster) Forecast(entry *domsvc.Entry, horizon int) ([]models.ForecastPoint, error) {
	steps, err := f.Trace(entry, horizon)
	if err != nil {
		return nil, err
	}
	out := make([]models.ForecastPoint, len(steps))
	for i, s := range steps {
		out[i] = s.Point
	}
	return out, nil
}

// Trace is Forecast with the per-day model inputs kept.
func (f *Forecaster) Trace(entry *domsvc.Entry, horizon int) ([]Step, error) {
	if entry == nil || entry.Model == nil {
		return nil, models.InvalidArgumentError("no trained model")
	}
	if horizon < 1 {
		return nil, models.InvalidArgumentError("horizon must be >= 1, got %d", horizon)
	}
	if !slices.Equal(entry.Schema, features.Schema) {
		return nil, models.InvalidArgumentError("model schema %v does not match feature schema", entry.Schema)
	}
	last, ok := entry.SeedWindow.Last()
	if !ok || len(entry.SeedWindow) < features.MaxLag {
		return nil, models.InsufficientDataError("seed window has %d points, need %d", len(entry.SeedWindow), features.MaxLag)
	}

	// observed prices and earlier predictions share one buffer
	buf := make([]float64, 0, len(entry.SeedWindow)+horizon)
	buf = append(buf, entry.SeedWindow.Prices()...)

	steps := make([]Step, 0, horizon)
	for offset := 1; offset <= horizon; offset++ {
		date := xutil.AddDays(last.Date, offset)
		row, err := features.InferenceRow(date, buf)
		if err != nil {
			return nil, err
		}
		raw, err := entry.Model.Predict(features.Vector(row))
		if err != nil {
			return nil, err
		}
		price := Round2(raw)
		buf = append(buf, price)
		steps = append(steps, Step{
			Point:  models.ForecastPoint{Date: date, Price: price},
			Inputs: row,
		})
	}
	return steps, nil
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
