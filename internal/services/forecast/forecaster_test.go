package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"AgriCast/internal/domain/models"
	domsvc "AgriCast/internal/domain/service"
	"AgriCast/internal/services/features"
	"AgriCast/internal/services/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioPrices = []float64{10.0, 10.5, 11.0, 10.8, 11.2, 10.9, 11.1, 11.0, 10.95, 11.05, 11.1, 11.2, 11.15, 11.3}

func scenarioSeries() models.DailySeries {
	end := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(len(scenarioPrices) - 1))
	s := make(models.DailySeries, len(scenarioPrices))
	for i, p := range scenarioPrices {
		s[i] = models.DailyPoint{Date: start.AddDate(0, 0, i), AvgPrice: p}
	}
	return s
}

func trainedEntry(t *testing.T) *domsvc.Entry {
	t.Helper()
	s := scenarioSeries()
	rows, err := features.BuildTrainingSet(s)
	require.NoError(t, err)
	x, y := features.Matrix(rows)
	m, err := model.NewTrainer().Fit(x, y, features.Schema)
	require.NoError(t, err)
	return &domsvc.Entry{
		Key:        models.SeriesKey{Product: "Potatoes", City: "Nanjing"},
		Model:      m,
		Schema:     m.Schema(),
		SeedWindow: s.Tail(features.SeedWindow),
	}
}

// lagPlusOne predicts lag_1 + 1 so every step is easy to follow by hand.
type lagPlusOne struct{}

func (lagPlusOne) Predict(x []float64) (float64, error) { return x[4] + 1, nil }
func (lagPlusOne) Schema() []string                   { return features.Schema }

func TestScenarioThreeDays(t *testing.T) {
	steps, err := New().Trace(trainedEntry(t), 3)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	wantDates := []string{"2024-01-15", "2024-01-16", "2024-01-17"}
	for i, s := range steps {
		assert.Equal(t, wantDates[i], s.Point.Date.Format(models.DateLayout))
		assert.Greater(t, s.Point.Price, 0.0)
		cents := s.Point.Price * 100
		assert.InDelta(t, math.Round(cents), cents, 1e-6, "price %v not rounded", s.Point.Price)
	}
	assert.Equal(t, steps[0].Point.Price, steps[1].Inputs.Lag1)
	assert.Equal(t, steps[1].Point.Price, steps[2].Inputs.Lag1)
	assert.Equal(t, steps[0].Point.Price, steps[2].Inputs.Lag2)
	assert.Equal(t, 11.3, steps[2].Inputs.Lag3)
}

func TestHorizonOneUsesLastSeedPrice(t *testing.T) {
	steps, err := New().Trace(trainedEntry(t), 1)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 11.3, steps[0].Inputs.Lag1)
	assert.Equal(t, 11.15, steps[0].Inputs.Lag2)
	assert.Equal(t, 11.2, steps[0].Inputs.Lag3)
}

func TestForecastIdempotent(t *testing.T) {
	entry := trainedEntry(t)
	f := New()
	a, err := f.Forecast(entry, 5)
	require.NoError(t, err)
	b, err := f.Forecast(entry, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecursionFeedsPredictionsBack(t *testing.T) {
	entry := &domsvc.Entry{Model: lagPlusOne{}, Schema: features.Schema, SeedWindow: scenarioSeries()}

	steps, err := New().Trace(entry, 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{12.3, 13.3, 14.3}, []float64{steps[0].Point.Price, steps[1].Point.Price, steps[2].Point.Price})
	// day 2 rolling mean covers the last 6 observed prices plus day 1's prediction
	want7 := (10.95 + 11.05 + 11.1 + 11.2 + 11.15 + 11.3 + 12.3) / 7
	assert.InDelta(t, want7, steps[1].Inputs.RollingMean7, 1e-9)
	// day 1 rolling means exclude the target day itself
	var sum float64
	for _, p := range scenarioPrices {
		sum += p
	}
	assert.InDelta(t, sum/14, steps[0].Inputs.RollingMean14, 1e-9)
}

func TestConsecutiveDatesAcrossMonthEnd(t *testing.T) {
	seed := models.DailySeries{
		{Date: time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC), AvgPrice: 1},
		{Date: time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC), AvgPrice: 2},
		{Date: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), AvgPrice: 3},
	}
	pts, err := New().Forecast(&domsvc.Entry{Model: lagPlusOne{}, Schema: features.Schema, SeedWindow: seed}, 3)
	require.NoError(t, err)
	for i, want := range []string{"2024-02-29", "2024-03-01", "2024-03-02"} {
		assert.Equal(t, want, pts[i].Date.Format(models.DateLayout))
	}
}

func TestForecastErrors(t *testing.T) {
	f := New()
	entry := &domsvc.Entry{Model: lagPlusOne{}, Schema: features.Schema, SeedWindow: scenarioSeries()}

	_, err := f.Forecast(entry, 0)
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))

	_, err = f.Forecast(nil, 3)
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))

	bad := *entry
	bad.Schema = []string{"lag_1"}
	_, err = f.Forecast(&bad, 3)
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))

	short := *entry
	short.SeedWindow = entry.SeedWindow.Tail(2)
	_, err = f.Forecast(&short, 3)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 11.35, Round2(11.345))
	assert.Equal(t, 10.0, Round2(9.999))
	assert.Equal(t, 2.5, Round2(2.4999999999))
}
