package features

import (
	"time"

	"AgriCast/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

const (
	// MaxLag is the deepest lag feature; a row needs this many prior days.
	MaxLag = 3
	// SeedWindow is the number of trailing days kept for recursive forecasting.
	SeedWindow = 14

	shortWindow = 7
	longWindow  = 14
)

// Schema is the ordered feature list every model is trained and invoked with.
var Schema = []string{
	"year",
	"month",
	"day_of_week",
	"day_of_month",
	"lag_1",
	"lag_2",
	"lag_3",
	"rolling_mean_7",
	"rolling_mean_14",
}

// BuildTrainingSet derives one row per date that has MaxLag prior days.
// A series of length L yields exactly L-3 rows; anything shorter than 4 points fails.
func BuildTrainingSet(series models.DailySeries) ([]models.FeatureRow, error) {
	if len(series) <= MaxLag {
		return nil, models.InsufficientDataError("need at least %d daily points, got %d", MaxLag+1, len(series))
	}

	prices := series.Prices()
	rows := make([]models.FeatureRow, 0, len(series)-MaxLag)
	for i := MaxLag; i < len(series); i++ {
		row := calendarRow(series[i].Date)
		row.Lag1 = prices[i-1]
		row.Lag2 = prices[i-2]
		row.Lag3 = prices[i-3]
		// trailing windows include the current day
		row.RollingMean7 = trailingMean(prices[:i+1], shortWindow)
		row.RollingMean14 = trailingMean(prices[:i+1], longWindow)
		row.Target = prices[i]
		rows = append(rows, row)
	}
	return rows, nil
}

// InferenceRow builds the inputs for an unseen target date from the price history
// that precedes it. Lags and rolling means read the tail of history.
func InferenceRow(date time.Time, history []float64) (models.FeatureRow, error) {
	if len(history) < MaxLag {
		return models.FeatureRow{}, models.InsufficientDataError("need %d prior prices, got %d", MaxLag, len(history))
	}
	n := len(history)
	row := calendarRow(date)
	row.Lag1 = history[n-1]
	row.Lag2 = history[n-2]
	row.Lag3 = history[n-3]
	row.RollingMean7 = trailingMean(history, shortWindow)
	row.RollingMean14 = trailingMean(history, longWindow)
	return row, nil
}

// Vector lays a row out in Schema order.
func Vector(r models.FeatureRow) []float64 {
	return []float64{
		r.Year,
		r.Month,
		r.DayOfWeek,
		r.DayOfMonth,
		r.Lag1,
		r.Lag2,
		r.Lag3,
		r.RollingMean7,
		r.RollingMean14,
	}
}

// Matrix converts training rows into a design matrix and target vector.
func Matrix(rows []models.FeatureRow) ([][]float64, []float64) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = Vector(r)
		y[i] = r.Target
	}
	return x, y
}

// DayOfWeek maps time.Weekday onto Monday=0 .. Sunday=6.
func DayOfWeek(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

func calendarRow(d time.Time) models.FeatureRow {
	return models.FeatureRow{
		Date:       d,
		Year:       float64(d.Year()),
		Month:      float64(d.Month()),
		DayOfWeek:  float64(DayOfWeek(d)),
		DayOfMonth: float64(d.Day()),
	}
}

// trailingMean averages the last w values, or all of them when fewer exist.
func trailingMean(values []float64, w int) float64 {
	start := len(values) - w
	if start < 0 {
		start = 0
	}
	return stat.Mean(values[start:], nil)
}
