package models

import (
	"fmt"
	"time"
)

// Observation is one raw price reading for a product in a city.
// Several observations may share the same calendar date.
type Observation struct {
	Product string
	City    string
	Date    time.Time
	Price   float64
}

// DailyPoint is the average of all observations on one calendar date.
type DailyPoint struct {
	Date     time.Time
	AvgPrice float64
}

// DailySeries is strictly increasing by date; gaps are allowed.
type DailySeries []DailyPoint

// Prices returns the average prices in series order.
func (s DailySeries) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.AvgPrice
	}
	return out
}

// Last returns the final point of the series.
func (s DailySeries) Last() (DailyPoint, bool) {
	if len(s) == 0 {
		return DailyPoint{}, false
	}
	return s[len(s)-1], true
}

// Tail returns a copy of the last n points (or all of them when shorter).
func (s DailySeries) Tail(n int) DailySeries {
	if n <= 0 {
		return DailySeries{}
	}
	start := len(s) - n
	if start < 0 {
		start = 0
	}
	out := make(DailySeries, len(s)-start)
	copy(out, s[start:])
	return out
}

// FeatureRow holds the model inputs for one target date.
// Target is only meaningful for training rows.
type FeatureRow struct {
	Date          time.Time
	Year          float64
	Month         float64
	DayOfWeek     float64 // Monday=0 .. Sunday=6
	DayOfMonth    float64
	Lag1          float64
	Lag2          float64
	Lag3          float64
	RollingMean7  float64
	RollingMean14 float64
	Target        float64
}

// SeriesKey identifies one independently trained model.
type SeriesKey struct {
	Product string
	City    string
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s_%s", k.Product, k.City)
}

// ForecastPoint is one predicted day.
type ForecastPoint struct {
	Date  time.Time
	Price float64
}

// Forecast is an ordered run of consecutive predicted days.
type Forecast struct {
	Product      string
	City         string
	Points       []ForecastPoint
	ModelVersion string
	GeneratedAt  time.Time
}

// Records flattens the forecast into persistable prediction records.
func (f Forecast) Records() []PredictionRecord {
	out := make([]PredictionRecord, 0, len(f.Points))
	for _, p := range f.Points {
		out = append(out, PredictionRecord{
			Product:      f.Product,
			City:         f.City,
			Date:         p.Date,
			Price:        p.Price,
			ModelVersion: f.ModelVersion,
			GeneratedAt:  f.GeneratedAt,
		})
	}
	return out
}

// PredictionRecord is the plain record handed to prediction sinks.
type PredictionRecord struct {
	Product      string    `json:"product"`
	City         string    `json:"city"`
	Date         time.Time `json:"predict_date"`
	Price        float64   `json:"predicted_price"`
	ModelVersion string    `json:"model_version"`
	GeneratedAt  time.Time `json:"created_at"`
}

// Product is a catalog entry.
type Product struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ModelInfo summarizes a cached model for introspection.
type ModelInfo struct {
	Product      string
	City         string
	TrainedAt    time.Time
	TrainingRows int
	ModelVersion string
	LastDate     time.Time
}
