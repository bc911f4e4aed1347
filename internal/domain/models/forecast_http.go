package models

import "time"

// Requests and responses for the forecasting HTTP endpoints.

type PredictRequest struct {
	Product string `json:"product" validate:"required"`
	City    string `json:"city" validate:"required"`
	Days    *int   `json:"days" default:"3" validate:"required,gte=1"`
}

type ModelRequest struct {
	Product string `query:"product" json:"product" validate:"required"`
	City    string `query:"city" json:"city" validate:"required"`
}

type PredictionDTO struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

type PredictResponse struct {
	Product      string          `json:"product"`
	City         string          `json:"city"`
	Predictions  []PredictionDTO `json:"predictions"`
	ModelVersion string          `json:"model_version"`
}

type ModelInfoDTO struct {
	Product      string    `json:"product"`
	City         string    `json:"city"`
	TrainedAt    time.Time `json:"trained_at"`
	TrainingRows int       `json:"training_rows"`
	ModelVersion string    `json:"model_version"`
	LastDate     string    `json:"last_date"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// DateLayout is the calendar-day format used on the wire.
const DateLayout = "2006-01-02"

// NewPredictResponse converts a forecast into its wire form.
func NewPredictResponse(f Forecast) PredictResponse {
	preds := make([]PredictionDTO, 0, len(f.Points))
	for _, p := range f.Points {
		preds = append(preds, PredictionDTO{Date: p.Date.Format(DateLayout), Price: p.Price})
	}
	return PredictResponse{
		Product:      f.Product,
		City:         f.City,
		Predictions:  preds,
		ModelVersion: f.ModelVersion,
	}
}

// NewModelInfoDTO converts registry introspection data into its wire form.
func NewModelInfoDTO(m ModelInfo) ModelInfoDTO {
	return ModelInfoDTO{
		Product:      m.Product,
		City:         m.City,
		TrainedAt:    m.TrainedAt,
		TrainingRows: m.TrainingRows,
		ModelVersion: m.ModelVersion,
		LastDate:     m.LastDate.Format(DateLayout),
	}
}
