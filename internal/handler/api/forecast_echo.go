package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"AgriCast/internal/domain/models"
	"AgriCast/internal/usecase"
	xhttp "AgriCast/pkg/http"
	xlogger "AgriCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	serviceMessage = "Agricultural Price Prediction API"
	serviceVersion = "1.0.0"
)

// ForecastEchoHandler serves forecasts, the product catalog and model introspection.
type ForecastEchoHandler struct {
	logger    *xlogger.Logger
	forecast  *usecase.ForecastUseCase
	products  *usecase.ProductsUseCase
	timeout   time.Duration
	predictMW []echo.MiddlewareFunc
}

type HandlerOption func(*ForecastEchoHandler)

// WithRequestTimeout bounds the time one forecast may spend fetching and training.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *ForecastEchoHandler) { h.timeout = d }
}

// WithPredictMiddleware wraps only the training-heavy predict route, e.g. with a rate limiter.
func WithPredictMiddleware(m ...echo.MiddlewareFunc) HandlerOption {
	return func(h *ForecastEchoHandler) { h.predictMW = append(h.predictMW, m...) }
}

func NewForecastEchoHandler(logger *xlogger.Logger, forecast *usecase.ForecastUseCase, products *usecase.ProductsUseCase, opts ...HandlerOption) *ForecastEchoHandler {
	h := &ForecastEchoHandler{logger: logger, forecast: forecast, products: products}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Health)
	g := e.Group("/api")
	g.POST("/predict", h.Predict, h.predictMW...)
	g.GET("/products", h.Products)
	g.GET("/models", h.Models)
	g.DELETE("/models", h.InvalidateModel)
	g.GET("/models/export", h.ExportModel)
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Message: serviceMessage,
		Version: serviceVersion,
	})
}

func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	f, err := h.forecast.Forecast(ctx, usecase.ForecastParams{
		Product: req.Product,
		City:    req.City,
		Days:    *req.Days,
	})
	if err != nil {
		h.logger.Error("predict usecase error",
			xlogger.String("product", req.Product),
			xlogger.String("city", req.City),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, models.NewPredictResponse(*f))
}

func (h *ForecastEchoHandler) Products(c echo.Context) error {
	products, err := h.products.List(c.Request().Context())
	if err != nil {
		h.logger.Error("products usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=60")
	return xhttp.SuccessResponse(c, products)
}

func (h *ForecastEchoHandler) Models(c echo.Context) error {
	infos := h.forecast.Models()
	out := make([]models.ModelInfoDTO, 0, len(infos))
	for _, m := range infos {
		out = append(out, models.NewModelInfoDTO(m))
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

// InvalidateModel drops a cached model; the next predict for it retrains.
func (h *ForecastEchoHandler) InvalidateModel(c echo.Context) error {
	req := &models.ModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.forecast.Invalidate(models.SeriesKey{Product: req.Product, City: req.City}); err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// ExportModel returns the artifact of a cached model; it never trains.
func (h *ForecastEchoHandler) ExportModel(c echo.Context) error {
	req := &models.ModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	b, err := h.forecast.Artifact(models.SeriesKey{Product: req.Product, City: req.City})
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *ForecastEchoHandler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request().Context(), h.timeout)
	}
	return context.WithCancel(c.Request().Context())
}

// toAppError maps domain error kinds onto HTTP errors.
func toAppError(err error) error {
	var de *models.Error
	if !errors.As(err, &de) {
		if errors.Is(err, context.DeadlineExceeded) {
			return xhttp.GatewayTimeoutError("forecast timed out").WithError(err)
		}
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
	msg := de.Message
	if msg == "" {
		msg = de.Error()
	}
	switch de.Kind {
	case models.KindNotFound:
		return xhttp.NotFoundError(msg)
	case models.KindInsufficientData:
		return xhttp.UnprocessableEntityError(msg)
	case models.KindInvalidArgument:
		return xhttp.BadRequestError(msg)
	case models.KindUpstreamFetch:
		return xhttp.BadGatewayError("price source unavailable").WithError(err)
	case models.KindTraining:
		return xhttp.TrainingFailedError(msg).WithError(err)
	default:
		return xhttp.InternalError(msg).WithError(err)
	}
}
