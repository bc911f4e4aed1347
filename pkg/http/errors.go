package http

import (
	"fmt"
	"net/http"
)

// Stable error codes returned in AppError.Code.
const (
	CodeNotFound       = "ERR_NOT_FOUND"
	CodeBadRequest     = "ERR_BAD_REQUEST"
	CodeUnprocessable  = "ERR_UNPROCESSABLE"
	CodeRateLimited    = "ERR_RATE_LIMITED"
	CodeBadGateway     = "ERR_BAD_GATEWAY"
	CodeTraining       = "ERR_TRAINING"
	CodeGatewayTimeout = "ERR_TIMEOUT"
	CodeInternal       = "ERR_INTERNAL"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error. It is logged, never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, "", message, http.StatusNotFound)
}

func BadRequestError(message string) *AppError {
	return NewAppError(CodeBadRequest, "", message, http.StatusBadRequest)
}

// UnprocessableEntityError is for well-formed requests the data cannot satisfy.
func UnprocessableEntityError(message string) *AppError {
	return NewAppError(CodeUnprocessable, "", message, http.StatusUnprocessableEntity)
}

func TooManyRequestsError(message string) *AppError {
	return NewAppError(CodeRateLimited, "", message, http.StatusTooManyRequests)
}

// BadGatewayError reports a failing upstream dependency.
func BadGatewayError(message string) *AppError {
	return NewAppError(CodeBadGateway, "", message, http.StatusBadGateway)
}

func GatewayTimeoutError(message string) *AppError {
	return NewAppError(CodeGatewayTimeout, "", message, http.StatusGatewayTimeout)
}

// TrainingFailedError reports a model that could not be fitted on the available data.
func TrainingFailedError(message string) *AppError {
	return NewAppError(CodeTraining, "", message, http.StatusInternalServerError)
}

func InternalError(message string) *AppError {
	return NewAppError(CodeInternal, "", message, http.StatusInternalServerError)
}
