package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the forecasting core.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "ERR_NOT_FOUND"
	KindInsufficientData ErrorKind = "ERR_INSUFFICIENT_DATA"
	KindInvalidArgument  ErrorKind = "ERR_INVALID_ARGUMENT"
	KindTraining         ErrorKind = "ERR_TRAINING"
	KindUpstreamFetch    ErrorKind = "ERR_UPSTREAM_FETCH"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInsufficientData = &Error{Kind: KindInsufficientData}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrTraining         = &Error{Kind: KindTraining}
	ErrUpstreamFetch    = &Error{Kind: KindUpstreamFetch}
)

// Error is a typed domain error. Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NotFoundError reports an unknown product/city or an empty series.
func NotFoundError(format string, a ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, a...)}
}

// InsufficientDataError reports a series too short to build any training row.
func InsufficientDataError(format string, a ...interface{}) *Error {
	return &Error{Kind: KindInsufficientData, Message: fmt.Sprintf(format, a...)}
}

// InvalidArgumentError reports a malformed request.
func InvalidArgumentError(format string, a ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, a...)}
}

// TrainingError reports a degenerate fit.
func TrainingError(format string, a ...interface{}) *Error {
	return &Error{Kind: KindTraining, Message: fmt.Sprintf(format, a...)}
}

// UpstreamFetchError wraps an I/O failure of a series source.
func UpstreamFetchError(err error, format string, a ...interface{}) *Error {
	return &Error{Kind: KindUpstreamFetch, Message: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the kind of the first domain error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
