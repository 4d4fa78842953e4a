package http

import (
	"fmt"
	"net/http"
)

// AppError is one entry of the error list in a failed response envelope.
// Status picks the HTTP code; Err stays server side.
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

func (e *AppError) Unwrap() error { return e.Err }

// With attaches a param the dashboard can render, e.g. the symbol.
func (e *AppError) With(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{}, 1)
	}
	e.Params[key] = value
	return e
}

// Wrap keeps the cause for logs without exposing it to clients.
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func appError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// NotFoundf is a 404, used when nothing is published for a symbol yet.
func NotFoundf(format string, a ...interface{}) *AppError {
	return appError(http.StatusNotFound, "ERR_NOT_FOUND", fmt.Sprintf(format, a...))
}

// Conflict is a 409, used for a refresh that is already queued.
func Conflict(message string) *AppError {
	return appError(http.StatusConflict, "ERR_CONFLICT", message)
}

// Unavailable is a 503 for a component that is disabled or down.
func Unavailable(message string) *AppError {
	return appError(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", message)
}

// Internalf is a 500 with a client-safe message.
func Internalf(format string, a ...interface{}) *AppError {
	return appError(http.StatusInternalServerError, "ERR_INTERNAL", fmt.Sprintf(format, a...))
}
