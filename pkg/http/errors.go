package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows its HTTP status and a stable code clients
// can switch on. Params carry structured detail such as the failing stage.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = map[string]interface{}{}
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// statusCode is the default error code for an HTTP status.
func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "ERR_BAD_REQUEST"
	case http.StatusNotFound:
		return "ERR_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "ERR_METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "ERR_CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "ERR_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "ERR_RATE_LIMITED"
	}
	if status >= 500 {
		return "ERR_INTERNAL"
	}
	return "ERR_HTTP_" + fmt.Sprint(status)
}

func statusError(status int, message string) *AppError {
	return NewAppError(statusCode(status), "", message, status)
}

func BadRequestError(message string) *AppError { return statusError(http.StatusBadRequest, message) }

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

func NotFoundError(message string) *AppError { return statusError(http.StatusNotFound, message) }

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

func TooManyRequestsError(message string) *AppError {
	return statusError(http.StatusTooManyRequests, message)
}

func InternalError(message string) *AppError {
	return statusError(http.StatusInternalServerError, message)
}
