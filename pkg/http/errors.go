package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows its HTTP status and is rendered as a
// ValidationError-shaped item in the response envelope.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:            "ERR_BAD_REQUEST",
	http.StatusUnauthorized:          "ERR_UNAUTHORIZED",
	http.StatusForbidden:             "ERR_FORBIDDEN",
	http.StatusNotFound:              "ERR_NOT_FOUND",
	http.StatusMethodNotAllowed:      "ERR_METHOD_NOT_ALLOWED",
	http.StatusConflict:              "ERR_CONFLICT",
	http.StatusRequestEntityTooLarge: "ERR_TOO_LARGE",
	http.StatusTooManyRequests:       "ERR_RATE_LIMITED",
	http.StatusInternalServerError:   "ERR_INTERNAL",
	http.StatusServiceUnavailable:    "ERR_UNAVAILABLE",
}

func codeFor(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 500 {
		return "ERR_INTERNAL"
	}
	return "ERR_BAD_REQUEST"
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	if code == "" {
		code = codeFor(status)
	}
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError attaches the cause. It is logged but never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// StatusOf reports the HTTP status err maps to. Unknown errors are 500.
func StatusOf(err error) int {
	if appErr, ok := asAppError(err); ok && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func statusError(status int, message string) *AppError {
	return NewAppError("", "", message, status)
}

func BadRequestError(message string) *AppError {
	return statusError(http.StatusBadRequest, message)
}

func UnauthorizedError(message string) *AppError {
	return statusError(http.StatusUnauthorized, message)
}

func NotFoundError(message string) *AppError {
	return statusError(http.StatusNotFound, message)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

func ConflictError(message string) *AppError {
	return statusError(http.StatusConflict, message)
}

func UnavailableError(message string) *AppError {
	return statusError(http.StatusServiceUnavailable, message)
}

func InternalError(message string) *AppError {
	return statusError(http.StatusInternalServerError, message)
}
