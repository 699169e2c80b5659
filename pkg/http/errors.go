package http

import (
	"fmt"
	"net/http"
)

// Error codes returned in AppError.Code.
const (
	CodeBadRequest       = "ERR_BAD_REQUEST"
	CodeInvalidTime      = "ERR_INVALID_TIME"
	CodeInvalidBar       = "ERR_INVALID_BAR"
	CodeLookAhead        = "ERR_LOOK_AHEAD"
	CodeOutOfOrder       = "ERR_OUT_OF_ORDER"
	CodeUnknownStrategy  = "ERR_UNKNOWN_STRATEGY"
	CodeBarsNotAllowed   = "ERR_BARS_NOT_ALLOWED"
	CodeNoBars           = "ERR_NO_BARS"
	CodeNotFound         = "ERR_NOT_FOUND"
	CodeQueueUnavailable = "ERR_QUEUE_UNAVAILABLE"
	CodeInternal         = "ERR_INTERNAL"
)

// AppError is an error the API reports to the caller as-is.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Field: field, Status: status}
}

// WithError keeps the cause for logs; it is never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// InvalidField reports a 400 tied to one request field.
func InvalidField(code, field, message string) *AppError {
	return NewAppError(code, field, message, http.StatusBadRequest)
}

func NotFoundError(code, message string) *AppError {
	return NewAppError(code, "", message, http.StatusNotFound)
}

func InternalError(message string) *AppError {
	return NewAppError(CodeInternal, "", message, http.StatusInternalServerError)
}
