// Package errcode provides layered error codes shared by every guard module.
// Code format: MMBBBB (MM = module code, BBBB = business code).
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Module codes
const (
	ModuleCommon  = 10
	ModuleConfig  = 11
	ModuleBreaker = 80
	ModuleRetry   = 81
	ModuleScaling = 82
	ModuleStore   = 83
	ModuleAudit   = 84
)

// LayeredError error with a stable code, an HTTP mapping and optional context data
type LayeredError struct {
	module     string
	code       int
	msgKey     string
	msg        string
	httpStatus int
	data       map[string]interface{}
	cause      error
}

// New creates a layered error, httpStatus defaults to 500
func New(moduleCode, businessCode int, module, msgKey, msg string, httpStatus ...int) *LayeredError {
	status := http.StatusInternalServerError
	if len(httpStatus) > 0 {
		status = httpStatus[0]
	}
	return &LayeredError{
		module:     module,
		code:       moduleCode*10000 + businessCode,
		msgKey:     msgKey,
		msg:        msg,
		httpStatus: status,
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *LayeredError) Code() int { return e.code }
func (e *LayeredError) Module() string { return e.module }
func (e *LayeredError) MsgKey() string { return e.msgKey }
func (e *LayeredError) Message() string { return e.msg }
func (e *LayeredError) HTTPStatus() int { return e.httpStatus }
func (e *LayeredError) Unwrap() error { return e.cause }
func (e *LayeredError) Data() map[string]interface{} { return e.data }

// WithMsgf returns a copy with a formatted message
func (e *LayeredError) WithMsgf(format string, args ...interface{}) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData returns a copy carrying one more context value
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := *e
	clone.data = make(map[string]interface{}, len(e.data)+1)
	for k, v := range e.data {
		clone.data[k] = v
	}
	clone.data[key] = value
	return &clone
}

// Wrap returns a copy with cause attached, nil cause returns e itself
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Is matches by code so wrapped copies compare equal to the sentinel
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

// From extracts the first LayeredError in err's chain
func From(err error) (*LayeredError, bool) {
	var le *LayeredError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// Common errors
var (
	ErrInternal   = Register(New(ModuleCommon, 1, "common", "error.internal", "internal error", http.StatusInternalServerError))
	ErrBadRequest = Register(New(ModuleCommon, 2, "common", "error.bad_request", "bad request", http.StatusBadRequest))
	ErrNotFound   = Register(New(ModuleCommon, 3, "common", "error.not_found", "not found", http.StatusNotFound))
)
