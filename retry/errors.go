package retry

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/KOMKZ/go-yogan-guard/errcode"
)

var (
	// ErrRetryExhausted sentinel matched by errors.Is on any RetryExhaustedError
	ErrRetryExhausted = errcode.Register(errcode.New(errcode.ModuleRetry, 1,
		"retry", "error.retry.exhausted", "retries exhausted", http.StatusBadGateway))

	// ErrInvalidConfig rejected policy, including per-call overrides
	ErrInvalidConfig = errcode.Register(errcode.New(errcode.ModuleRetry, 2,
		"retry", "error.retry.config", "invalid retry configuration", http.StatusBadRequest))
)

// RetryExhaustedError every attempt failed with a retryable error.
// Unwrap yields the last error so errors.Is/As see the final cause.
type RetryExhaustedError struct {
	Service  string
	Attempts int
	Errors   []error
}

func (e *RetryExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "retries exhausted for %s after %d attempts", e.Service, e.Attempts)
	if last := e.Last(); last != nil {
		fmt.Fprintf(&b, ": %v", last)
	}
	return b.String()
}

// Last the final attempt's error
func (e *RetryExhaustedError) Last() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last() }

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// HTTPStatus lets the admin envelope map the error
func (e *RetryExhaustedError) HTTPStatus() int { return http.StatusBadGateway }
