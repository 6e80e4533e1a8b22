package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Category closed set of failure classes
type Category int

const (
	CategoryOther Category = iota
	CategoryNetworkTransient
	CategoryRateLimited
	CategoryServerError
	CategoryClientError
)

func (c Category) String() string {
	switch c {
	case CategoryNetworkTransient:
		return "network_transient"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryServerError:
		return "server_error"
	case CategoryClientError:
		return "client_error"
	default:
		return "other"
	}
}

// Retryable network failures, throttling and 5xx are worth another attempt
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetworkTransient, CategoryRateLimited, CategoryServerError:
		return true
	default:
		return false
	}
}

// Classifier maps an error to a Category at the call boundary
type Classifier interface {
	Classify(err error) Category
}

// ClassifierFunc adapts a function to Classifier
type ClassifierFunc func(err error) Category

func (f ClassifierFunc) Classify(err error) Category { return f(err) }

// HTTPError an error carrying an HTTP status
type HTTPError interface {
	error
	StatusCode() int
}

// StatusError minimal HTTPError for adapters that only know the status
type StatusError struct {
	Status int
	Msg    string
}

// NewStatusError creates a StatusError
func NewStatusError(status int, msg string) *StatusError {
	return &StatusError{Status: status, Msg: msg}
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Msg)
}

func (e *StatusError) StatusCode() int { return e.Status }

// CategorizedError lets an operation state its category explicitly
type CategorizedError struct {
	Category Category
	Err      error
}

func (e *CategorizedError) Error() string { return e.Err.Error() }
func (e *CategorizedError) Unwrap() error { return e.Err }

// Categorize tags err with c
func Categorize(err error, c Category) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Category: c, Err: err}
}

// DefaultClassifier recognises explicit categories, HTTP statuses, gRPC codes,
// syscall and net errors, and finally the message text of foreign errors.
var DefaultClassifier Classifier = ClassifierFunc(classify)

func classify(err error) Category {
	if err == nil {
		return CategoryOther
	}

	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}

	var he HTTPError
	if errors.As(err, &he) {
		return classifyStatus(he.StatusCode())
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return classifyGRPC(st.Code())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetworkTransient
	}
	if errors.Is(err, context.Canceled) {
		return CategoryOther
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return CategoryNetworkTransient
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryNetworkTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryNetworkTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryNetworkTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "econnrefused", "etimedout", "enotfound", "connection refused"} {
		if strings.Contains(msg, marker) {
			return CategoryNetworkTransient
		}
	}
	return CategoryOther
}

func classifyStatus(code int) Category {
	switch {
	case code == http.StatusTooManyRequests:
		return CategoryRateLimited
	case code == http.StatusRequestTimeout:
		return CategoryNetworkTransient
	case code >= 500 && code < 600:
		return CategoryServerError
	case code >= 400 && code < 500:
		return CategoryClientError
	default:
		return CategoryOther
	}
}

func classifyGRPC(code codes.Code) Category {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded:
		return CategoryNetworkTransient
	case codes.ResourceExhausted:
		return CategoryRateLimited
	case codes.Internal, codes.DataLoss, codes.Aborted:
		return CategoryServerError
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.OutOfRange, codes.Unimplemented:
		return CategoryClientError
	default:
		return CategoryOther
	}
}
