// Package resilience provides retry with exponential backoff, transient
// error classification, and per-service quota guards for the external APIs
// the pipeline depends on.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (429, 5xx, network
// timeout). StatusCode is zero for non-HTTP failures.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// QuotaError signals that a service's paid or daily quota is spent. It is
// never retried; callers short-circuit the remaining work for that service
// and record a quota_exhausted outcome instead of failing the run.
type QuotaError struct {
	Service string
	Err     error
}

func (e *QuotaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: quota exhausted", e.Service)
	}
	return fmt.Sprintf("%s: quota exhausted: %v", e.Service, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

// IsQuotaExhausted reports whether the error chain contains a QuotaError.
func IsQuotaExhausted(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsTransient reports whether the error (or anything in its chain) is safe
// to retry: an explicit TransientError, a network timeout, a connection
// reset, or a known transient failure message from an HTTP client. Quota
// errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsQuotaExhausted(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// ClassifyHTTPStatus converts a non-2xx status into the right error class:
// 402 becomes a QuotaError for the service, retryable statuses become
// TransientError, and everything else is returned as a plain error.
func ClassifyHTTPStatus(service string, status int, body string) error {
	base := fmt.Errorf("%s: unexpected status %d: %s", service, status, strings.TrimSpace(body))
	switch {
	case status == 402:
		return &QuotaError{Service: service, Err: base}
	case status == 408, status == 429, status >= 500 && status <= 599:
		return NewTransientError(base, status)
	default:
		return base
	}
}
