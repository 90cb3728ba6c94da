package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorCategory classifies an upstream failure for retry and severity policy.
type ErrorCategory string

const (
	CategoryAuth        ErrorCategory = "auth"
	CategoryRateLimit   ErrorCategory = "rate_limit"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryServerError ErrorCategory = "server_error"
	CategoryNetwork     ErrorCategory = "network"
	CategoryUnknown     ErrorCategory = "unknown"
)

// Severity grades how alarming a failure category is for operators.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Retryable reports whether errors in this category are safe to retry.
// Unknown errors fail closed rather than retry blindly.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryRateLimit, CategoryServerError, CategoryNetwork:
		return true
	default:
		return false
	}
}

// Severity returns the operator-facing severity of this category.
func (c ErrorCategory) Severity() Severity {
	switch c {
	case CategoryAuth, CategoryServerError:
		return SeverityHigh
	case CategoryNotFound:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// CategorizedError wraps an upstream error with its category and, when
// known, the HTTP status code that produced it.
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Err        error
}

func (e *CategorizedError) Error() string {
	return string(e.Category) + ": " + e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// httpStatusError is implemented by provider client errors that carry the
// upstream HTTP status code.
type httpStatusError interface {
	HTTPStatus() int
}

// Categorize maps an error onto the category taxonomy using the status code
// when available and message heuristics otherwise. A nil error returns nil.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var already *CategorizedError
	if errors.As(err, &already) {
		return already
	}

	var se httpStatusError
	if errors.As(err, &se) {
		return &CategorizedError{
			Category:   categorizeStatus(se.HTTPStatus()),
			StatusCode: se.HTTPStatus(),
			Err:        err,
		}
	}

	if isNetworkError(err) {
		return &CategorizedError{Category: CategoryNetwork, Err: err}
	}

	return &CategorizedError{Category: CategoryUnknown, Err: err}
}

func categorizeStatus(code int) ErrorCategory {
	switch {
	case code == 401 || code == 403:
		return CategoryAuth
	case code == 404:
		return CategoryNotFound
	case code == 429:
		return CategoryRateLimit
	case code >= 500:
		return CategoryServerError
	case code >= 300 && code < 400:
		// Unexpected redirects from API endpoints behave like network flakes.
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"context deadline exceeded",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range networkPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
