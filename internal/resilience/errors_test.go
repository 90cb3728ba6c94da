package resilience

import (
	"errors"
	"fmt"
	"testing"
)

type statusErr struct {
	code int
}

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

func TestCategorize_ByStatusCode(t *testing.T) {
	cases := []struct {
		code      int
		want      ErrorCategory
		retryable bool
		severity  Severity
	}{
		{401, CategoryAuth, false, SeverityHigh},
		{403, CategoryAuth, false, SeverityHigh},
		{404, CategoryNotFound, false, SeverityLow},
		{429, CategoryRateLimit, true, SeverityMedium},
		{500, CategoryServerError, true, SeverityHigh},
		{503, CategoryServerError, true, SeverityHigh},
		{302, CategoryNetwork, true, SeverityMedium},
	}

	for _, tc := range cases {
		cerr := Categorize(&statusErr{code: tc.code})
		if cerr.Category != tc.want {
			t.Errorf("status %d: expected %s, got %s", tc.code, tc.want, cerr.Category)
		}
		if cerr.StatusCode != tc.code {
			t.Errorf("status %d: status code not preserved, got %d", tc.code, cerr.StatusCode)
		}
		if cerr.Category.Retryable() != tc.retryable {
			t.Errorf("status %d: expected retryable=%v", tc.code, tc.retryable)
		}
		if cerr.Category.Severity() != tc.severity {
			t.Errorf("status %d: expected severity=%s, got %s", tc.code, tc.severity, cerr.Category.Severity())
		}
	}
}

func TestCategorize_WrappedStatusError(t *testing.T) {
	err := fmt.Errorf("marvel: request failed: %w", &statusErr{code: 429})
	cerr := Categorize(err)
	if cerr.Category != CategoryRateLimit {
		t.Errorf("expected rate_limit through wrapping, got %s", cerr.Category)
	}
}

func TestCategorize_NetworkHeuristics(t *testing.T) {
	for _, msg := range []string{
		"dial tcp: connection refused",
		"read tcp: connection reset by peer",
		"Get \"https://api\": tls handshake timeout",
		"lookup api.example.com: no such host",
	} {
		cerr := Categorize(errors.New(msg))
		if cerr.Category != CategoryNetwork {
			t.Errorf("%q: expected network, got %s", msg, cerr.Category)
		}
	}
}

func TestCategorize_UnknownFailsClosed(t *testing.T) {
	cerr := Categorize(errors.New("something odd happened"))
	if cerr.Category != CategoryUnknown {
		t.Fatalf("expected unknown, got %s", cerr.Category)
	}
	if cerr.Category.Retryable() {
		t.Error("unknown errors must not be retryable")
	}
}

func TestCategorize_Nil(t *testing.T) {
	if Categorize(nil) != nil {
		t.Error("nil error should categorize to nil")
	}
}

func TestCategorize_Idempotent(t *testing.T) {
	first := Categorize(&statusErr{code: 404})
	second := Categorize(fmt.Errorf("adapter: %w", first))
	if second != first {
		t.Error("recategorizing a wrapped CategorizedError should return the original")
	}
}
