package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls the backoff schedule of a resilient fetch.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// InitialDelay is the base delay before the first retry. Default: 1s.
	InitialDelay time.Duration

	// MaxDelay caps the backoff duration. Default: 30s.
	MaxDelay time.Duration

	// Multiplier scales the backoff after each attempt. Default: 2.0.
	Multiplier float64
}

// DefaultRetryConfig returns the standard retry schedule for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = d.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = d.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = d.Multiplier
	}
	return cfg
}

// backoffDelay computes the sleep before attempt k+1 (k is zero-based):
// min(initial × multiplier^k, max), plus up to 10% random jitter so
// concurrent callers don't retry in lockstep.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	delay += delay * 0.1 * rand.Float64()
	return time.Duration(delay)
}

// Fetcher wraps remote calls with retry, backoff, and a per-source circuit
// breaker. Adapters must not retry internally; this is the single owner of
// the retry policy.
type Fetcher struct {
	breakers *SourceBreakers
}

// NewFetcher creates a Fetcher backed by the given breaker registry.
func NewFetcher(breakers *SourceBreakers) *Fetcher {
	return &Fetcher{breakers: breakers}
}

// Breakers exposes the breaker registry for metrics and manual reset.
func (f *Fetcher) Breakers() *SourceBreakers {
	return f.breakers
}

// Fetch runs op against the named source through its circuit breaker,
// retrying transient failures per cfg. It returns the result, the number of
// attempts actually made, and a categorized error when all attempts are
// exhausted or a permanent failure is hit.
//
// The breaker observes every individual attempt, so a streak of failures
// opens it independently of the retry loop's own attempt budget.
func Fetch[T any](ctx context.Context, f *Fetcher, source string, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, int, error) {
	cfg = cfg.withDefaults()
	cb := f.breakers.Get(source)

	var zero T
	attempts := 0
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := ExecuteVal(ctx, cb, op)
		if err == nil {
			return val, attempts + 1, nil
		}

		// Breaker rejections never reach the provider and are surfaced
		// as-is so callers can tell "provider is down" apart from a
		// failed request.
		if errors.Is(err, ErrCircuitOpen) {
			return zero, attempts, err
		}
		attempts++
		lastErr = err

		cerr := Categorize(err)
		if !cerr.Category.Retryable() || ctx.Err() != nil {
			return zero, attempts, cerr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(attempt, cfg)
		zap.L().Warn("retrying source fetch",
			zap.String("source", source),
			zap.Int("attempt", attempts),
			zap.String("category", string(cerr.Category)),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempts, Categorize(lastErr)
		case <-timer.C:
		}
	}

	return zero, attempts, Categorize(lastErr)
}
