package modelloader

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig is the exponential-backoff policy shared by model downloads
// (§4.B) and tool-server initialization (§4.G). Defaults match spec §4.B.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// DefaultRetryConfig is spec §4.B's documented default: 3 retries, 1s
// initial delay, 2x multiplier, 30s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          30 * time.Second,
	}
}

// Retry runs op with exponential backoff per cfg. op returns a Permanent
// error (backoff.Permanent) to fail fast without further retries — used for
// the non-retriable classes in spec §4.B (401/403/404, unknown host).
func Retry[T any](ctx context.Context, cfg RetryConfig, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.Multiplier = cfg.BackoffMultiplier
	b.MaxInterval = cfg.MaxDelay

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
	)
}

// Permanent marks err as non-retriable, per the HTTP-status classification
// in classifyHTTPStatus.
func Permanent(err error) error { return backoff.Permanent(err) }
