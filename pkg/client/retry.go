package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	wbRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wb_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	wbRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wb_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	wbRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wb_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per page request,
	// including the initial one.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter randomizes each backoff by ±20% to avoid thundering herds
	// against the shared API.
	Jitter bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// retryWithBackoff executes fn with exponential backoff until it succeeds,
// fails permanently, or the attempt budget for the given page is used up.
// Non-retryable errors are returned unchanged; exhaustion is reported as an
// *ExhaustedError carrying the page number and last cause.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, page int, fn func() error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("page", page).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class := classify(err)

		if !shouldRetry(class) {
			return err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		wbRetriesTotal.WithLabelValues(string(class)).Inc()

		delay := backoff
		if cfg.Jitter {
			delay = time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		}
		wbRetryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())

		logger.Debug().
			Str("error_class", string(class)).
			Int("page", page).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	class := classify(lastErr)
	wbRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("page", page).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &ExhaustedError{Page: page, Attempts: cfg.MaxAttempts, Err: lastErr}
}
