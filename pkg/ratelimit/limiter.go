// Package ratelimit provides an in-process token bucket that gates requests
// against the shared API rate budget. A single Limiter can be injected into
// every client so that independent fetches running in one process draw from
// the same budget.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limit gating.
var (
	wbRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wb_rate_limit_waits_total",
		Help: "Total number of requests that had to wait for a rate limit token",
	})

	wbRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wb_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// Limiter is a token bucket refilled at a fixed rate. A nil *Limiter never
// blocks, so callers can treat "no limiter" and "limiter" uniformly.
type Limiter struct {
	tokens chan struct{}
	ticker *time.Ticker
	done   chan struct{}
}

// New creates a limiter allowing ratePerSec requests per second with the
// given burst capacity. A non-positive rate returns nil (unlimited).
func New(ratePerSec, burst int) *Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	l := &Limiter{
		tokens: make(chan struct{}, burst),
		done:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	interval := time.Second / time.Duration(ratePerSec)
	if interval <= 0 {
		interval = time.Second
	}
	l.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-l.ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
				}
			case <-l.done:
				return
			}
		}
	}()

	return l
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	// Fast path: token already available.
	select {
	case <-l.tokens:
		return nil
	default:
	}

	wbRateLimitWaitsTotal.Inc()
	start := time.Now()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		wbRateLimitWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	}
}

// Allow reports whether a token is immediately available and consumes it.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	select {
	case <-l.tokens:
		return true
	default:
		return false
	}
}

// Close stops the refill goroutine. Waiting callers holding no token will
// still drain any buffered tokens but receive no new ones.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.ticker.Stop()
	close(l.done)
}
