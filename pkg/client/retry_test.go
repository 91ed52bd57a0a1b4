package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastRetryConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", cfg.MaxBackoff)
	}
	if cfg.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", cfg.BackoffMultiplier)
	}
	if !cfg.Jitter {
		t.Error("Jitter should default to true")
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(5), zerolog.Nop(), 1, func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterTransientFailures(t *testing.T) {
	// Fails twice with a retryable error, then succeeds.
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(5), zerolog.Nop(), 1, func() error {
		callCount++
		if callCount < 3 {
			return &APIError{StatusCode: 502, Class: ErrorClassServer}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_NonRetryableFailsImmediately(t *testing.T) {
	callCount := 0
	rejected := &RejectedError{StatusCode: 404, Body: "not found"}
	err := retryWithBackoff(context.Background(), fastRetryConfig(5), zerolog.Nop(), 1, func() error {
		callCount++
		return rejected
	})

	if !errors.Is(err, rejected) {
		t.Errorf("error = %v, want the rejection itself", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", callCount)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(4), zerolog.Nop(), 7, func() error {
		callCount++
		return &APIError{StatusCode: 503, Class: ErrorClassServer}
	})

	if callCount != 4 {
		t.Errorf("Expected exactly 4 calls, got %d", callCount)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %T, want *ExhaustedError", err)
	}
	if exhausted.Page != 7 {
		t.Errorf("Page = %d, want 7", exhausted.Page)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", exhausted.Attempts)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastRetryConfig(5)
	cfg.InitialBackoff = 200 * time.Millisecond

	callCount := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- retryWithBackoff(ctx, cfg, zerolog.Nop(), 1, func() error {
			callCount++
			return &APIError{StatusCode: 500, Class: ErrorClassServer}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("error = %v, want ErrContextCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop after context cancellation")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}
