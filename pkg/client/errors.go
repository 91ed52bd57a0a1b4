package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (other than 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents malformed or non-JSON response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError is a transient request failure carried through the retry loop.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("api %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// RejectedError is a permanent upstream rejection: a 4xx status other than
// 429, such as an unknown indicator code. It is never retried.
type RejectedError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream rejected request (status %d): %s", e.StatusCode, e.Body)
}

// ExhaustedError is returned once the retry budget for a single page request
// is used up. It carries the failing page number and the last underlying
// cause; the whole fetch aborts, earlier pages are discarded.
type ExhaustedError struct {
	Page     int
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("page %d failed after %d attempts: %v", e.Page, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRetryExhausted) match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// classify maps an attempt error onto an error class for retry decisions and
// metrics.
func classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return ErrorClassClient
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// Permanent rejections are never retried.
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork, ErrorClassDecode:
		return true
	default:
		return false
	}
}
