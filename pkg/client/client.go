// Package client provides the core World Bank API HTTP client with retry,
// backoff, rate limiting, and envelope decoding.
//
// Every endpoint in the API family responds with a two-element JSON array
// [meta, data]: meta carries {page, pages, per_page, total} and data is an
// array of records. FetchPage decodes one such response into a
// pagination.Page; walking all pages is the pagination package's job.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/jpazvd/wb-api-repo/pkg/logging"
	"github.com/jpazvd/wb-api-repo/pkg/pagination"
	"github.com/jpazvd/wb-api-repo/pkg/query"
	"github.com/jpazvd/wb-api-repo/pkg/ratelimit"
)

// Prometheus metrics for API client operations.
var (
	wbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wb_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	wbRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wb_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	wbErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wb_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public World Bank API endpoint family.
	DefaultBaseURL = "https://api.worldbank.org/v2"

	// DefaultPerPage is the page size requested when none is configured.
	DefaultPerPage = 1000

	// maxBodyExcerpt bounds the response body carried in RejectedError.
	maxBodyExcerpt = 200
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API (default: DefaultBaseURL).
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// PerPage is the page size requested from the API.
	PerPage int

	// Timeout bounds each individual HTTP attempt. Timeouts count against
	// the same retry budget as other transient errors.
	Timeout time.Duration

	// Retry configures the per-page retry policy.
	Retry RetryConfig

	// Limiter gates requests against a shared rate budget. Nil disables
	// gating.
	Limiter *ratelimit.Limiter
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: "wb-api-repo/0.1",
		PerPage:   DefaultPerPage,
		Timeout:   60 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches single pages from the API.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PerPage < 0 {
		return nil, fmt.Errorf("per_page must not be negative (got %d)", cfg.PerPage)
	}
	if cfg.PerPage == 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logging.NewLogger("wb-client"),
	}, nil
}

// PerPage returns the configured page size.
func (c *Client) PerPage() int {
	return c.config.PerPage
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// FetchPage fetches and decodes one page of the given endpoint request,
// retrying transient failures per the configured policy.
func (c *Client) FetchPage(ctx context.Context, req query.Request, page int) (*pagination.Page, error) {
	endpoint := req.Path
	startTime := time.Now()
	defer func() {
		wbRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	u, err := c.pageURL(req, page)
	if err != nil {
		return nil, fmt.Errorf("build request url: %w", err)
	}

	var result *pagination.Page
	retryErr := retryWithBackoff(ctx, c.config.Retry, c.logger, page, func() error {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return &APIError{Class: ErrorClassNetwork, Message: "rate limit wait", Err: err}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return &APIError{Class: ErrorClassNetwork, Message: "create request", Err: err}
		}
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			wbErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			wbRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			wbErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &APIError{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err}
		}

		wbRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			attemptErr := c.statusError(resp.StatusCode, body)
			wbErrorsTotal.WithLabelValues(string(classify(attemptErr))).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("page", page).
				Int("status", resp.StatusCode).
				Str("error_class", string(classify(attemptErr))).
				Msg("API request error")
			return attemptErr
		}

		p, err := decodeEnvelope(body)
		if err != nil {
			wbErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			return &APIError{StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "decode envelope", Err: err}
		}
		if p.Number == 0 {
			p.Number = page
		}
		result = p
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return result, nil
}

// pageURL assembles the full request URL for one page.
func (c *Client) pageURL(req query.Request, page int) (string, error) {
	u, err := url.Parse(c.config.BaseURL + "/" + strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return "", err
	}

	params := url.Values{}
	for key, values := range req.Params {
		for _, v := range values {
			params.Add(key, v)
		}
	}
	params.Set("format", "json")
	params.Set("per_page", strconv.Itoa(c.config.PerPage))
	params.Set("page", strconv.Itoa(page))

	u.RawQuery = params.Encode()
	return u.String(), nil
}

// statusError maps an error status code onto the retry taxonomy: 429 and
// 5xx are transient, every other 4xx is a permanent rejection.
func (c *Client) statusError(status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &APIError{StatusCode: status, Class: ErrorClassRateLimit, Message: "rate limited"}
	case status >= 500:
		return &APIError{StatusCode: status, Class: ErrorClassServer, Message: http.StatusText(status)}
	default:
		return &RejectedError{StatusCode: status, Body: excerpt(body)}
	}
}

// envelopeMeta is the pagination header of every response. The API emits its
// numeric fields inconsistently as numbers or quoted strings depending on
// endpoint, hence flexInt.
type envelopeMeta struct {
	Page    flexInt `json:"page"`
	Pages   flexInt `json:"pages"`
	PerPage flexInt `json:"per_page"`
	Total   flexInt `json:"total"`
}

// decodeEnvelope parses a [meta, data] response body into a Page. Anything
// that is not a two-element array with a meta object is malformed: some
// failure modes of the API respond 200 with a one-element error payload.
func decodeEnvelope(body []byte) (*pagination.Page, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("unexpected payload: %s", excerpt(body))
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("unexpected payload: %s", excerpt(body))
	}

	var meta envelopeMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return nil, fmt.Errorf("decode envelope meta: %w", err)
	}

	var records []map[string]any
	if string(parts[1]) != "null" {
		if err := json.Unmarshal(parts[1], &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
	}

	pages := int(meta.Pages)
	if pages < 1 {
		// Small result sets may omit or zero the page count.
		pages = 1
	}

	return &pagination.Page{
		Number:  int(meta.Page),
		Pages:   pages,
		PerPage: int(meta.PerPage),
		Total:   int(meta.Total),
		Records: records,
	}, nil
}

// flexInt decodes JSON integers that may arrive quoted.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Some endpoints report per_page as a float.
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("parse envelope number %q: %w", s, err)
		}
		n = int(fl)
	}
	*f = flexInt(n)
	return nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyExcerpt {
		s = s[:maxBodyExcerpt]
	}
	return s
}
