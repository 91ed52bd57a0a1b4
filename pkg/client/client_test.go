package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jpazvd/wb-api-repo/internal/testutil"
	"github.com/jpazvd/wb-api-repo/pkg/query"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.PerPage = 50
	cfg.Timeout = 2 * time.Second
	cfg.Retry = fastRetryConfig(5)

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if c.PerPage() != DefaultPerPage {
		t.Errorf("PerPage = %d, want %d", c.PerPage(), DefaultPerPage)
	}
	if c.config.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.config.BaseURL, DefaultBaseURL)
	}
	if c.config.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", c.config.Retry.MaxAttempts)
	}
}

func TestNew_NegativePerPage(t *testing.T) {
	if _, err := New(Config{PerPage: -1}); err == nil {
		t.Error("Expected error for negative per_page")
	}
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	mock.SetResponse("/country", testutil.NewEnvelopeResponse(1, 6, 50, 296,
		`[{"id":"BRA","name":"Brazil"},{"id":"IND","name":"India"}]`))

	c := newTestClient(t, mock.URL())
	page, err := c.FetchPage(context.Background(), query.Countries(), 1)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if page.Number != 1 || page.Pages != 6 || page.Total != 296 {
		t.Errorf("envelope = %+v, want page 1 of 6, total 296", page)
	}
	if len(page.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(page.Records))
	}
	if page.Records[0]["id"] != "BRA" {
		t.Errorf("first record id = %v, want BRA", page.Records[0]["id"])
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("request count = %d, want 1", mock.GetRequestCount())
	}
}

func TestFetchPage_RequestParams(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	var gotQuery map[string]string
	mock.SetHandler("/country/all/indicator/SP.POP.TOTL", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"format":   r.URL.Query().Get("format"),
			"per_page": r.URL.Query().Get("per_page"),
			"page":     r.URL.Query().Get("page"),
			"date":     r.URL.Query().Get("date"),
		}
		w.Write([]byte(testutil.Envelope(3, 4, 50, 180, `[]`)))
	})

	c := newTestClient(t, mock.URL())
	reqs, err := query.DataFilter{
		Indicators: []string{"SP.POP.TOTL"},
		Date:       "2000:2023",
	}.Requests()
	if err != nil {
		t.Fatalf("Requests() failed: %v", err)
	}

	if _, err := c.FetchPage(context.Background(), reqs[0].Request, 3); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	want := map[string]string{"format": "json", "per_page": "50", "page": "3", "date": "2000:2023"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query param %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestFetchPage_RejectedNoRetry(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	mock.SetResponse("/indicator/BOGUS", testutil.MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"message":"The indicator was not found"}`,
	})

	c := newTestClient(t, mock.URL())
	req, _ := query.Indicator("BOGUS")
	_, err := c.FetchPage(context.Background(), req, 1)

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want *RejectedError", err)
	}
	if rejected.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", rejected.StatusCode)
	}
	if rejected.Body == "" {
		t.Error("Body excerpt should not be empty")
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("request count = %d, want 1 (no retry on 4xx)", mock.GetRequestCount())
	}
}

func TestFetchPage_RetriesServerErrors(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	attempts := 0
	mock.SetHandler("/country", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(testutil.Envelope(1, 1, 50, 1, `[{"id":"BRA"}]`)))
	})

	c := newTestClient(t, mock.URL())
	page, err := c.FetchPage(context.Background(), query.Countries(), 1)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(page.Records) != 1 {
		t.Errorf("got %d records, want 1", len(page.Records))
	}
}

func TestFetchPage_RetriesRateLimit(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	attempts := 0
	mock.SetHandler("/country", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(testutil.Envelope(1, 1, 50, 0, `[]`)))
	})

	c := newTestClient(t, mock.URL())
	if _, err := c.FetchPage(context.Background(), query.Countries(), 1); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestFetchPage_Exhaustion(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	mock.SetResponse("/country", testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL())
	_, err := c.FetchPage(context.Background(), query.Countries(), 2)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %T, want *ExhaustedError", err)
	}
	if exhausted.Page != 2 {
		t.Errorf("Page = %d, want 2", exhausted.Page)
	}
	if mock.GetRequestCount() != 5 {
		t.Errorf("request count = %d, want 5 (attempt budget)", mock.GetRequestCount())
	}
}

func TestFetchPage_MalformedBodyRetried(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	attempts := 0
	mock.SetHandler("/country", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Write([]byte(`<html>gateway error</html>`))
			return
		}
		w.Write([]byte(testutil.Envelope(1, 1, 50, 1, `[{"id":"BRA"}]`)))
	})

	c := newTestClient(t, mock.URL())
	if _, err := c.FetchPage(context.Background(), query.Countries(), 1); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (malformed body is transient)", attempts)
	}
}

func TestFetchPage_SingleElementPayloadIsMalformed(t *testing.T) {
	mock := testutil.NewMockWB()
	defer mock.Close()

	// The API reports some failures as 200 with a one-element error array.
	mock.SetResponse("/country", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[{"message":[{"id":"120","key":"Parameter error"}]}]`,
	})

	c := newTestClient(t, mock.URL())
	_, err := c.FetchPage(context.Background(), query.Countries(), 1)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want exhaustion after retrying malformed payload", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Class != ErrorClassDecode {
		t.Errorf("cause = %v, want decode-class APIError", err)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantPages   int
		wantTotal   int
		wantRecords int
		expectError bool
	}{
		{
			name:        "numeric meta",
			body:        `[{"page":1,"pages":3,"per_page":50,"total":120},[{"id":"BRA"}]]`,
			wantPages:   3,
			wantTotal:   120,
			wantRecords: 1,
		},
		{
			name:        "quoted meta numbers",
			body:        `[{"page":"1","pages":"2","per_page":"50","total":"60"},[{"id":"BRA"}]]`,
			wantPages:   2,
			wantTotal:   60,
			wantRecords: 1,
		},
		{
			name:        "missing pages defaults to one",
			body:        `[{"page":1,"per_page":50,"total":4},[{"id":"BRA"}]]`,
			wantPages:   1,
			wantTotal:   4,
			wantRecords: 1,
		},
		{
			name:        "null data",
			body:        `[{"page":1,"pages":1,"per_page":50,"total":0},null]`,
			wantPages:   1,
			wantTotal:   0,
			wantRecords: 0,
		},
		{
			name:        "not an array",
			body:        `{"message":"error"}`,
			expectError: true,
		},
		{
			name:        "single element",
			body:        `[{"message":"error"}]`,
			expectError: true,
		},
		{
			name:        "empty body",
			body:        ``,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := decodeEnvelope([]byte(tt.body))
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if page.Pages != tt.wantPages {
				t.Errorf("Pages = %d, want %d", page.Pages, tt.wantPages)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
			if len(page.Records) != tt.wantRecords {
				t.Errorf("records = %d, want %d", len(page.Records), tt.wantRecords)
			}
		})
	}
}
