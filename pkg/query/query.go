// Package query translates user-level filters into World Bank API endpoint
// requests. All validation happens here, before any network call.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidQuery is returned for filters that can never produce a valid
// request (empty indicator list, malformed date expression, blank codes).
var ErrInvalidQuery = errors.New("invalid query")

// Request describes one endpoint to fetch: a path relative to the API base
// URL plus its query parameters. Pagination and format parameters are added
// by the client, not here.
type Request struct {
	Path   string
	Params url.Values
}

// Countries returns the request for the full country metadata listing.
func Countries() Request {
	return Request{Path: "country", Params: url.Values{}}
}

// Indicators returns the request for the full indicator metadata listing.
func Indicators() Request {
	return Request{Path: "indicator", Params: url.Values{}}
}

// Indicator returns the metadata request for a single indicator code.
func Indicator(code string) (Request, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Request{}, fmt.Errorf("%w: empty indicator code", ErrInvalidQuery)
	}
	return Request{
		Path:   "indicator/" + url.PathEscape(code),
		Params: url.Values{},
	}, nil
}

// DataFilter holds user filters for an observation fetch.
type DataFilter struct {
	// Indicators is the list of indicator codes. Must not be empty.
	Indicators []string

	// Countries is an explicit list of ISO3 codes, or empty / ["all"] for
	// all economies.
	Countries []string

	// Date is a year ("2020"), an inclusive range ("2000:2023") or an
	// open-ended range ("2010:"). Empty means no date restriction.
	Date string
}

// IndicatorRequest pairs an observation request with the indicator code it
// fetches.
type IndicatorRequest struct {
	Indicator string
	Request   Request
}

// Requests validates the filter and expands it into one request per
// indicator code. The observation endpoint accepts a single indicator per
// call, so multi-indicator fetches are issued sequentially by the caller.
func (f DataFilter) Requests() ([]IndicatorRequest, error) {
	codes := dedupe(f.Indicators)
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: at least one indicator code is required", ErrInvalidQuery)
	}

	scope, err := CountryScope(f.Countries)
	if err != nil {
		return nil, err
	}

	date, err := ParseDate(f.Date, time.Now())
	if err != nil {
		return nil, err
	}

	reqs := make([]IndicatorRequest, 0, len(codes))
	for _, code := range codes {
		params := url.Values{}
		if date != "" {
			params.Set("date", date)
		}
		reqs = append(reqs, IndicatorRequest{
			Indicator: code,
			Request: Request{
				Path:   "country/" + scope + "/indicator/" + url.PathEscape(code),
				Params: params,
			},
		})
	}
	return reqs, nil
}

// CountryScope collapses a country code list into the path segment the API
// expects: "all" for every economy, or codes joined with ";". Duplicates are
// dropped, first-occurrence order is preserved.
func CountryScope(countries []string) (string, error) {
	codes := dedupe(countries)
	if len(codes) == 0 {
		return "all", nil
	}
	if len(codes) == 1 && strings.EqualFold(codes[0], "all") {
		return "all", nil
	}
	escaped := make([]string, 0, len(codes))
	for _, c := range codes {
		if strings.EqualFold(c, "all") {
			return "", fmt.Errorf("%w: %q cannot be combined with explicit country codes", ErrInvalidQuery, c)
		}
		escaped = append(escaped, url.PathEscape(c))
	}
	return strings.Join(escaped, ";"), nil
}

var (
	yearRe  = regexp.MustCompile(`^\d{4}$`)
	rangeRe = regexp.MustCompile(`^(\d{4}):(\d{4})$`)
	openRe  = regexp.MustCompile(`^(\d{4}):$`)
)

// ParseDate resolves a date expression into the literal range string sent to
// the API. Open-ended ranges ("2010:") are pinned to the current year once,
// at build time, so a run's results are reproducible.
func ParseDate(expr string, now time.Time) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", nil
	}
	if yearRe.MatchString(expr) {
		return expr, nil
	}
	if m := rangeRe.FindStringSubmatch(expr); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if start > end {
			return "", fmt.Errorf("%w: date range %q starts after it ends", ErrInvalidQuery, expr)
		}
		return expr, nil
	}
	if m := openRe.FindStringSubmatch(expr); m != nil {
		return fmt.Sprintf("%s:%d", m[1], now.Year()), nil
	}
	return "", fmt.Errorf("%w: unrecognized date expression %q", ErrInvalidQuery, expr)
}

// SplitList parses a comma-separated code list as given on the command line.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToUpper(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
