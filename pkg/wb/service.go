// Package wb ties the query builder, paginated fetcher, normalizer and
// reshaper together into the three logical API resources: country metadata,
// indicator metadata and indicator observations.
package wb

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jpazvd/wb-api-repo/pkg/client"
	"github.com/jpazvd/wb-api-repo/pkg/logging"
	"github.com/jpazvd/wb-api-repo/pkg/normalize"
	"github.com/jpazvd/wb-api-repo/pkg/pagination"
	"github.com/jpazvd/wb-api-repo/pkg/query"
	"github.com/jpazvd/wb-api-repo/pkg/reshape"
)

// Service executes complete fetch-normalize-reshape pipelines. All state is
// per-call; nothing persists across invocations.
type Service struct {
	fetcher *pagination.Fetcher
	logger  zerolog.Logger
}

// New creates a service on top of an API client.
func New(c *client.Client) *Service {
	return &Service{
		fetcher: pagination.NewFetcher(c),
		logger:  logging.NewLogger("wb-service"),
	}
}

// NewWithFetcher creates a service with a custom page fetcher (for testing).
func NewWithFetcher(f *pagination.Fetcher) *Service {
	return &Service{
		fetcher: f,
		logger:  logging.NewLogger("wb-service"),
	}
}

// Countries fetches the full country metadata table.
func (s *Service) Countries(ctx context.Context) (reshape.Table, error) {
	records, err := s.fetcher.Records(ctx, query.Countries())
	if err != nil {
		return reshape.Table{}, err
	}

	rows := make([]normalize.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, normalize.Country(rec))
	}
	s.logger.Info().Int("rows", len(rows)).Msg("Fetched country metadata")
	return rowsToTable(normalize.CountryColumns, rows), nil
}

// IndicatorFilter narrows an indicator metadata fetch. With Codes set, each
// code is fetched individually (the listing endpoint cannot filter by
// several codes at once). Search filters the full listing client-side by
// substring over code and name.
type IndicatorFilter struct {
	Codes  []string
	Search string
}

// Indicators fetches indicator metadata.
func (s *Service) Indicators(ctx context.Context, f IndicatorFilter) (reshape.Table, error) {
	var rows []normalize.Row

	if len(f.Codes) > 0 {
		for _, code := range f.Codes {
			req, err := query.Indicator(code)
			if err != nil {
				return reshape.Table{}, err
			}
			records, err := s.fetcher.Records(ctx, req)
			if err != nil {
				return reshape.Table{}, err
			}
			for _, rec := range records {
				rows = append(rows, normalize.Indicator(rec))
			}
		}
	} else {
		records, err := s.fetcher.Records(ctx, query.Indicators())
		if err != nil {
			return reshape.Table{}, err
		}
		needle := strings.ToLower(strings.TrimSpace(f.Search))
		for _, rec := range records {
			row := normalize.Indicator(rec)
			if needle != "" && !matchesSearch(row, needle) {
				continue
			}
			rows = append(rows, row)
		}
	}

	s.logger.Info().Int("rows", len(rows)).Msg("Fetched indicator metadata")
	return rowsToTable(normalize.IndicatorColumns, rows), nil
}

// Data fetches observations for the given filter, one indicator at a time,
// and returns them sorted by (country, indicator, date). Null values are
// preserved.
func (s *Service) Data(ctx context.Context, f query.DataFilter) ([]normalize.Observation, error) {
	obs, err := s.fetchObservations(ctx, f)
	if err != nil {
		return nil, err
	}
	sortObservations(obs)
	return obs, nil
}

// DataTable fetches observations and renders them long or wide. The long
// table is sorted; the wide pivot keeps fetch order, so indicator columns
// appear in the order they were requested.
func (s *Service) DataTable(ctx context.Context, f query.DataFilter, wide bool) (reshape.Table, error) {
	obs, err := s.fetchObservations(ctx, f)
	if err != nil {
		return reshape.Table{}, err
	}
	if wide {
		return reshape.ToWide(obs).Table(), nil
	}
	sortObservations(obs)
	return reshape.Long(obs), nil
}

// fetchObservations runs the filter's requests sequentially and flattens the
// records in fetch order.
func (s *Service) fetchObservations(ctx context.Context, f query.DataFilter) ([]normalize.Observation, error) {
	reqs, err := f.Requests()
	if err != nil {
		return nil, err
	}

	var obs []normalize.Observation
	for _, ir := range reqs {
		records, err := s.fetcher.Records(ctx, ir.Request)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			obs = append(obs, normalize.ObservationFrom(rec, ir.Indicator))
		}
		s.logger.Debug().
			Str("indicator", ir.Indicator).
			Int("records", len(records)).
			Msg("Fetched indicator data")
	}
	return obs, nil
}

// sortObservations orders rows by country, indicator, then numeric date,
// keeping input order for ties.
func sortObservations(obs []normalize.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].CountryCode != obs[j].CountryCode {
			return obs[i].CountryCode < obs[j].CountryCode
		}
		if obs[i].Indicator != obs[j].Indicator {
			return obs[i].Indicator < obs[j].Indicator
		}
		return dateKey(obs[i].Date) < dateKey(obs[j].Date)
	})
}

// dateKey parses the leading year of a date/period string for ordering;
// non-numeric periods sort lexically after numeric years via fallback 0.
func dateKey(date string) int {
	n, err := strconv.Atoi(strings.TrimSpace(date))
	if err != nil {
		return 0
	}
	return n
}

func matchesSearch(row normalize.Row, needle string) bool {
	for _, key := range []string{"id", "name"} {
		if s, ok := row[key].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func rowsToTable(columns []string, rows []normalize.Row) reshape.Table {
	t := reshape.Table{Columns: columns}
	t.Rows = make([][]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, row[col])
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}
