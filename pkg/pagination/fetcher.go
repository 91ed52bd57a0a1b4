// Package pagination walks all pages of a paginated World Bank API endpoint.
//
// The API reports total page count in the envelope of every response, so the
// first page determines how many follow. Pages are requested strictly
// sequentially: the cursor is an ordinal page number and later pages only
// make sense relative to the envelope reported on page 1. A fetch is
// all-or-nothing; any page failure aborts the walk and earlier pages are
// discarded.
package pagination

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpazvd/wb-api-repo/pkg/logging"
	"github.com/jpazvd/wb-api-repo/pkg/query"
)

// Page is one decoded response page: the pagination envelope plus the raw
// records it carried.
type Page struct {
	Number  int
	Pages   int
	PerPage int
	Total   int
	Records []map[string]any
}

// PageFetcher fetches a single page of an endpoint.
type PageFetcher interface {
	FetchPage(ctx context.Context, req query.Request, page int) (*Page, error)
}

// Fetcher walks every page of an endpoint through a PageFetcher.
type Fetcher struct {
	client PageFetcher
	logger zerolog.Logger
}

// NewFetcher creates a sequential page fetcher.
func NewFetcher(client PageFetcher) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logging.NewLogger("pagination"),
	}
}

// Walk fetches pages 1..P in order and passes each to fn. An empty result
// (zero records on page 1) is a valid terminal state: fn is never called and
// Walk returns nil. Any fetch error or non-nil return from fn aborts the
// walk immediately.
func (f *Fetcher) Walk(ctx context.Context, req query.Request, fn func(*Page) error) error {
	start := time.Now()

	first, err := f.client.FetchPage(ctx, req, 1)
	if err != nil {
		return err
	}

	if len(first.Records) == 0 {
		f.logger.Debug().
			Str("endpoint", req.Path).
			Msg("Empty result set")
		return nil
	}

	if err := fn(first); err != nil {
		return err
	}

	for page := 2; page <= first.Pages; page++ {
		p, err := f.client.FetchPage(ctx, req, page)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}

	pages := first.Pages
	if pages < 1 {
		pages = 1
	}
	f.logger.Debug().
		Str("endpoint", req.Path).
		Int("pages", pages).
		Int("total", first.Total).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return nil
}

// Records fetches all pages and returns their records concatenated in page
// order.
func (f *Fetcher) Records(ctx context.Context, req query.Request) ([]map[string]any, error) {
	var records []map[string]any
	err := f.Walk(ctx, req, func(p *Page) error {
		records = append(records, p.Records...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
