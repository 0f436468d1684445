package lookup

import (
	"context"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel detail requests per search.
const DefaultConcurrency = 5

// SearchWithDetails searches, then fetches details for every candidate with
// at most concurrency requests in flight. A candidate whose details cannot
// be fetched keeps its search summary. The search ranking order is kept.
func SearchWithDetails(ctx context.Context, c Client, title string, concurrency int) ([]model.SearchResult, error) {
	results, err := c.Search(ctx, title)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range results {
		i := i
		g.Go(func() error {
			d, err := c.Details(gctx, results[i].ExternalID)
			if err != nil {
				// Only a cancelled request aborts the batch.
				return ctx.Err()
			}
			results[i] = merge(results[i], *d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperror.Upstream("movie lookup cancelled", err)
	}
	return results, nil
}

// merge overlays non-empty detail fields onto a search summary.
func merge(summary, d model.SearchResult) model.SearchResult {
	out := summary
	if d.Title != "" {
		out.Title = d.Title
	}
	if d.Year != "" {
		out.Year = d.Year
	}
	if d.Poster != "" {
		out.Poster = d.Poster
	}
	out.Genre = d.Genre
	out.Runtime = d.Runtime
	out.Director = d.Director
	return out
}
