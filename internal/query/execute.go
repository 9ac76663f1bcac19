package query

import (
	"context"
	"fmt"

	"github.com/desertthunder/dynlist/internal/models"
)

// Catalog runs remote queries against the server catalogue.
type Catalog interface {
	Find(ctx context.Context, expr string) ([]*models.Track, error)
	Search(ctx context.Context, expr string) ([]*models.Track, error)
	ListAll(ctx context.Context) ([]*models.Track, error)
}

// Candidates fetches the songs the plan's remote queries select. Results of
// several queries are intersected, keeping the order of the first.
func Candidates(ctx context.Context, catalog Catalog, plan *Plan) ([]*models.Track, error) {
	if plan.Empty {
		return nil, nil
	}
	if plan.FullScan {
		tracks, err := catalog.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("list catalogue: %w", err)
		}
		return tracks, nil
	}

	var result []*models.Track
	for i, q := range plan.Queries {
		run := catalog.Search
		if q.CaseSensitive {
			run = catalog.Find
		}
		tracks, err := run(ctx, q.Expression)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Expression, err)
		}
		if i == 0 {
			result = tracks
			continue
		}
		keep := make(map[string]bool, len(tracks))
		for _, t := range tracks {
			keep[t.URI] = true
		}
		filtered := result[:0:0]
		for _, t := range result {
			if keep[t.URI] {
				filtered = append(filtered, t)
			}
		}
		result = filtered
	}
	return result, nil
}
