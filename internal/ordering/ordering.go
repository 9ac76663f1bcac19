// Package ordering sorts, shuffles and truncates evaluated tracks.
package ordering

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/stickers"
)

// Item is one matched track with its sticker values.
type Item struct {
	Track    *models.Track
	Stickers stickers.Lookup
}

func (it Item) value(o models.OrderClause) (string, bool) {
	if key, ok := o.StickerKey(); ok {
		if it.Stickers == nil {
			return "", false
		}
		return it.Stickers(key)
	}
	return it.Track.Value(o.Field)
}

// Apply orders items and returns the URIs of the first limit of them.
//
// With shuffle set the items are permuted using rng, or the global source
// when rng is nil. Otherwise they are sorted stably by each clause in turn;
// ties keep the incoming order and missing values sort last in either
// direction. The limit applies after ordering.
func Apply(items []Item, order []models.OrderClause, shuffle bool, limit *int, rng *rand.Rand) []string {
	sorted := slices.Clone(items)

	switch {
	case shuffle:
		swap := func(i, j int) { sorted[i], sorted[j] = sorted[j], sorted[i] }
		if rng != nil {
			rng.Shuffle(len(sorted), swap)
		} else {
			rand.Shuffle(len(sorted), swap)
		}
	case len(order) > 0:
		slices.SortStableFunc(sorted, func(a, b Item) int {
			for _, o := range order {
				if c := compareBy(a, b, o); c != 0 {
					return c
				}
			}
			return 0
		})
	}

	if limit != nil && *limit >= 0 && *limit < len(sorted) {
		sorted = sorted[:*limit]
	}

	uris := make([]string, len(sorted))
	for i, it := range sorted {
		uris[i] = it.Track.URI
	}
	return uris
}

func compareBy(a, b Item, o models.OrderClause) int {
	va, okA := a.value(o)
	vb, okB := b.value(o)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}

	c := stickers.Compare(strings.ToLower(va), strings.ToLower(vb))
	if o.Direction == models.Descending {
		c = -c
	}
	return c
}
