package ordering

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/stickers"
)

func item(uri string, tags map[string]string, st map[string]string) Item {
	attrs := map[string]string{"file": uri}
	for k, v := range tags {
		attrs[k] = v
	}
	return Item{Track: models.NewTrack(attrs), Stickers: stickers.Table{uri: st}.Lookup(uri)}
}

func intPtr(v int) *int { return &v }

func TestApply(t *testing.T) {
	items := []Item{
		item("a", map[string]string{"Artist": "Coltrane", "Date": "1959"}, map[string]string{"rating": "9"}),
		item("b", map[string]string{"Artist": "adderley", "Date": "1958"}, map[string]string{"rating": "10"}),
		item("c", map[string]string{"Artist": "Coltrane"}, nil),
		item("d", map[string]string{"Artist": "Brubeck", "Date": "1959"}, map[string]string{"rating": "9"}),
	}

	tc := []struct {
		name  string
		order []models.OrderClause
		limit *int
		want  []string
	}{
		{name: "no order keeps remote order", want: []string{"a", "b", "c", "d"}},
		{
			name:  "case-insensitive ascending",
			order: []models.OrderClause{{Field: "artist", Direction: models.Ascending}},
			want:  []string{"b", "d", "a", "c"},
		},
		{
			name:  "missing last when ascending",
			order: []models.OrderClause{{Field: "date", Direction: models.Ascending}},
			want:  []string{"b", "a", "d", "c"},
		},
		{
			name:  "missing last when descending",
			order: []models.OrderClause{{Field: "date", Direction: models.Descending}},
			want:  []string{"a", "d", "b", "c"},
		},
		{
			name:  "numeric sticker descending",
			order: []models.OrderClause{{Field: "sticker:rating", Direction: models.Descending}},
			want:  []string{"b", "a", "d", "c"},
		},
		{
			name: "multi key",
			order: []models.OrderClause{
				{Field: "date", Direction: models.Descending},
				{Field: "artist", Direction: models.Ascending},
			},
			want: []string{"d", "a", "b", "c"},
		},
		{
			name:  "limit after ordering",
			order: []models.OrderClause{{Field: "sticker:rating", Direction: models.Descending}},
			limit: intPtr(2),
			want:  []string{"b", "a"},
		},
		{name: "limit larger than result", limit: intPtr(10), want: []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(items, tt.order, false, tt.limit, nil)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Apply = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("mixed numeric and text values ignore arrival order", func(t *testing.T) {
		mixed := []Item{
			item("a", map[string]string{"Track": "9"}, nil),
			item("b", map[string]string{"Track": "10"}, nil),
			item("c", map[string]string{"Track": "2/12"}, nil),
		}
		order := []models.OrderClause{{Field: "track", Direction: models.Ascending}}
		perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
		for _, perm := range perms {
			in := []Item{mixed[perm[0]], mixed[perm[1]], mixed[perm[2]]}
			if got := Apply(in, order, false, nil, nil); !slices.Equal(got, []string{"a", "b", "c"}) {
				t.Errorf("arrival order %v sorted to %v", perm, got)
			}
		}
	})

	t.Run("does not reorder input", func(t *testing.T) {
		Apply(items, []models.OrderClause{{Field: "artist", Direction: models.Descending}}, false, nil, nil)
		if items[0].Track.URI != "a" || items[3].Track.URI != "d" {
			t.Error("input slice was modified")
		}
	})
}

func TestApplyShuffle(t *testing.T) {
	var items []Item
	for _, uri := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		items = append(items, item(uri, nil, nil))
	}

	t.Run("permutation with limit", func(t *testing.T) {
		got := Apply(items, nil, true, intPtr(5), rand.New(rand.NewPCG(1, 2)))
		if len(got) != 5 {
			t.Fatalf("expected 5 items, got %d", len(got))
		}
		seen := map[string]bool{}
		for _, uri := range got {
			if seen[uri] {
				t.Errorf("duplicate %s in shuffle", uri)
			}
			seen[uri] = true
		}
	})

	t.Run("seeded shuffle is reproducible", func(t *testing.T) {
		first := Apply(items, nil, true, nil, rand.New(rand.NewPCG(7, 7)))
		second := Apply(items, nil, true, nil, rand.New(rand.NewPCG(7, 7)))
		if !slices.Equal(first, second) {
			t.Errorf("same seed should give same order: %v vs %v", first, second)
		}
	})

	t.Run("fresh shuffle per call", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(3, 4))
		distinct := map[string]bool{}
		for range 10 {
			got := Apply(items, nil, true, nil, rng)
			distinct[fmtSeq(got)] = true
		}
		if len(distinct) < 2 {
			t.Error("expected successive shuffles to differ")
		}
	})
}

func fmtSeq(s []string) string {
	out := ""
	for _, v := range s {
		out += v
	}
	return out
}
