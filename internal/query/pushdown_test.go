package query

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/stickers"
	tu "github.com/desertthunder/dynlist/internal/testing"
)

var (
	genDirs    = []string{"Jazz/Miles", "Jazz/Miles/Live", "Jazz/Coltrane", "Rock", "Rock/Jazz"}
	genGenres  = []string{"Jazz", "jazz", "Rock", "Jazz Fusion"}
	genArtists = []string{"Miles Davis", "MILES DAVIS", "John Coltrane", ""}
)

// generatedCatalogue builds a library of n songs with mixed-case tags,
// nested directories and sparse rating stickers.
func generatedCatalogue(r *rand.Rand, n int) (*tu.FakeLibrary, stickers.Table) {
	lib := tu.NewFakeLibrary()
	table := stickers.Table{}
	for i := range n {
		uri := fmt.Sprintf("%s/%02d.flac", genDirs[r.IntN(len(genDirs))], i)
		attrs := map[string]string{
			"file":  uri,
			"Genre": genGenres[r.IntN(len(genGenres))],
			"Title": "Take " + strconv.Itoa(i),
		}
		if artist := genArtists[r.IntN(len(genArtists))]; artist != "" {
			attrs["Artist"] = artist
		}
		lib.AddTrack(attrs)
		if r.IntN(3) > 0 {
			rating := strconv.Itoa(1 + r.IntN(10))
			lib.SetSticker(uri, "rating", rating)
			table[uri] = map[string]string{"rating": rating}
		}
	}
	return lib, table
}

func pick[T any](r *rand.Rand, xs ...T) T { return xs[r.IntN(len(xs))] }

func randomLeaf(r *rand.Rand, uris []string) *models.Node {
	switch r.IntN(8) {
	case 0:
		return models.Sticker("rating",
			pick(r, models.OpEqual, models.OpNotEqual, models.OpGreaterEq, models.OpLess, models.OpExists),
			strconv.Itoa(1+r.IntN(10)))
	case 1:
		return models.Tag("base", pick(r, models.OpEqual, models.OpNotEqual),
			pick(r, "Jazz", "Jazz/Miles", "Rock", "jazz", "Jazz/Mil"), r.IntN(2) == 0)
	case 2:
		uri := uris[r.IntN(len(uris))]
		if r.IntN(2) == 0 {
			uri = strings.ToUpper(uri)
		}
		return models.Tag("file", models.OpEqual, uri, r.IntN(2) == 0)
	case 3:
		return models.Tag("vibe", models.OpEqual, "chill", false)
	case 4:
		return models.Tag("any", pick(r, models.OpEqual, models.OpContains), pick(r, "miles davis", "Jazz", "take 1", "ol"), r.IntN(2) == 0)
	}

	field := pick(r, "genre", "artist", "title")
	op := pick(r, models.OpEqual, models.OpNotEqual, models.OpContains, models.OpStartsWith, models.OpRegex, models.OpNotRegex)
	var value string
	switch op {
	case models.OpRegex, models.OpNotRegex:
		value = pick(r, "^j", "s$", "a.e", "davis")
	default:
		value = pick(r, "Jazz", "jazz", "Miles Davis", "miles", "John", "Take 1", "az", "Rock")
	}
	return models.Tag(field, op, value, r.IntN(2) == 0)
}

func randomTree(r *rand.Rand, depth int, uris []string) *models.Node {
	if depth == 0 || r.IntN(3) == 0 {
		return randomLeaf(r, uris)
	}
	children := func() []*models.Node {
		out := make([]*models.Node, 2+r.IntN(2))
		for i := range out {
			out[i] = randomTree(r, depth-1, uris)
		}
		return out
	}
	switch r.IntN(3) {
	case 0:
		return models.And(children()...)
	case 1:
		return models.Or(children()...)
	default:
		return models.Not(randomTree(r, depth-1, uris))
	}
}

// groundTruth evaluates a tree directly over a song, without any pushdown.
func groundTruth(n *models.Node, t *models.Track, table stickers.Table) bool {
	switch n.Type {
	case models.NodeAnd:
		for _, c := range n.Children {
			if !groundTruth(c, t, table) {
				return false
			}
		}
		return true
	case models.NodeOr:
		for _, c := range n.Children {
			if groundTruth(c, t, table) {
				return true
			}
		}
		return false
	case models.NodeNot:
		return !groundTruth(n.Children[0], t, table)
	case models.NodeSticker:
		return stickerTruth(n.Sticker, table[t.URI])
	}

	q := n.Tag
	field := strings.ToLower(q.Field)
	var values []string
	fold := !q.CaseSensitive
	switch field {
	case "vibe":
		return false
	case "base":
		dir := strings.TrimSuffix(q.Value, "/")
		in := t.URI == dir || strings.HasPrefix(t.URI, dir+"/")
		return in != (q.Op == models.OpNotEqual)
	case "file":
		values, fold = []string{t.URI}, false
	case "any":
		for _, k := range []string{"genre", "artist", "title"} {
			if v, ok := t.Tags[k]; ok {
				values = append(values, v)
			}
		}
	default:
		if v, ok := t.Tags[field]; ok {
			values = []string{v}
		}
	}

	negated := q.Op == models.OpNotEqual || q.Op == models.OpNotRegex
	hit := false
	for _, v := range values {
		want := q.Value
		if fold {
			v, want = strings.ToLower(v), strings.ToLower(want)
		}
		switch q.Op {
		case models.OpEqual, models.OpNotEqual:
			hit = v == want
		case models.OpContains:
			hit = strings.Contains(v, want)
		case models.OpStartsWith:
			hit = strings.HasPrefix(v, want)
		case models.OpRegex, models.OpNotRegex:
			pattern := q.Value
			if fold {
				pattern = "(?i)" + pattern
			}
			hit = regexp.MustCompile(pattern).MatchString(v)
		}
		if hit {
			break
		}
	}
	return hit != negated
}

func stickerTruth(c *models.StickerCondition, values map[string]string) bool {
	v, ok := values[c.Key]
	switch c.Op {
	case models.OpExists:
		return ok
	case models.OpNotEqual:
		return !ok || v != c.Value
	}
	if !ok {
		return false
	}
	got, _ := strconv.Atoi(v)
	want, _ := strconv.Atoi(c.Value)
	switch c.Op {
	case models.OpEqual:
		return got == want
	case models.OpGreaterEq:
		return got >= want
	case models.OpLess:
		return got < want
	}
	return false
}

func TestPushdownAgreesWithGroundTruth(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	lib, table := generatedCatalogue(r, 40)
	catalogue, err := lib.ListAll(context.Background())
	if err != nil {
		t.Fatalf("failed to list catalogue: %v", err)
	}
	uris := make([]string, len(catalogue))
	for i, tr := range catalogue {
		uris[i] = tr.URI
	}

	schema := NewSchema([]string{"Artist", "Album", "Title", "Genre"})
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := range 400 {
		tree := randomTree(r, 3, uris)
		if r.IntN(2) == 0 {
			tree = models.And(randomLeaf(r, uris), tree)
		}
		pl := models.NewDynamicPlaylist("generated", tree)
		if err := pl.Validate(); err != nil {
			t.Fatalf("tree %d: generator produced an invalid tree: %v", i, err)
		}

		plan := Compile(tree, schema)
		candidates, err := Candidates(context.Background(), lib, plan)
		if err != nil {
			t.Fatalf("tree %d: candidates failed for plan %s: %v", i, plan, err)
		}
		fetched := map[string]bool{}
		for _, tr := range candidates {
			fetched[tr.URI] = true
		}

		var got, want []string
		for _, tr := range catalogue {
			truth := groundTruth(tree, tr, table)
			if truth {
				want = append(want, tr.URI)
				if !fetched[tr.URI] {
					t.Errorf("tree %d: plan %s did not fetch matching song %s", i, plan, tr.URI)
				}
			}
			if fetched[tr.URI] && plan.Match(tr, table.Lookup(tr.URI), now) {
				got = append(got, tr.URI)
			}
		}
		if !slices.Equal(got, want) {
			t.Errorf("tree %d: plan %s\n got  %v\n want %v", i, plan, got, want)
		}
	}

	if len(lib.Queries()) == 0 {
		t.Error("expected some trees to push filter expressions to the server")
	}
}
