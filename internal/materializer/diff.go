package materializer

import (
	"fmt"
	"slices"

	"github.com/desertthunder/dynlist/internal/models"
)

// maxCells bounds the subsequence table; larger inputs are rewritten.
const maxCells = 4_000_000

// Diff is the edit list that turns the stored playlist into the new sequence.
type Diff struct {
	Edits   []models.PlaylistEdit
	Rewrite bool
	Reason  string
}

// Empty reports whether the stored playlist is already up to date.
func (d Diff) Empty() bool { return len(d.Edits) == 0 }

// Plan computes the edits from prev to next. remote is the stored playlist as
// read from the server, or nil when it was not verified.
func Plan(prev models.Snapshot, next []string, remote []string) Diff {
	if remote != nil {
		if slices.Equal(remote, next) {
			return Diff{}
		}
		if !slices.Equal(remote, prev.URIs) {
			return rewrite(next, "stored playlist differs from snapshot")
		}
	}
	if prev.Dirty {
		return rewrite(next, "snapshot is dirty")
	}
	if slices.Equal(prev.URIs, next) {
		return Diff{}
	}

	edits, ok := minimalEdits(prev.URIs, next)
	if !ok {
		return rewrite(next, "sequences too large to diff")
	}
	if len(edits) > 1+len(next) {
		return rewrite(next, fmt.Sprintf("%d edits exceed rewrite cost", len(edits)))
	}
	return Diff{Edits: edits}
}

func rewrite(next []string, reason string) Diff {
	edits := make([]models.PlaylistEdit, 0, len(next)+1)
	edits = append(edits, models.PlaylistEdit{Kind: models.EditClear})
	for _, uri := range next {
		edits = append(edits, models.PlaylistEdit{Kind: models.EditAdd, URI: uri})
	}
	return Diff{Edits: edits, Rewrite: true, Reason: reason}
}

// minimalEdits builds deletes, appends and moves around the longest common
// subsequence of old and next.
func minimalEdits(old, next []string) ([]models.PlaylistEdit, bool) {
	// Common prefix and suffix are always part of a longest common subsequence.
	prefix := 0
	for prefix < len(old) && prefix < len(next) && old[prefix] == next[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(next)-prefix &&
		old[len(old)-1-suffix] == next[len(next)-1-suffix] {
		suffix++
	}

	midOld := old[prefix : len(old)-suffix]
	midNext := next[prefix : len(next)-suffix]
	if (len(midOld)+1)*(len(midNext)+1) > maxCells {
		return nil, false
	}

	keepOld := make([]bool, len(old))
	keepNext := make([]bool, len(next))
	for i := range prefix {
		keepOld[i], keepNext[i] = true, true
	}
	for i := range suffix {
		keepOld[len(old)-1-i], keepNext[len(next)-1-i] = true, true
	}
	for _, pair := range lcs(midOld, midNext) {
		keepOld[prefix+pair[0]] = true
		keepNext[prefix+pair[1]] = true
	}

	var edits []models.PlaylistEdit
	current := make([]string, 0, len(next))
	for i := len(old) - 1; i >= 0; i-- {
		if !keepOld[i] {
			edits = append(edits, models.PlaylistEdit{Kind: models.EditDelete, URI: old[i], Pos: i})
		}
	}
	for i, uri := range old {
		if keepOld[i] {
			current = append(current, uri)
		}
	}

	// current[:i] equals next[:i] and current[i:] holds the kept songs still to place.
	for i, uri := range next {
		if keepNext[i] {
			continue
		}
		end := len(current)
		edits = append(edits, models.PlaylistEdit{Kind: models.EditAdd, URI: uri})
		if i != end {
			edits = append(edits, models.PlaylistEdit{Kind: models.EditMove, URI: uri, Pos: end, To: i})
		}
		current = slices.Insert(current, i, uri)
	}

	return edits, true
}

// lcs returns matched index pairs of a longest common subsequence.
func lcs(a, b []string) [][2]int {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	w := len(b) + 1
	table := make([]int32, (len(a)+1)*w)
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i*w+j] = table[(i+1)*w+j+1] + 1
			} else {
				table[i*w+j] = max(table[(i+1)*w+j], table[i*w+j+1])
			}
		}
	}

	var pairs [][2]int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case table[(i+1)*w+j] >= table[i*w+j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

// Simulate applies edits to start the way the server applies them to a
// stored playlist.
func Simulate(start []string, edits []models.PlaylistEdit) ([]string, error) {
	seq := slices.Clone(start)
	for n, e := range edits {
		switch e.Kind {
		case models.EditClear:
			seq = seq[:0]
		case models.EditAdd:
			seq = append(seq, e.URI)
		case models.EditDelete:
			if e.Pos < 0 || e.Pos >= len(seq) {
				return nil, fmt.Errorf("edit %d: delete position %d out of range", n, e.Pos)
			}
			seq = slices.Delete(seq, e.Pos, e.Pos+1)
		case models.EditMove:
			if e.Pos < 0 || e.Pos >= len(seq) || e.To < 0 || e.To >= len(seq) {
				return nil, fmt.Errorf("edit %d: move %d to %d out of range", n, e.Pos, e.To)
			}
			uri := seq[e.Pos]
			seq = slices.Delete(seq, e.Pos, e.Pos+1)
			seq = slices.Insert(seq, e.To, uri)
		default:
			return nil, fmt.Errorf("edit %d: unknown kind %q", n, e.Kind)
		}
	}
	return seq, nil
}
