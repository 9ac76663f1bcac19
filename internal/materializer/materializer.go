package materializer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dynlist/internal/models"
)

// Remote is the stored-playlist side of the server connection.
type Remote interface {
	PlaylistURIs(ctx context.Context, name string) ([]string, error)
	ApplyEdits(ctx context.Context, name string, edits []models.PlaylistEdit) error
}

// Result is the outcome of a successful [Materializer.Sync].
type Result struct {
	Snapshot models.Snapshot
	Diff     Diff
}

// Materializer reconciles stored playlists with evaluated sequences.
type Materializer struct {
	remote Remote
	verify bool
	logger *log.Logger
	now    func() time.Time
}

// New creates a Materializer. With verify set, the stored playlist is read
// back before diffing whenever an edit is needed.
func New(remote Remote, verify bool, logger *log.Logger) *Materializer {
	return &Materializer{remote: remote, verify: verify, logger: logger, now: time.Now}
}

// Sync writes next into the stored playlist target. prev is the snapshot of
// the last successful write. On error the caller keeps prev; a
// [shared.PartialBatchError] means the stored playlist may hold a partial
// result.
func (m *Materializer) Sync(ctx context.Context, target string, prev models.Snapshot, next []string) (Result, error) {
	done := models.Snapshot{URIs: slices.Clone(next), UpdatedAt: m.now().UTC()}

	if !prev.Dirty && slices.Equal(prev.URIs, next) {
		return Result{Snapshot: done}, nil
	}

	var remote []string
	if m.verify || prev.Dirty {
		uris, err := m.remote.PlaylistURIs(ctx, target)
		if err != nil {
			return Result{}, fmt.Errorf("read stored playlist %q: %w", target, err)
		}
		remote = uris
		if remote == nil {
			remote = []string{}
		}
	}

	diff := Plan(prev, next, remote)
	if diff.Empty() {
		return Result{Snapshot: done, Diff: diff}, nil
	}

	if diff.Rewrite {
		m.logger.Info("rewriting stored playlist", "target", target, "reason", diff.Reason, "songs", len(next))
	} else {
		m.logger.Debug("editing stored playlist", "target", target, "edits", len(diff.Edits))
	}

	if err := m.remote.ApplyEdits(ctx, target, diff.Edits); err != nil {
		return Result{Diff: diff}, fmt.Errorf("write stored playlist %q: %w", target, err)
	}

	return Result{Snapshot: done, Diff: diff}, nil
}
