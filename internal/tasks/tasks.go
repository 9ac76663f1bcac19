// package tasks runs evaluation cycles of dynamic playlists against the music server.
//
// The core abstraction is PlaylistEngine, which compiles rules, queries the catalogue, resolves stickers,
// orders the matches and materializes them into the stored playlist.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dynlist/internal/materializer"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/ordering"
	"github.com/desertthunder/dynlist/internal/query"
	"github.com/desertthunder/dynlist/internal/services"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/desertthunder/dynlist/internal/stickers"
)

// PlaylistStore is the part of the local store the engine reads definitions from and writes snapshots to.
type PlaylistStore interface {
	Get(id string) (*models.DynamicPlaylist, error)
	SaveSnapshot(playlistID string, revision int64, snap models.Snapshot, refreshedAt time.Time) error
	MarkSnapshotDirty(playlistID string) error
}

// RunStore records refresh runs.
type RunStore interface {
	Create(run *models.RefreshRun) error
	Update(run *models.RefreshRun) error
}

// Evaluation is the result of evaluating a playlist without writing it.
type Evaluation struct {
	Plan     *query.Plan
	Matched  int             // Tracks that satisfied the rules before the limit
	Tracks   []*models.Track // Ordered and limited result
	URIs     []string        // URIs of Tracks
	Warnings []string        // Unsupported fields and other non-fatal problems
}

// PlaylistEngine implements the evaluation pipeline over a [services.Library].
type PlaylistEngine struct {
	library      services.Library
	playlists    PlaylistStore
	runs         RunStore
	materializer *materializer.Materializer
	resolver     *stickers.Resolver
	logger       *log.Logger
	now          func() time.Time
	rng          *rand.Rand

	mu     sync.Mutex
	schema *query.Schema
}

// EngineOpts configures a [PlaylistEngine].
type EngineOpts struct {
	Library   services.Library
	Playlists PlaylistStore
	Runs      RunStore
	Verify    bool       // Read the stored playlist back before editing it
	Logger    *log.Logger
	Rand      *rand.Rand // Shuffle source, the global one when nil
}

// NewPlaylistEngine creates a new PlaylistEngine with the provided dependencies.
func NewPlaylistEngine(opts EngineOpts) *PlaylistEngine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &PlaylistEngine{
		library:      opts.Library,
		playlists:    opts.Playlists,
		runs:         opts.Runs,
		materializer: materializer.New(opts.Library, opts.Verify, logger),
		resolver:     stickers.NewResolver(opts.Library, logger),
		logger:       logger,
		now:          time.Now,
		rng:          opts.Rand,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Schema returns the tag schema of the server. It is fetched once; a server that
// does not answer tagtypes falls back to [query.DefaultSchema].
func (e *PlaylistEngine) Schema(ctx context.Context) (query.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schema != nil {
		return *e.schema, nil
	}

	tags, err := e.library.TagTypes(ctx)
	switch {
	case errors.Is(err, shared.ErrRemoteConnection), errors.Is(err, shared.ErrTimeout):
		return query.Schema{}, err
	case err != nil:
		e.logger.Warn("tagtypes failed, using default schema", "err", err)
		return query.DefaultSchema(), nil
	}

	schema := query.NewSchema(tags)
	e.schema = &schema
	return schema, nil
}

// Evaluate runs the read side of a cycle: compile, query, stickers and ordering.
// The playlist is not modified.
func (e *PlaylistEngine) Evaluate(ctx context.Context, pl *models.DynamicPlaylist, progress chan<- ProgressUpdate) (*Evaluation, error) {
	if err := pl.Validate(); err != nil {
		return nil, err
	}

	schema, err := e.Schema(ctx)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, compileUpdate(pl))
	plan := query.Compile(pl.Rules, schema)

	result := &Evaluation{Plan: plan}
	for _, uerr := range plan.Unsupported {
		e.logger.Warn("rule uses unsupported field", "playlist", pl.Name, "field", uerr.Field)
		result.Warnings = append(result.Warnings, uerr.Error())
	}

	e.sendProgress(progress, queryUpdate(plan))
	candidates, err := query.Candidates(ctx, e.library, plan)
	if err != nil {
		return nil, err
	}

	keys := append(append([]string{}, plan.StickerKeys...), pl.SortStickerKeys()...)
	table := stickers.Table{}
	if len(keys) > 0 && len(candidates) > 0 {
		e.sendProgress(progress, stickersUpdate(keys))
		if table, err = e.resolver.Resolve(ctx, keys); err != nil {
			return nil, err
		}
	}

	now := e.now()
	items := make([]ordering.Item, 0, len(candidates))
	byURI := make(map[string]*models.Track, len(candidates))
	for _, t := range candidates {
		lookup := table.Lookup(t.URI)
		if !plan.Match(t, lookup, now) {
			continue
		}
		items = append(items, ordering.Item{Track: t, Stickers: lookup})
		byURI[t.URI] = t
	}
	result.Matched = len(items)

	e.sendProgress(progress, orderUpdate(len(candidates), len(items)))
	result.URIs = ordering.Apply(items, pl.Order, pl.Shuffle, pl.Limit, e.rng)
	result.Tracks = make([]*models.Track, len(result.URIs))
	for i, uri := range result.URIs {
		result.Tracks[i] = byURI[uri]
	}

	return result, nil
}

// Refresh runs a full cycle for the playlist and records it as a [models.RefreshRun].
//
// On success the new snapshot and refresh time are stored. On failure the
// previous snapshot stays in place; a partially applied batch marks it dirty,
// as does a definition edited while the cycle ran. The returned run is
// recorded even when err is non-nil. When another cycle of the playlist is
// recorded as running, possibly in another process, nothing is done and
// [shared.ErrAlreadyRunning] is returned with a nil run.
func (e *PlaylistEngine) Refresh(ctx context.Context, id string, trigger models.Trigger, progress chan<- ProgressUpdate) (*models.RefreshRun, error) {
	stored, err := e.playlists.Get(id)
	if err != nil {
		return nil, err
	}
	pl := stored.CloneForEvaluation()
	logger := shared.WithLogger(e.logger, "playlist", pl.Name, "trigger", trigger)

	run := models.NewRefreshRun(pl.ID(), trigger, e.now())
	if err := e.runs.Create(run); errors.Is(err, shared.ErrAlreadyRunning) {
		logger.Info("another cycle is running, refresh skipped")
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("failed to record refresh run: %w", err)
	}

	eval, err := e.Evaluate(ctx, pl, progress)
	if err != nil {
		return e.fail(logger, run, err)
	}
	run.Matched = eval.Matched
	run.Written = len(eval.URIs)
	run.Warnings = eval.Warnings

	e.sendProgress(progress, materializeUpdate(pl.TargetName(), len(eval.URIs)))
	res, err := e.materializer.Sync(ctx, pl.TargetName(), pl.Snapshot, eval.URIs)
	run.Edits = len(res.Diff.Edits)
	run.Rewrite = res.Diff.Rewrite
	if err != nil {
		if errors.Is(err, shared.ErrPartialBatch) {
			if derr := e.playlists.MarkSnapshotDirty(pl.ID()); derr != nil {
				logger.Error("failed to mark snapshot dirty", "err", derr)
			}
		}
		return e.fail(logger, run, err)
	}

	completed := e.now()
	if err := e.playlists.SaveSnapshot(pl.ID(), pl.Revision, res.Snapshot, completed); err != nil {
		return e.fail(logger, run, fmt.Errorf("failed to save snapshot: %w", err))
	}

	run.Succeed(completed)
	if err := e.runs.Update(run); err != nil {
		logger.Error("failed to record refresh run", "err", err)
	}

	logger.Info("refreshed", "matched", run.Matched, "written", run.Written, "edits", run.Edits, "rewrite", run.Rewrite)
	e.sendProgress(progress, doneUpdate(pl.Name, run))
	return run, nil
}

func (e *PlaylistEngine) fail(logger *log.Logger, run *models.RefreshRun, err error) (*models.RefreshRun, error) {
	kind := ErrorKind(err)
	run.Fail(e.now(), kind, err)
	if uerr := e.runs.Update(run); uerr != nil {
		logger.Error("failed to record refresh run", "err", uerr)
	}
	logger.Error("refresh failed", "kind", kind, "err", err)
	return run, err
}

// ErrorKind classifies a cycle error for run records and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrPartialBatch):
		return "partial_batch"
	case errors.Is(err, shared.ErrDefinitionMoved):
		return "definition_changed"
	case errors.Is(err, shared.ErrRemoteConnection):
		return "remote_connection"
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
