package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
	"golang.org/x/time/rate"
)

// BulkRefreshOpts contains configuration for refreshing many playlists.
type BulkRefreshOpts struct {
	NumWorkers int     // Concurrent workers (default: 2, max: 10)
	RateLimit  float64 // Cycles started per second (default: 5)
}

// PlaylistRefreshResult is the outcome of one playlist in a bulk refresh.
type PlaylistRefreshResult struct {
	PlaylistID   string
	PlaylistName string
	Run          *models.RefreshRun
	Error        error
}

// BulkRefreshResult summarizes a bulk refresh.
type BulkRefreshResult struct {
	Total     int
	Succeeded int
	Skipped   int // Another cycle of the playlist was already running
	Failed    int
	Results   []PlaylistRefreshResult
}

// BulkRefresh refreshes several playlists concurrently with a worker pool.
//
// Cycle starts are rate limited; remote calls are additionally serialized by the
// server connection. A failing playlist never stops the others.
func (e *PlaylistEngine) BulkRefresh(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	playlists []*models.DynamicPlaylist,
	opts BulkRefreshOpts,
) (*BulkRefreshResult, error) {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 2
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	result := &BulkRefreshResult{
		Total:   len(playlists),
		Results: make([]PlaylistRefreshResult, 0, len(playlists)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan *models.DynamicPlaylist, len(playlists))
	results := make(chan PlaylistRefreshResult, len(playlists))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.refreshWorker(ctx, &wg, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, pl := range playlists {
			if err := limiter.Wait(ctx); err != nil {
				results <- PlaylistRefreshResult{
					PlaylistID:   pl.ID(),
					PlaylistName: pl.Name,
					Error:        fmt.Errorf("refresh not started: %w", err),
				}
				continue
			}
			jobs <- pl
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		switch {
		case res.Error == nil:
			result.Succeeded++
			e.sendProgress(prog, refreshCompletedUpdate(completed, len(playlists), res))
		case errors.Is(res.Error, shared.ErrAlreadyRunning):
			result.Skipped++
			e.sendProgress(prog, refreshFailedUpdate(completed, len(playlists), res))
		default:
			result.Failed++
			e.sendProgress(prog, refreshFailedUpdate(completed, len(playlists), res))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// refreshWorker is a worker goroutine that refreshes playlists from the jobs channel.
func (e *PlaylistEngine) refreshWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan *models.DynamicPlaylist,
	results chan<- PlaylistRefreshResult,
) {
	defer wg.Done()

	for pl := range jobs {
		run, err := e.Refresh(ctx, pl.ID(), models.TriggerManual, nil)
		results <- PlaylistRefreshResult{
			PlaylistID:   pl.ID(),
			PlaylistName: pl.Name,
			Run:          run,
			Error:        err,
		}
	}
}
