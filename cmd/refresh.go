package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/dynlist/internal/formatter"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/server"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/desertthunder/dynlist/internal/tasks"
	"github.com/desertthunder/dynlist/internal/ui"
	"github.com/urfave/cli/v3"
)

// Preview evaluates a playlist and prints the resulting track list without touching the server's playlists.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	pl, err := r.playlistArg(cmd)
	if err != nil {
		return err
	}
	if err := r.connect(cmd); err != nil {
		return err
	}

	eval, err := r.engine.Evaluate(ctx, pl.CloneForEvaluation(), nil)
	if err != nil {
		return err
	}
	for _, w := range eval.Warnings {
		r.logger.Warn(w, "playlist", pl.Name)
	}

	if output := cmd.String("output"); output != "" {
		if err := formatter.WriteTrackList(output, cmd.String("format"), pl, eval.Tracks); err != nil {
			return err
		}
		return r.writePlain("%s %d of %d matching tracks written to %s\n", ui.Mark(true), len(eval.Tracks), eval.Matched, output)
	}

	data, err := formatter.Render(cmd.String("format"), pl, eval.Tracks)
	if err != nil {
		return err
	}
	if err := r.writePlain("%s", data); err != nil {
		return err
	}
	if len(eval.Tracks) < eval.Matched {
		r.writePlain("%s\n", ui.Help(fmt.Sprintf("%d more matched, cut by the limit", eval.Matched-len(eval.Tracks))))
	}
	return nil
}

// Refresh runs one evaluation cycle for a playlist, or for all of them with --all.
func (r *Runner) Refresh(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	all := cmd.Bool("all")
	if name == "" && !all {
		return fmt.Errorf("%w: playlist name or --all", shared.ErrMissingArgument)
	}
	if name != "" && all {
		return fmt.Errorf("%w: a playlist name cannot be combined with --all", shared.ErrInvalidArgument)
	}

	if err := r.connect(cmd); err != nil {
		return err
	}

	var progress chan tasks.ProgressUpdate
	var wg sync.WaitGroup
	if cmd.Bool("verbose") {
		progress = make(chan tasks.ProgressUpdate, 32)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for update := range progress {
				r.writePlain("%s %s\n", ui.Help(fmt.Sprintf("[%-11s]", update.Phase)), update.Message)
			}
		}()
	}
	finish := func() {
		if progress != nil {
			close(progress)
			wg.Wait()
		}
	}

	if !all {
		pl, err := r.playlists.GetByName(name)
		if err != nil {
			finish()
			return err
		}
		run, err := r.engine.Refresh(ctx, pl.ID(), models.TriggerManual, progress)
		finish()
		if errors.Is(err, shared.ErrAlreadyRunning) {
			return r.writePlain("%s %s: %s\n", ui.Warn("·"), pl.Name, ui.Help("a refresh is already running, nothing done"))
		}
		if err != nil {
			return err
		}
		return r.writeRun(pl.Name, run)
	}

	playlists, err := r.playlists.List(nil)
	if err != nil {
		finish()
		return err
	}
	result, err := r.engine.BulkRefresh(ctx, progress, playlists, tasks.BulkRefreshOpts{NumWorkers: int(cmd.Int("workers"))})
	finish()
	if err != nil {
		return err
	}

	for _, res := range result.Results {
		switch {
		case errors.Is(res.Error, shared.ErrAlreadyRunning):
			r.writePlain("%s %s: %s\n", ui.Warn("·"), res.PlaylistName, ui.Help("a refresh is already running, skipped"))
		case res.Error != nil:
			r.writePlain("%s %s: %v\n", ui.Mark(false), res.PlaylistName, res.Error)
		default:
			r.writeRun(res.PlaylistName, res.Run)
		}
	}
	summary := fmt.Sprintf("%d refreshed, %d failed", result.Succeeded, result.Failed)
	if result.Skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", result.Skipped)
	}
	r.writePlainln("%s", summary)
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d playlists failed to refresh", result.Failed, result.Total)
	}
	return nil
}

func (r *Runner) writeRun(name string, run *models.RefreshRun) error {
	mode := "incremental"
	switch {
	case run.Edits == 0:
		mode = "unchanged"
	case run.Rewrite:
		mode = "rewrite"
	}
	if err := r.writePlain("%s %s: %d songs (%d matched), %d edits, %s\n",
		ui.Mark(true), name, run.Written, run.Matched, run.Edits, mode); err != nil {
		return err
	}
	for _, w := range run.Warnings {
		r.writePlain("  %s\n", ui.Warn(w))
	}
	return nil
}

// Runs lists recent refresh runs, for one playlist or all of them.
func (r *Runner) Runs(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = status
	}

	names := map[string]string{}
	if name := cmd.StringArg("name"); name != "" {
		pl, err := r.playlists.GetByName(name)
		if err != nil {
			return err
		}
		criteria["playlist_id"] = pl.ID()
		names[pl.ID()] = pl.Name
	} else {
		playlists, err := r.playlists.List(nil)
		if err != nil {
			return err
		}
		for _, pl := range playlists {
			names[pl.ID()] = pl.Name
		}
	}

	runs, err := r.runs.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]server.RunStatus, 0, len(runs))
		for _, run := range runs {
			out = append(out, server.NewRunStatus(run))
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}
	if len(runs) == 0 {
		return r.writePlain("%s\n", ui.Help("No refresh runs recorded."))
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		name, ok := names[run.PlaylistID]
		if !ok {
			name = run.PlaylistID
		}
		detail := strconv.Itoa(run.Written) + " songs"
		if run.Status == models.RunFailed {
			detail = run.ErrorKind + ": " + run.ErrorMessage
		}
		if len(run.Warnings) > 0 {
			detail += " (" + strings.Join(run.Warnings, "; ") + ")"
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			name,
			string(run.Trigger),
			ui.State(string(run.Status)),
			run.Duration().Round(time.Millisecond).String(),
			detail,
		})
	}
	return r.writePlain("%s\n", ui.Table([]string{"Started", "Playlist", "Trigger", "Status", "Took", "Detail"}, rows))
}
