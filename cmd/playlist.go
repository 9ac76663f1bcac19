package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/formatter"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/desertthunder/dynlist/internal/ui"
	"github.com/urfave/cli/v3"
)

// playlistSummary is the JSON shape of `playlist list`.
type playlistSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Target      string     `json:"target"`
	Schedule    string     `json:"schedule"`
	Songs       int        `json:"songs"`
	Dirty       bool       `json:"dirty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
}

func summarize(pl *models.DynamicPlaylist) playlistSummary {
	return playlistSummary{
		ID:          pl.ID(),
		Name:        pl.Name,
		Target:      pl.TargetName(),
		Schedule:    formatter.ScheduleString(pl.Schedule),
		Songs:       len(pl.Snapshot.URIs),
		Dirty:       pl.Snapshot.Dirty,
		LastRefresh: pl.LastRefresh,
	}
}

// PlaylistList prints the stored playlist definitions.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	criteria := map[string]any{}
	if cmd.Bool("scheduled") {
		criteria["scheduled"] = true
	}

	playlists, err := r.playlists.List(criteria)
	if err != nil {
		return err
	}

	summaries := make([]playlistSummary, 0, len(playlists))
	for _, pl := range playlists {
		summaries = append(summaries, summarize(pl))
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, cmd.Bool("pretty"))
	}

	if len(summaries) == 0 {
		return r.writePlain("%s\n", ui.Help("No playlists. Import one with 'dynlist import <file>'."))
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{s.Name, s.Target, s.Schedule, strconv.Itoa(s.Songs), formatTime(s.LastRefresh)})
	}
	return r.writePlain("%s\n", ui.Table([]string{"Name", "Target", "Schedule", "Songs", "Last refresh"}, rows))
}

// PlaylistShow prints one playlist definition with its snapshot summary.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	pl, err := r.playlistArg(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(formatter.Export(pl), cmd.Bool("pretty"))
	}

	doc, err := formatter.Encode(formatter.FormatYAML, formatter.Export(pl))
	if err != nil {
		return err
	}

	dirty := "no"
	if pl.Snapshot.Dirty {
		dirty = ui.Warn("yes, next refresh rewrites the playlist")
	}

	r.writePlain("%s\n", ui.Title(pl.Name))
	r.writePlain("%s\n", ui.KeyValues([][2]string{
		{"ID", pl.ID()},
		{"Target", pl.TargetName()},
		{"Schedule", formatter.ScheduleString(pl.Schedule)},
		{"Last refresh", formatTime(pl.LastRefresh)},
		{"Songs", strconv.Itoa(len(pl.Snapshot.URIs))},
		{"Dirty", dirty},
	}))
	return r.writePlainln("%s", strings.TrimRight(string(doc), "\n"))
}

// PlaylistDelete removes a playlist definition and its snapshot from the local store.
func (r *Runner) PlaylistDelete(ctx context.Context, cmd *cli.Command) error {
	pl, err := r.playlistArg(cmd)
	if err != nil {
		return err
	}

	if err := r.playlists.Delete(pl.ID()); err != nil {
		return err
	}
	r.logger.Info("playlist deleted", "playlist", pl.Name, "id", pl.ID())
	return r.writePlain("%s Deleted %s (stored playlist %q left on the server)\n", ui.Mark(true), pl.Name, pl.TargetName())
}

// playlistArg resolves the "name" argument.
func (r *Runner) playlistArg(cmd *cli.Command) (*models.DynamicPlaylist, error) {
	name := cmd.StringArg("name")
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}
	if err := r.openStore(cmd); err != nil {
		return nil, err
	}
	return r.playlists.GetByName(name)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}
