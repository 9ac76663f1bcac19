package main

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/ui"
	"github.com/urfave/cli/v3"
)

const remoteTimeout = 10 * time.Second

// RemotePing checks that the music server accepts commands.
func (r *Runner) RemotePing(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(cmd); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.library.Ping(ctx); err != nil {
		r.writePlain("%s %s unreachable\n", ui.Mark(false), r.config.MPD.Address)
		return err
	}
	return r.writePlain("%s %s answered in %s\n", ui.Mark(true), r.config.MPD.Address, time.Since(start).Round(time.Millisecond))
}

// RemoteTagTypes lists the tag types usable in tag rules.
func (r *Runner) RemoteTagTypes(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(cmd); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	tags, err := r.library.TagTypes(ctx)
	if err != nil {
		return err
	}
	slices.Sort(tags)

	if cmd.Bool("json") {
		return r.writeJSON(tags, cmd.Bool("pretty"))
	}
	return r.writePlain("%s\n", strings.Join(tags, "\n"))
}

// RemotePlaylists lists stored playlists on the server, marking the ones dynlist writes to.
func (r *Runner) RemotePlaylists(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(cmd); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	names, err := r.library.ListPlaylists(ctx)
	if err != nil {
		return err
	}
	slices.Sort(names)

	managed := map[string]string{}
	playlists, err := r.playlists.List(nil)
	if err != nil {
		return err
	}
	for _, pl := range playlists {
		managed[pl.TargetName()] = pl.Name
	}

	if cmd.Bool("json") {
		type entry struct {
			Name      string `json:"name"`
			ManagedBy string `json:"managed_by,omitempty"`
		}
		out := make([]entry, 0, len(names))
		for _, name := range names {
			out = append(out, entry{Name: name, ManagedBy: managed[name]})
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, managed[name]})
	}
	return r.writePlain("%s\n", ui.Table([]string{"Stored playlist", "Managed by"}, rows))
}
