package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/dynlist/internal/formatter"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/desertthunder/dynlist/internal/ui"
	"github.com/urfave/cli/v3"
)

// Import reads one document or a list of documents and stores them.
//
// Every document is decoded and validated before anything is written, so a bad
// document rejects the whole file.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: document path", shared.ErrMissingArgument)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	format := cmd.String("format")
	if format == "" {
		format = formatter.FormatFromPath(path)
	}

	docs, err := formatter.DecodeAll(data, format)
	if err != nil {
		return err
	}

	incoming, err := importDocuments(docs)
	if err != nil {
		return err
	}

	if err := r.openStore(cmd); err != nil {
		return err
	}

	existing, err := r.resolveConflicts(incoming, cmd.Bool("replace"))
	if err != nil {
		return err
	}

	for _, pl := range incoming {
		prev, ok := existing[pl.Name]
		if !ok {
			if err := r.playlists.Create(pl); err != nil {
				return err
			}
			r.logger.Info("playlist imported", "playlist", pl.Name, "id", pl.ID())
			r.writePlain("%s Imported %s\n", ui.Mark(true), pl.Name)
			continue
		}

		pl.SetID(prev.ID())
		pl.LastRefresh = prev.LastRefresh
		if err := r.playlists.Update(pl); err != nil {
			return err
		}
		r.logger.Info("playlist replaced", "playlist", pl.Name, "id", pl.ID())
		r.writePlain("%s Replaced %s\n", ui.Mark(true), pl.Name)
	}

	return nil
}

// importDocuments converts decoded documents to playlists, rejecting repeated names.
func importDocuments(docs []formatter.Document) ([]*models.DynamicPlaylist, error) {
	seen := map[string]bool{}
	playlists := make([]*models.DynamicPlaylist, 0, len(docs))
	for i, doc := range docs {
		pl, err := formatter.Import(doc)
		if err != nil {
			if len(docs) > 1 {
				return nil, fmt.Errorf("document %d: %w", i, err)
			}
			return nil, err
		}
		if seen[pl.Name] {
			return nil, &shared.ImportError{Err: fmt.Errorf("%w: %s appears more than once", shared.ErrPlaylistExists, pl.Name)}
		}
		seen[pl.Name] = true
		playlists = append(playlists, pl)
	}
	return playlists, nil
}

// resolveConflicts looks up stored playlists with the incoming names. Without
// replace any match rejects the import.
func (r *Runner) resolveConflicts(incoming []*models.DynamicPlaylist, replace bool) (map[string]*models.DynamicPlaylist, error) {
	existing := map[string]*models.DynamicPlaylist{}
	for _, pl := range incoming {
		prev, err := r.playlists.GetByName(pl.Name)
		if errors.Is(err, shared.ErrPlaylistNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !replace {
			return nil, &shared.ImportError{Err: fmt.Errorf("%w: %s (use --replace)", shared.ErrPlaylistExists, pl.Name)}
		}
		existing[pl.Name] = prev
	}
	return existing, nil
}

// Export writes one playlist, or all of them as a list, as an interchange document.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(cmd); err != nil {
		return err
	}

	var docs []formatter.Document
	name := cmd.StringArg("name")
	switch {
	case cmd.Bool("all"):
		playlists, err := r.playlists.List(nil)
		if err != nil {
			return err
		}
		for _, pl := range playlists {
			docs = append(docs, formatter.Export(pl))
		}
	case name != "":
		pl, err := r.playlists.GetByName(name)
		if err != nil {
			return err
		}
		docs = append(docs, formatter.Export(pl))
	default:
		return fmt.Errorf("%w: playlist name or --all", shared.ErrMissingArgument)
	}

	output := cmd.String("output")
	format := cmd.String("format")
	if format == "" && output != "" {
		format = formatter.FormatFromPath(output)
	}

	var data []byte
	var err error
	if cmd.Bool("all") {
		// A list even for one playlist, so the output imports back unchanged.
		data, err = formatter.EncodeList(format, docs)
	} else {
		data, err = formatter.Encode(format, docs...)
	}
	if err != nil {
		return err
	}

	if output == "" {
		return r.writePlain("%s", data)
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	r.logger.Info("playlists exported", "count", len(docs), "path", output)
	return r.writePlain("%s Exported %d playlist(s) to %s\n", ui.Mark(true), len(docs), output)
}
