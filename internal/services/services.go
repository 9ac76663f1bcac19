// package services defines the [Library] interface for talking to the music server
//
// MPD (github.com/fhs/gompd)
package services

import (
	"context"

	"github.com/desertthunder/dynlist/internal/models"
)

// Library is the music server as seen by the evaluation pipeline: catalogue
// queries, sticker lookups and stored-playlist edits.
type Library interface {
	// Find runs a case-sensitive filter expression.
	Find(ctx context.Context, expr string) ([]*models.Track, error)

	// Search runs a case-insensitive filter expression.
	Search(ctx context.Context, expr string) ([]*models.Track, error)

	// ListAll returns every song in the catalogue.
	ListAll(ctx context.Context) ([]*models.Track, error)

	// StickerFind returns every song URI carrying the sticker key, with its value.
	StickerFind(ctx context.Context, key string) (map[string]string, error)

	// PlaylistURIs returns the songs of a stored playlist, empty when it does not exist.
	PlaylistURIs(ctx context.Context, name string) ([]string, error)

	// ApplyEdits sends the edits to a stored playlist as one command list.
	ApplyEdits(ctx context.Context, name string, edits []models.PlaylistEdit) error

	// ListPlaylists returns the names of the stored playlists.
	ListPlaylists(ctx context.Context) ([]string, error)

	// TagTypes returns the tag types the server indexes.
	TagTypes(ctx context.Context) ([]string, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	Close() error
}
