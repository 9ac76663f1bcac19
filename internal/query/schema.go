package query

import (
	"slices"
	"strings"

	"github.com/desertthunder/dynlist/internal/models"
)

// DefaultTags is the tag list used when the server cannot be asked.
var DefaultTags = []string{
	"Artist", "ArtistSort", "Album", "AlbumSort", "AlbumArtist", "AlbumArtistSort",
	"Title", "TitleSort", "Track", "Name", "Genre", "Mood", "Date", "OriginalDate",
	"Composer", "ComposerSort", "Performer", "Conductor", "Work", "Ensemble",
	"Movement", "MovementNumber", "Location", "Grouping", "Comment", "Disc", "Label",
	"MUSICBRAINZ_ARTISTID", "MUSICBRAINZ_ALBUMID", "MUSICBRAINZ_ALBUMARTISTID",
	"MUSICBRAINZ_TRACKID", "MUSICBRAINZ_RELEASETRACKID", "MUSICBRAINZ_WORKID",
}

var specialFields = []string{models.FieldFile, models.FieldBase, models.FieldAny, models.FieldModified}

// Schema is the set of fields the catalogue knows, keyed case-insensitively.
type Schema struct {
	tags map[string]string
}

// NewSchema builds a schema from the server's tag types.
func NewSchema(tagTypes []string) Schema {
	s := Schema{tags: make(map[string]string, len(tagTypes))}
	for _, t := range tagTypes {
		if t = strings.TrimSpace(t); t != "" {
			s.tags[strings.ToLower(t)] = t
		}
	}
	return s
}

func DefaultSchema() Schema { return NewSchema(DefaultTags) }

// Known reports whether field is a tag type or a special field.
func (s Schema) Known(field string) bool {
	f := strings.ToLower(field)
	return s.IsTag(f) || slices.Contains(specialFields, f)
}

// IsTag reports whether field is one of the server's tag types.
func (s Schema) IsTag(field string) bool {
	_, ok := s.tags[strings.ToLower(field)]
	return ok
}

// Tags returns the tag names as reported by the server, sorted.
func (s Schema) Tags() []string {
	out := make([]string, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (s Schema) remoteName(field string) string {
	f := strings.ToLower(field)
	if name, ok := s.tags[f]; ok {
		return name
	}
	return f
}
