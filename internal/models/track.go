package models

import (
	"path"
	"strings"
	"time"
)

// Track is a song as reported by the server: its URI and lowercased tags.
type Track struct {
	URI          string
	Tags         map[string]string
	LastModified time.Time
}

// NewTrack builds a Track from server response attributes. Attribute names
// are lowercased; the file key becomes the URI.
func NewTrack(attrs map[string]string) *Track {
	t := &Track{Tags: make(map[string]string, len(attrs))}
	for k, v := range attrs {
		key := strings.ToLower(k)
		switch key {
		case "file":
			t.URI = v
		case "last-modified":
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				t.LastModified = ts
			}
		}
		t.Tags[key] = v
	}
	return t
}

// Value returns the value of a tag field, handling the file and base
// pseudo-fields. Field names are case-insensitive. The base value is the
// song's own directory; use [Track.InBase] for recursive containment.
func (t *Track) Value(field string) (string, bool) {
	switch f := strings.ToLower(field); f {
	case FieldFile:
		return t.URI, t.URI != ""
	case FieldBase:
		if t.URI == "" {
			return "", false
		}
		return path.Dir(t.URI), true
	case FieldModified:
		if t.LastModified.IsZero() {
			return "", false
		}
		return t.LastModified.UTC().Format(time.RFC3339), true
	default:
		v, ok := t.Tags[f]
		return v, ok
	}
}

// InBase reports whether the song lies in dir or any directory below it.
// An empty dir is the music root.
func (t *Track) InBase(dir string) bool {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return t.URI != ""
	}
	return t.URI == dir || strings.HasPrefix(t.URI, dir+"/")
}

// EditKind names a stored-playlist edit.
type EditKind string

const (
	EditClear  EditKind = "clear"
	EditAdd    EditKind = "add"
	EditDelete EditKind = "delete"
	EditMove   EditKind = "move"
)

// PlaylistEdit is one command of a stored-playlist edit batch. Pos is the
// position deleted or moved from; To is the move destination.
type PlaylistEdit struct {
	Kind EditKind
	URI  string
	Pos  int
	To   int
}
