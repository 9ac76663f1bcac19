package stickers

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
)

// Source runs a sticker search: every song URI carrying key, with its value.
type Source interface {
	StickerFind(ctx context.Context, key string) (map[string]string, error)
}

// Table maps song URI to the sticker values loaded for it.
type Table map[string]map[string]string

// Lookup returns the Lookup for one song.
func (t Table) Lookup(uri string) Lookup {
	values := t[uri]
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// Resolver loads sticker tables from a [Source].
type Resolver struct {
	source Source
	logger *log.Logger
}

// NewResolver creates a Resolver.
func NewResolver(source Source, logger *log.Logger) *Resolver {
	return &Resolver{source: source, logger: logger}
}

// Resolve issues one sticker search per distinct key and merges the results.
func (r *Resolver) Resolve(ctx context.Context, keys []string) (Table, error) {
	table := Table{}
	seen := make([]string, 0, len(keys))

	for _, key := range keys {
		if slices.Contains(seen, key) {
			continue
		}
		seen = append(seen, key)

		values, err := r.source.StickerFind(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("sticker find %q: %w", key, err)
		}
		for uri, v := range values {
			if table[uri] == nil {
				table[uri] = map[string]string{}
			}
			table[uri][key] = v
		}
		r.logger.Debug("resolved sticker", "key", key, "songs", len(values))
	}

	return table, nil
}
