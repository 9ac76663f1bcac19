package testing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/services"
	"github.com/desertthunder/dynlist/internal/shared"
)

var _ services.Library = (*FakeLibrary)(nil)

// FakeLibrary is an in-memory music server. Find and Search evaluate filter
// expressions, Search ignoring case in tag values.
type FakeLibrary struct {
	mu        sync.Mutex
	tracks    []*models.Track
	stickers  map[string]map[string]string
	playlists map[string][]string
	tags      []string
	calls     map[string]int
	queries   []string
	batches   [][]models.PlaylistEdit

	failEditAt   int
	disconnected bool
	gate         chan struct{}
	entered      chan struct{}
}

// NewFakeLibrary creates an empty library that knows the given tag types.
func NewFakeLibrary(tags ...string) *FakeLibrary {
	if len(tags) == 0 {
		tags = []string{"Artist", "Album", "Title", "Genre", "Date", "Track"}
	}
	return &FakeLibrary{
		stickers:   map[string]map[string]string{},
		playlists:  map[string][]string{},
		tags:       tags,
		calls:      map[string]int{},
		failEditAt: -1,
	}
}

// AddTrack adds a song built from response-style attributes.
func (f *FakeLibrary) AddTrack(attrs map[string]string) *models.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := models.NewTrack(attrs)
	f.tracks = append(f.tracks, t)
	return t
}

// SetSticker stores a sticker value for a song.
func (f *FakeLibrary) SetSticker(uri, key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stickers[key] == nil {
		f.stickers[key] = map[string]string{}
	}
	f.stickers[key][uri] = value
}

// SetPlaylist replaces a stored playlist.
func (f *FakeLibrary) SetPlaylist(name string, uris []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[name] = slices.Clone(uris)
}

// Playlist returns a copy of a stored playlist.
func (f *FakeLibrary) Playlist(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.playlists[name])
}

// Calls returns how often a method was called.
func (f *FakeLibrary) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Queries returns every filter expression received by Find and Search.
func (f *FakeLibrary) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queries)
}

// Batches returns every edit list received by ApplyEdits.
func (f *FakeLibrary) Batches() [][]models.PlaylistEdit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.batches)
}

// FailNextBatchAt makes the next ApplyEdits apply edits before index and
// then report a rejected command.
func (f *FakeLibrary) FailNextBatchAt(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failEditAt = index
}

// SetDisconnected makes every call fail with a connection error.
func (f *FakeLibrary) SetDisconnected(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = down
}

// Hold makes ApplyEdits block until Release. Entered receives once per
// blocked call.
func (f *FakeLibrary) Hold() (entered <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 16)
	return f.entered
}

func (f *FakeLibrary) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

func (f *FakeLibrary) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if f.disconnected {
		return fmt.Errorf("%w: %s: connection refused", shared.ErrRemoteConnection, method)
	}
	return nil
}

func (f *FakeLibrary) Find(_ context.Context, expr string) ([]*models.Track, error) {
	if err := f.enter("Find"); err != nil {
		return nil, err
	}
	return f.filter(expr, false)
}

func (f *FakeLibrary) Search(_ context.Context, expr string) ([]*models.Track, error) {
	if err := f.enter("Search"); err != nil {
		return nil, err
	}
	return f.filter(expr, true)
}

// filter evaluates a filter expression over the catalogue, keeping catalogue order.
func (f *FakeLibrary) filter(expr string, fold bool) ([]*models.Track, error) {
	match, err := parseFilter(expr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, expr)
	var out []*models.Track
	for _, t := range f.tracks {
		if match(t, fold) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *FakeLibrary) ListAll(context.Context) ([]*models.Track, error) {
	if err := f.enter("ListAll"); err != nil {
		return nil, err
	}
	return f.all(), nil
}

func (f *FakeLibrary) all() []*models.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tracks)
}

func (f *FakeLibrary) StickerFind(_ context.Context, key string) (map[string]string, error) {
	if err := f.enter("StickerFind"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for uri, v := range f.stickers[key] {
		out[uri] = v
	}
	return out, nil
}

func (f *FakeLibrary) PlaylistURIs(_ context.Context, name string) ([]string, error) {
	if err := f.enter("PlaylistURIs"); err != nil {
		return nil, err
	}
	return f.Playlist(name), nil
}

func (f *FakeLibrary) ApplyEdits(_ context.Context, name string, edits []models.PlaylistEdit) error {
	if err := f.enter("ApplyEdits"); err != nil {
		return err
	}

	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, slices.Clone(edits))

	seq := slices.Clone(f.playlists[name])
	failAt := f.failEditAt
	f.failEditAt = -1

	for i, e := range edits {
		if i == failAt {
			f.playlists[name] = seq
			return &shared.PartialBatchError{Index: i, Err: errors.New("No such song")}
		}
		switch e.Kind {
		case models.EditClear:
			seq = nil
		case models.EditAdd:
			seq = append(seq, e.URI)
		case models.EditDelete:
			if e.Pos >= len(seq) {
				f.playlists[name] = seq
				return &shared.PartialBatchError{Index: i, Err: errors.New("Bad song index")}
			}
			seq = append(seq[:e.Pos], seq[e.Pos+1:]...)
		case models.EditMove:
			if e.Pos >= len(seq) || e.To >= len(seq) {
				f.playlists[name] = seq
				return &shared.PartialBatchError{Index: i, Err: errors.New("Bad song index")}
			}
			uri := seq[e.Pos]
			seq = append(seq[:e.Pos], seq[e.Pos+1:]...)
			seq = append(seq[:e.To], append([]string{uri}, seq[e.To:]...)...)
		}
	}
	f.playlists[name] = seq
	return nil
}

func (f *FakeLibrary) ListPlaylists(context.Context) ([]string, error) {
	if err := f.enter("ListPlaylists"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.playlists))
	for name := range f.playlists {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (f *FakeLibrary) TagTypes(context.Context) ([]string, error) {
	if err := f.enter("TagTypes"); err != nil {
		return nil, err
	}
	return slices.Clone(f.tags), nil
}

func (f *FakeLibrary) Ping(context.Context) error {
	return f.enter("Ping")
}

func (f *FakeLibrary) Close() error { return nil }
