package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/repositories"
	"github.com/desertthunder/dynlist/internal/shared"
	tu "github.com/desertthunder/dynlist/internal/testing"
)

type fixture struct {
	db        *sql.DB
	library   *tu.FakeLibrary
	playlists *repositories.DynamicPlaylistRepository
	runs      *repositories.RefreshRunRepository
	engine    *PlaylistEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	f := &fixture{
		db:        db,
		library:   tu.NewFakeLibrary(),
		playlists: repositories.NewDynamicPlaylistRepository(db),
		runs:      repositories.NewRefreshRunRepository(db),
	}
	f.engine = NewPlaylistEngine(EngineOpts{
		Library:   f.library,
		Playlists: f.playlists,
		Runs:      f.runs,
		Verify:    true,
		Logger:    shared.NewLogger(&tu.FWriter{}),
		Rand:      rand.New(rand.NewPCG(1, 2)),
	})
	f.engine.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	genres := []string{"Jazz", "Rock", "Jazz", "Jazz", "Pop"}
	for i, genre := range genres {
		uri := "music/" + strconv.Itoa(i) + ".flac"
		f.library.AddTrack(map[string]string{
			"file":   uri,
			"Artist": "Artist " + strconv.Itoa(i),
			"Title":  "Song " + strconv.Itoa(i),
			"Genre":  genre,
		})
	}
	f.library.SetSticker("music/0.flac", "rating", "6")
	f.library.SetSticker("music/2.flac", "rating", "10")
	f.library.SetSticker("music/3.flac", "rating", "8")

	return f
}

func (f *fixture) create(t *testing.T, pl *models.DynamicPlaylist) *models.DynamicPlaylist {
	t.Helper()
	if err := f.playlists.Create(pl); err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	return pl
}

func jazzByRating() *models.DynamicPlaylist {
	pl := models.NewDynamicPlaylist("jazz", models.Tag("genre", models.OpEqual, "jazz", false))
	pl.Order = []models.OrderClause{{Field: "sticker:rating", Direction: models.Descending}}
	return pl
}

func TestPlaylistEngine_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		playlist func() *models.DynamicPlaylist
		want     []string
		matched  int
		warnings int
	}{
		{
			name:     "tag filter ordered by sticker, missing last",
			playlist: jazzByRating,
			want:     []string{"music/2.flac", "music/3.flac", "music/0.flac"},
			matched:  3,
		},
		{
			name: "sticker filter with limit",
			playlist: func() *models.DynamicPlaylist {
				limit := 1
				pl := models.NewDynamicPlaylist("top", models.Sticker("rating", models.OpGreaterEq, "8"))
				pl.Order = []models.OrderClause{{Field: "sticker:rating", Direction: models.Ascending}}
				pl.Limit = &limit
				return pl
			},
			want:    []string{"music/3.flac"},
			matched: 2,
		},
		{
			name: "no rules selects everything in catalogue order",
			playlist: func() *models.DynamicPlaylist {
				return models.NewDynamicPlaylist("all", nil)
			},
			want:    []string{"music/0.flac", "music/1.flac", "music/2.flac", "music/3.flac", "music/4.flac"},
			matched: 5,
		},
		{
			name: "unsupported field is false and reported",
			playlist: func() *models.DynamicPlaylist {
				return models.NewDynamicPlaylist("odd", models.Or(
					models.Tag("mood", models.OpEqual, "calm", false),
					models.Tag("genre", models.OpEqual, "Pop", true),
				))
			},
			want:     []string{"music/4.flac"},
			matched:  1,
			warnings: 1,
		},
		{
			name: "negated sticker keeps songs without the sticker",
			playlist: func() *models.DynamicPlaylist {
				return models.NewDynamicPlaylist("unrated", models.Not(models.Sticker("rating", models.OpExists, "")))
			},
			want:    []string{"music/1.flac", "music/4.flac"},
			matched: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			eval, err := f.engine.Evaluate(context.Background(), tt.playlist(), nil)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !slices.Equal(eval.URIs, tt.want) {
				t.Errorf("URIs = %v, want %v", eval.URIs, tt.want)
			}
			if eval.Matched != tt.matched {
				t.Errorf("Matched = %d, want %d", eval.Matched, tt.matched)
			}
			if len(eval.Warnings) != tt.warnings {
				t.Errorf("Warnings = %v, want %d", eval.Warnings, tt.warnings)
			}
			for i, track := range eval.Tracks {
				if track == nil || track.URI != eval.URIs[i] {
					t.Errorf("Tracks[%d] does not match URI %s", i, eval.URIs[i])
				}
			}
		})
	}
}

func TestPlaylistEngine_Evaluate_TopRatedJazz(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewPCG(5, 8))
	genres := []string{"Jazz", "jazz", "Jazz Fusion", "Rock"}
	for i := range 40 {
		uri := fmt.Sprintf("extra/%02d.flac", i)
		f.library.AddTrack(map[string]string{
			"file":   uri,
			"Artist": fmt.Sprintf("%c%c player %02d", 'a'+r.IntN(26), 'A'+r.IntN(26), i),
			"Genre":  genres[r.IntN(len(genres))],
		})
		if r.IntN(4) > 0 {
			f.library.SetSticker(uri, "rating", strconv.Itoa(r.IntN(11)))
		}
	}

	limit := 10
	pl := models.NewDynamicPlaylist("top-jazz", models.And(
		models.Tag("genre", models.OpEqual, "Jazz", true),
		models.Sticker("rating", models.OpGreaterEq, "4"),
	))
	pl.Order = []models.OrderClause{{Field: "artist", Direction: models.Ascending}}
	pl.Limit = &limit

	eval, err := f.engine.Evaluate(context.Background(), pl, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	catalogue, _ := f.library.ListAll(context.Background())
	ratings, _ := f.library.StickerFind(context.Background(), "rating")
	var matched []*models.Track
	for _, tr := range catalogue {
		v, ok := ratings[tr.URI]
		n, _ := strconv.Atoi(v)
		if tr.Tags["genre"] == "Jazz" && ok && n >= 4 {
			matched = append(matched, tr)
		}
	}
	slices.SortStableFunc(matched, func(a, b *models.Track) int {
		return strings.Compare(strings.ToLower(a.Tags["artist"]), strings.ToLower(b.Tags["artist"]))
	})
	var want []string
	for _, tr := range matched[:min(limit, len(matched))] {
		want = append(want, tr.URI)
	}

	if len(matched) <= limit {
		t.Fatalf("catalogue should hold more than %d matches, got %d", limit, len(matched))
	}
	if !slices.Equal(eval.URIs, want) {
		t.Errorf("URIs = %v\nwant %v", eval.URIs, want)
	}
	if eval.Matched != len(matched) {
		t.Errorf("Matched = %d, want %d", eval.Matched, len(matched))
	}
	if !slices.Contains(f.library.Queries(), `(Genre == "Jazz")`) {
		t.Errorf("expected the genre filter to reach the server, got %v", f.library.Queries())
	}
}

func TestPlaylistEngine_Evaluate_Validation(t *testing.T) {
	f := newFixture(t)

	pl := models.NewDynamicPlaylist("", models.And(models.Tag("genre", models.OpEqual, "jazz", false)))
	_, err := f.engine.Evaluate(context.Background(), pl, nil)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.library.Calls("Find")+f.library.Calls("Search")+f.library.Calls("ListAll") != 0 {
		t.Error("invalid playlist should not reach the server")
	}
}

func TestPlaylistEngine_Refresh(t *testing.T) {
	t.Run("writes playlist and snapshot", func(t *testing.T) {
		f := newFixture(t)
		pl := f.create(t, jazzByRating())

		run, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil)
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}

		want := []string{"music/2.flac", "music/3.flac", "music/0.flac"}
		if got := f.library.Playlist("jazz"); !slices.Equal(got, want) {
			t.Errorf("stored playlist = %v, want %v", got, want)
		}
		if run.Status != models.RunSucceeded || run.Written != 3 || run.Matched != 3 {
			t.Errorf("unexpected run %+v", run)
		}

		stored, _ := f.playlists.Get(pl.ID())
		if !slices.Equal(stored.Snapshot.URIs, want) || stored.Snapshot.Dirty {
			t.Errorf("snapshot = %+v, want %v", stored.Snapshot, want)
		}
		if stored.LastRefresh == nil {
			t.Error("expected last refresh to be set")
		}

		recorded, _ := f.runs.Get(run.ID())
		if recorded.Status != models.RunSucceeded {
			t.Errorf("recorded run status = %s", recorded.Status)
		}
	})

	t.Run("unchanged result makes no write", func(t *testing.T) {
		f := newFixture(t)
		pl := f.create(t, jazzByRating())

		if _, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil); err != nil {
			t.Fatalf("first Refresh() error = %v", err)
		}
		batches := len(f.library.Batches())

		run, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerScheduled, nil)
		if err != nil {
			t.Fatalf("second Refresh() error = %v", err)
		}
		if len(f.library.Batches()) != batches || run.Edits != 0 {
			t.Errorf("expected no new batch, got %d edits", run.Edits)
		}
		if f.library.Calls("PlaylistURIs") != 1 {
			t.Errorf("identical sequence should skip verification, got %d reads", f.library.Calls("PlaylistURIs"))
		}
	})

	t.Run("partial batch keeps snapshot and marks it dirty", func(t *testing.T) {
		f := newFixture(t)
		pl := f.create(t, jazzByRating())

		if _, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil); err != nil {
			t.Fatalf("first Refresh() error = %v", err)
		}
		before, _ := f.playlists.GetSnapshot(pl.ID())

		f.library.SetSticker("music/0.flac", "rating", "20")
		f.library.FailNextBatchAt(1)

		run, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil)
		if !errors.Is(err, shared.ErrPartialBatch) {
			t.Fatalf("expected partial batch error, got %v", err)
		}
		if run.Status != models.RunFailed || run.ErrorKind != "partial_batch" {
			t.Errorf("unexpected run %+v", run)
		}

		after, _ := f.playlists.GetSnapshot(pl.ID())
		if !after.Dirty || !slices.Equal(after.URIs, before.URIs) {
			t.Errorf("snapshot should be unchanged and dirty, got %+v", after)
		}

		if _, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil); err != nil {
			t.Fatalf("recovery Refresh() error = %v", err)
		}
		batches := f.library.Batches()
		last := batches[len(batches)-1]
		if last[0].Kind != models.EditClear {
			t.Errorf("dirty snapshot should force a rewrite, got %v", last[0].Kind)
		}
		want := []string{"music/0.flac", "music/2.flac", "music/3.flac"}
		if got := f.library.Playlist("jazz"); !slices.Equal(got, want) {
			t.Errorf("stored playlist = %v, want %v", got, want)
		}
		if snap, _ := f.playlists.GetSnapshot(pl.ID()); snap.Dirty {
			t.Error("successful rewrite should clear the dirty flag")
		}
	})

	t.Run("connection failure leaves snapshot untouched", func(t *testing.T) {
		f := newFixture(t)
		pl := f.create(t, jazzByRating())

		f.library.SetDisconnected(true)
		run, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerScheduled, nil)
		if !errors.Is(err, shared.ErrRemoteConnection) {
			t.Fatalf("expected connection error, got %v", err)
		}
		if run.ErrorKind != "remote_connection" {
			t.Errorf("ErrorKind = %q", run.ErrorKind)
		}
		if snap, _ := f.playlists.GetSnapshot(pl.ID()); snap.URIs != nil || snap.Dirty {
			t.Errorf("snapshot should be untouched, got %+v", snap)
		}
	})

	t.Run("unknown playlist", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.engine.Refresh(context.Background(), "missing", models.TriggerManual, nil); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Fatalf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("retarget during a cycle is written by the next cycle", func(t *testing.T) {
		f := newFixture(t)
		pl := jazzByRating()
		pl.Target = "dyn-a"
		f.create(t, pl)

		if _, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil); err != nil {
			t.Fatalf("first Refresh() error = %v", err)
		}
		f.library.SetSticker("music/0.flac", "rating", "20")

		entered := f.library.Hold()
		type outcome struct {
			run *models.RefreshRun
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			run, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerScheduled, nil)
			done <- outcome{run, err}
		}()

		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			t.Fatal("cycle never reached the playlist write")
		}
		edited, err := f.playlists.Get(pl.ID())
		if err != nil {
			t.Fatalf("failed to load playlist: %v", err)
		}
		edited.Target = "dyn-b"
		if err := f.playlists.Update(edited); err != nil {
			t.Fatalf("failed to retarget playlist: %v", err)
		}
		f.library.Release()

		res := <-done
		if !errors.Is(res.err, shared.ErrDefinitionMoved) {
			t.Fatalf("expected ErrDefinitionMoved from the overlapping cycle, got %v", res.err)
		}
		if res.run.ErrorKind != "definition_changed" {
			t.Errorf("ErrorKind = %q", res.run.ErrorKind)
		}
		if snap, _ := f.playlists.GetSnapshot(pl.ID()); !snap.Dirty {
			t.Errorf("snapshot should stay dirty after the overlapping cycle, got %+v", snap)
		}

		if _, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerScheduled, nil); err != nil {
			t.Fatalf("follow-up Refresh() error = %v", err)
		}
		want := []string{"music/0.flac", "music/2.flac", "music/3.flac"}
		if got := f.library.Playlist("dyn-b"); !slices.Equal(got, want) {
			t.Errorf("new target = %v, want %v", got, want)
		}
		if snap, _ := f.playlists.GetSnapshot(pl.ID()); snap.Dirty || !slices.Equal(snap.URIs, want) {
			t.Errorf("snapshot = %+v, want clean %v", snap, want)
		}
	})

	t.Run("running cycle elsewhere makes refresh a no-op", func(t *testing.T) {
		f := newFixture(t)
		pl := f.create(t, jazzByRating())

		other := models.NewRefreshRun(pl.ID(), models.TriggerScheduled, time.Now())
		if err := f.runs.Create(other); err != nil {
			t.Fatalf("failed to record running cycle: %v", err)
		}

		run, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil)
		if !errors.Is(err, shared.ErrAlreadyRunning) || run != nil {
			t.Fatalf("expected ErrAlreadyRunning and no run, got %v, %+v", err, run)
		}
		if f.library.Calls("ApplyEdits")+f.library.Calls("Find")+f.library.Calls("Search") != 0 {
			t.Error("a skipped refresh should not reach the server")
		}

		other.Succeed(time.Now())
		if err := f.runs.Update(other); err != nil {
			t.Fatalf("failed to finish running cycle: %v", err)
		}
		if _, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, nil); err != nil {
			t.Fatalf("Refresh() after the other cycle finished error = %v", err)
		}
	})
}

func TestPlaylistEngine_BulkRefresh(t *testing.T) {
	f := newFixture(t)

	jazz := f.create(t, jazzByRating())
	rock := f.create(t, models.NewDynamicPlaylist("rock", models.Tag("genre", models.OpEqual, "Rock", true)))
	ghost := models.NewDynamicPlaylist("ghost", nil)
	ghost.SetID("missing")

	progress := make(chan ProgressUpdate, 10)
	result, err := f.engine.BulkRefresh(context.Background(), progress, []*models.DynamicPlaylist{jazz, rock, ghost}, BulkRefreshOpts{
		NumWorkers: 2,
		RateLimit:  100,
	})
	if err != nil {
		t.Fatalf("BulkRefresh() error = %v", err)
	}

	if result.Total != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if got := f.library.Playlist("rock"); !slices.Equal(got, []string{"music/1.flac"}) {
		t.Errorf("rock playlist = %v", got)
	}

	close(progress)
	updates := 0
	for update := range progress {
		if update.Phase != BulkRefresh {
			t.Errorf("unexpected phase %s", update.Phase)
		}
		updates++
	}
	if updates != 3 {
		t.Errorf("expected 3 progress updates, got %d", updates)
	}
}

func TestProgressUpdate_NonBlocking(t *testing.T) {
	f := newFixture(t)
	pl := f.create(t, jazzByRating())

	progress := make(chan ProgressUpdate)
	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Refresh(context.Background(), pl.ID(), models.TriggerManual, progress)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Refresh blocked on an unread progress channel")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&shared.ValidationError{Problems: []string{"x"}}, "validation"},
		{&shared.PartialBatchError{Index: 2, Err: errors.New("ACK")}, "partial_batch"},
		{fmt.Errorf("failed to save snapshot: %w", shared.ErrDefinitionMoved), "definition_changed"},
		{shared.ErrRemoteConnection, "remote_connection"},
		{shared.ErrTimeout, "timeout"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPhase_String(t *testing.T) {
	for phase, want := range map[Phase]string{Compile: "compile", Materialize: "materialize", BulkRefresh: "bulk_refresh", Phase(99): ""} {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}
