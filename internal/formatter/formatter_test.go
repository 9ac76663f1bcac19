package formatter

import (
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
	th "github.com/desertthunder/dynlist/internal/testing"
)

func sampleDocument() Document {
	limit := 50
	return Document{
		Name:        "Late Jazz",
		Description: "high rated jazz, not played lately",
		Target:      "dyn-late-jazz",
		Rules: &RuleDocument{
			Type: "and",
			Children: []*RuleDocument{
				{Type: "tag", Field: "genre", Op: "==", Value: "Jazz"},
				{Type: "sticker", Key: "rating", Op: ">=", Value: "8"},
				{Type: "not", Children: []*RuleDocument{
					{Type: "sticker", Key: "lastPlayed", Op: "within", Value: "7d"},
				}},
				{Type: "or", Children: []*RuleDocument{
					{Type: "tag", Field: "artist", Op: "contains", Value: "Davis", CaseSensitive: true},
					{Type: "tag", Field: "file", Op: "starts_with", Value: "jazz/"},
				}},
			},
		},
		Order: []OrderDocument{
			{Field: "sticker:rating", Direction: "desc"},
			{Field: "title", Direction: "asc"},
		},
		Limit:    &limit,
		Schedule: ScheduleDocument{Interval: 86400, Anchor: 1735711200},
	}
}

func TestImportExport(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		docs := map[string]Document{
			"full":   sampleDocument(),
			"manual": {Name: "everything", Schedule: ScheduleDocument{Manual: true}},
			"shuffle": {
				Name:     "random rock",
				Rules:    &RuleDocument{Type: "tag", Field: "genre", Op: "=~", Value: "(?i)rock"},
				Shuffle:  true,
				Schedule: ScheduleDocument{Interval: 3600, Anchor: 0},
			},
		}

		for name, doc := range docs {
			t.Run(name, func(t *testing.T) {
				pl, err := Import(doc)
				if err != nil {
					t.Fatalf("Import failed: %v", err)
				}
				if got := Export(pl); !reflect.DeepEqual(got, doc) {
					t.Errorf("Export(Import(d)) != d\n got: %+v\nwant: %+v", got, doc)
				}
			})
		}
	})

	t.Run("Import builds the model", func(t *testing.T) {
		pl, err := Import(sampleDocument())
		if err != nil {
			t.Fatalf("Import failed: %v", err)
		}

		if pl.Rules.Type != models.NodeAnd || len(pl.Rules.Children) != 4 {
			t.Errorf("unexpected rule root %+v", pl.Rules)
		}
		if keys := pl.Rules.StickerKeys(); !reflect.DeepEqual(keys, []string{"rating", "lastPlayed"}) {
			t.Errorf("sticker keys = %v", keys)
		}
		if pl.Schedule.Interval != 24*time.Hour || pl.Schedule.Anchor.Unix() != 1735711200 {
			t.Errorf("unexpected schedule %+v", pl.Schedule)
		}
		if pl.ID() != "" || pl.Snapshot.URIs != nil {
			t.Error("imported playlist should carry no identity or snapshot")
		}
	})

	t.Run("largest interval keeps its sign", func(t *testing.T) {
		doc := sampleDocument()
		doc.Schedule = ScheduleDocument{Interval: math.MaxInt64 / int64(time.Second)}
		pl, err := Import(doc)
		if err != nil {
			t.Fatalf("Import failed: %v", err)
		}
		if pl.Schedule.Interval <= 0 {
			t.Errorf("interval overflowed to %v", pl.Schedule.Interval)
		}
		if got := Export(pl).Schedule.Interval; got != doc.Schedule.Interval {
			t.Errorf("exported interval = %d, want %d", got, doc.Schedule.Interval)
		}
	})

	t.Run("Import rejects", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*Document)
			want   string
		}{
			{"missing name", func(d *Document) { d.Name = "" }, "name is required"},
			{"missing schedule", func(d *Document) { d.Schedule = ScheduleDocument{} }, "schedule: missing"},
			{"negative interval", func(d *Document) { d.Schedule.Interval = -5 }, "interval must be positive"},
			{"interval past the duration range", func(d *Document) { d.Schedule.Interval = math.MaxInt64/int64(time.Second) + 1 }, "too large"},
			{"interval at int64 max", func(d *Document) { d.Schedule.Interval = math.MaxInt64 }, "too large"},
			{"not with two children", func(d *Document) {
				d.Rules.Children[2].Children = append(d.Rules.Children[2].Children, &RuleDocument{Type: "tag", Field: "genre", Op: "==", Value: "x"})
			}, "exactly one child"},
			{"unknown operator", func(d *Document) { d.Rules.Children[0].Op = "~~" }, "unknown tag operator"},
			{"tag rule with key", func(d *Document) { d.Rules.Children[0].Key = "rating" }, "tag rule has a sticker key"},
			{"inner node with value", func(d *Document) { d.Rules.Value = "x" }, "leaf attributes"},
			{"order and shuffle", func(d *Document) { d.Shuffle = true }, "mutually exclusive"},
			{"bad regex", func(d *Document) {
				d.Rules.Children[3].Children[1] = &RuleDocument{Type: "tag", Field: "title", Op: "=~", Value: "("}
			}, "invalid regular expression"},
			{"zero limit", func(d *Document) { zero := 0; d.Limit = &zero }, "limit must be positive"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				doc := sampleDocument()
				tt.mutate(&doc)

				pl, err := Import(doc)
				if pl != nil {
					t.Error("rejected import should return no playlist")
				}
				if !errors.Is(err, shared.ErrImport) {
					t.Fatalf("expected ImportError, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.want) {
					t.Errorf("error %q should mention %q", err, tt.want)
				}
			})
		}
	})
}

func TestEncodeDecode(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			doc := sampleDocument()

			data, err := Encode(format, doc)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			got, err := Decode(data, format)
			if err != nil {
				t.Fatalf("Decode failed: %v\n%s", err, data)
			}
			if !reflect.DeepEqual(got, doc) {
				t.Errorf("decoded document differs\n got: %+v\nwant: %+v", got, doc)
			}

			many, err := Encode(format, doc, Document{Name: "b", Schedule: ScheduleDocument{Manual: true}})
			if err != nil {
				t.Fatalf("Encode list failed: %v", err)
			}
			docs, err := DecodeAll(many, format)
			if err != nil {
				t.Fatalf("DecodeAll failed: %v", err)
			}
			if len(docs) != 2 || docs[1].Name != "b" || !docs[1].Schedule.Manual {
				t.Errorf("unexpected documents %+v", docs)
			}
			if _, err := Decode(many, format); !errors.Is(err, shared.ErrImport) {
				t.Errorf("Decode of a list should fail, got %v", err)
			}
		})
	}

	t.Run("schedule forms", func(t *testing.T) {
		tests := []struct {
			format string
			input  string
			want   ScheduleDocument
		}{
			{FormatJSON, `{"name":"a","schedule":"manual"}`, ScheduleDocument{Manual: true}},
			{FormatJSON, `{"name":"a","schedule":{"interval":3600,"anchor":60}}`, ScheduleDocument{Interval: 3600, Anchor: 60}},
			{FormatYAML, "name: a\nschedule: manual\n", ScheduleDocument{Manual: true}},
			{FormatYAML, "name: a\nschedule:\n  interval: 604800\n  anchor: 0\n", ScheduleDocument{Interval: 604800}},
		}

		for _, tt := range tests {
			doc, err := Decode([]byte(tt.input), tt.format)
			if err != nil {
				t.Errorf("Decode(%q) failed: %v", tt.input, err)
				continue
			}
			if doc.Schedule != tt.want {
				t.Errorf("Decode(%q) schedule = %+v, want %+v", tt.input, doc.Schedule, tt.want)
			}
		}
	})

	t.Run("JSON field names", func(t *testing.T) {
		data, err := Encode(FormatJSON, sampleDocument())
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{`"case_sensitive": true`, `"children"`, `"interval": 86400`, `"limit": 50`, `"key": "rating"`} {
			if !strings.Contains(string(data), want) {
				t.Errorf("JSON output missing %s", want)
			}
		}
	})

	t.Run("rejects", func(t *testing.T) {
		tests := []struct {
			name   string
			format string
			input  string
		}{
			{"unknown JSON field", FormatJSON, `{"name":"a","schedule":"manual","colour":"red"}`},
			{"unknown YAML field", FormatYAML, "name: a\nschedule: manual\ncolour: red\n"},
			{"unknown schedule name", FormatJSON, `{"name":"a","schedule":"sometimes"}`},
			{"empty JSON", FormatJSON, "  "},
			{"empty YAML", FormatYAML, ""},
			{"malformed JSON", FormatJSON, `{"name":`},
			{"malformed YAML", FormatYAML, "name: [a"},
			{"trailing JSON object", FormatJSON, `{"name":"a","schedule":"manual"} {"name":"b","schedule":"manual"}`},
			{"trailing JSON garbage", FormatJSON, `{"name":"a","schedule":"manual"}]`},
			{"trailing JSON after list", FormatJSON, `[{"name":"a","schedule":"manual"}] []`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := Decode([]byte(tt.input), tt.format); !errors.Is(err, shared.ErrImport) {
					t.Errorf("expected ImportError, got %v", err)
				}
			})
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		if _, err := Encode("toml", sampleDocument()); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"jazz.yaml":      FormatYAML,
		"jazz.YML":       FormatYAML,
		"jazz.json":      FormatJSON,
		"dir/noextension": FormatJSON,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func sampleTracks() []*models.Track {
	return []*models.Track{
		models.NewTrack(map[string]string{
			"file": "jazz/so-what.flac", "Artist": "Miles Davis", "Title": "So What",
			"Album": "Kind of Blue", "Genre": "Jazz", "Date": "1959", "duration": "562.400",
		}),
		models.NewTrack(map[string]string{"file": "misc/untagged.mp3", "Time": "61"}),
	}
}

func TestExporters(t *testing.T) {
	pl := models.NewDynamicPlaylist("Late Jazz", nil)
	pl.Description = "A test playlist"
	pl.Schedule = models.Daily(time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC))

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleTracks())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		output := string(data)

		if !strings.Contains(output, "URI,Artist,Title,Album,Genre,Date,Duration") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "jazz/so-what.flac,Miles Davis,So What,Kind of Blue,Jazz,1959,9:22") {
			t.Errorf("CSV missing first track, got: %s", output)
		}
		if !strings.Contains(output, "misc/untagged.mp3,,,,,,1:01") {
			t.Errorf("CSV missing untagged track, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(pl, sampleTracks())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Late Jazz",
			"**Description**: A test playlist",
			"**Tracks**: 2",
			"**Stored playlist**: Late Jazz",
			"**Schedule**: every 24h0m0s from 2025-01-01 06:00 UTC",
			"1. Miles Davis - So What (Kind of Blue) [9:22]",
			"2.  - misc/untagged.mp3 [1:01]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(pl, sampleTracks())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)

		if !strings.HasPrefix(output, "Playlist: Late Jazz\nDescription: A test playlist\nTracks: 2\n\n") {
			t.Errorf("unexpected text header:\n%s", output)
		}
		if !strings.Contains(output, "1. Miles Davis - So What\n") {
			t.Errorf("text missing first track:\n%s", output)
		}
	})

	t.Run("Render", func(t *testing.T) {
		if _, err := Render("pdf", pl, nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		data, err := Render("md", pl, nil)
		if err != nil || !strings.Contains(string(data), "**Tracks**: 0") {
			t.Errorf("Render(md) = %q, %v", data, err)
		}
	})

	t.Run("WriteTrackList", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "late-jazz.csv")
		if err := WriteTrackList(path, FormatCSV, pl, sampleTracks()); err != nil {
			t.Fatalf("WriteTrackList failed: %v", err)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "So What") {
			t.Errorf("unexpected file content: %s", content)
		}

		bad := filepath.Join(t.TempDir(), "missing", "out.csv")
		if err := WriteTrackList(bad, FormatCSV, pl, nil); err == nil {
			t.Error("expected error writing into a missing directory")
		}
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		attrs map[string]string
		want  string
	}{
		{map[string]string{"file": "a", "duration": "59.6"}, "1:00"},
		{map[string]string{"file": "a", "Time": "3600"}, "60:00"},
		{map[string]string{"file": "a"}, "-"},
		{map[string]string{"file": "a", "duration": "n/a"}, "-"},
	}
	for _, tt := range tests {
		if got := FormatDuration(models.NewTrack(tt.attrs)); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.attrs, got, tt.want)
		}
	}
}

func TestEncodeList(t *testing.T) {
	tests := []struct {
		name   string
		format string
		docs   []Document
		want   string
	}{
		{name: "empty JSON", format: FormatJSON, docs: nil, want: "[]\n"},
		{name: "empty YAML", format: FormatYAML, docs: nil, want: "[]\n"},
		{name: "single YAML", format: FormatYAML, docs: []Document{{Name: "a", Schedule: ScheduleDocument{Manual: true}}}, want: "- name: a\n  schedule: manual\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeList(tt.format, tt.docs)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, data)
			}

			docs, err := DecodeAll(data, tt.format)
			if len(tt.docs) == 0 {
				return
			}
			if err != nil || len(docs) != len(tt.docs) {
				t.Errorf("expected %d documents back, got %d (%v)", len(tt.docs), len(docs), err)
			}
		})
	}
}
