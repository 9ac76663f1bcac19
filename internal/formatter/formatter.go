// package formatter converts dynamic playlists to and from interchange documents (JSON, YAML)
// and renders evaluated track lists (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
)

// Track list formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// ExportToCSV converts a track list to CSV format with columns: URI, Artist, Title, Album, Genre, Date, Duration
func ExportToCSV(tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"URI", "Artist", "Title", "Album", "Genre", "Date", "Duration"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			track.URI,
			tag(track, "artist"),
			tag(track, "title"),
			tag(track, "album"),
			tag(track, "genre"),
			tag(track, "date"),
			FormatDuration(track),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts an evaluated playlist to Markdown format
func ExportToMarkdown(pl *models.DynamicPlaylist, tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", pl.Name))

	if pl.Description != "" {
		buf.WriteString(fmt.Sprintf("**Description**: %s\n\n", pl.Description))
	}

	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n", len(tracks)))
	buf.WriteString(fmt.Sprintf("**Stored playlist**: %s\n", pl.TargetName()))
	buf.WriteString(fmt.Sprintf("**Schedule**: %s\n\n", ScheduleString(pl.Schedule)))

	buf.WriteString("## Tracks\n\n")
	for i, track := range tracks {
		albumPart := ""
		if album := tag(track, "album"); album != "" {
			albumPart = fmt.Sprintf(" (%s)", album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, tag(track, "artist"), displayTitle(track), albumPart, FormatDuration(track)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts an evaluated playlist to plain text format
func ExportToText(pl *models.DynamicPlaylist, tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", pl.Name))
	if pl.Description != "" {
		buf.WriteString(fmt.Sprintf("Description: %s\n", pl.Description))
	}
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(tracks)))

	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, tag(track, "artist"), displayTitle(track)))
	}

	return buf.Bytes(), nil
}

// Render writes an evaluated track list in the named format
func Render(format string, pl *models.DynamicPlaylist, tracks []*models.Track) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return ExportToCSV(tracks)
	case FormatMarkdown, "md":
		return ExportToMarkdown(pl, tracks)
	case FormatText, "text", "":
		return ExportToText(pl, tracks)
	default:
		return nil, fmt.Errorf("%w: unsupported track list format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteTrackList renders a track list and writes it to path.
func WriteTrackList(path, format string, pl *models.DynamicPlaylist, tracks []*models.Track) error {
	data, err := Render(format, pl, tracks)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write track list: %w", err)
	}
	return nil
}

// FormatDuration renders the track duration as m:ss, or "-" when the server did not report it.
func FormatDuration(t *models.Track) string {
	raw, ok := t.Tags["duration"]
	if !ok {
		raw, ok = t.Tags["time"]
	}
	if !ok {
		return "-"
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return "-"
	}
	total := int(math.Round(secs))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ScheduleString describes a schedule for display.
func ScheduleString(s models.Schedule) string {
	if s.IsManual() {
		return manualSchedule
	}
	return fmt.Sprintf("every %s from %s", s.Interval, s.Anchor.UTC().Format("2006-01-02 15:04 MST"))
}

func tag(t *models.Track, name string) string {
	v, _ := t.Value(name)
	return v
}

// displayTitle falls back to the file name for untagged songs.
func displayTitle(t *models.Track) string {
	if title := tag(t, "title"); title != "" {
		return title
	}
	return t.URI
}
