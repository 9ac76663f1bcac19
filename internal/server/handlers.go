package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/formatter"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/go-chi/chi/v5"
)

// PlaylistStatus is one entry of GET /playlists.
type PlaylistStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Target      string     `json:"target"`
	Schedule    string     `json:"schedule"`
	State       string     `json:"state"`
	Next        *time.Time `json:"next,omitempty"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Songs       int        `json:"songs"`
	Dirty       bool       `json:"dirty"`
}

// RunStatus is one entry of GET /playlists/{name}/runs.
type RunStatus struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	Matched     int        `json:"matched"`
	Written     int        `json:"written"`
	Edits       int        `json:"edits"`
	Rewrite     bool       `json:"rewrite"`
	Warnings    []string   `json:"warnings,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.remote.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"remote": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "remote": "ok"})
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.playlists.List(nil)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]PlaylistStatus, 0, len(playlists))
	for _, pl := range playlists {
		st := PlaylistStatus{
			ID:          pl.ID(),
			Name:        pl.Name,
			Target:      pl.TargetName(),
			Schedule:    formatter.ScheduleString(pl.Schedule),
			State:       "unscheduled",
			LastRefresh: pl.LastRefresh,
			Songs:       len(pl.Snapshot.URIs),
			Dirty:       pl.Snapshot.Dirty,
		}
		if s.scheduler != nil {
			if entry, ok := s.scheduler.Get(pl.ID()); ok {
				st.State = entry.State.String()
				st.Next = entry.Next
				st.LastError = entry.LastError
			}
		}
		out = append(out, st)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	pl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}

	started, err := s.scheduler.Trigger(pl.ID())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if !started {
		writeJSON(w, http.StatusOK, map[string]any{"started": false, "reason": shared.ErrAlreadyRunning.Error()})
		return
	}
	s.logger.Info("manual refresh requested", "playlist", pl.Name)
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	pl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	format, err := formatter.NormalizeFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := formatter.Encode(format, formatter.Export(pl))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := "application/json"
	if format == formatter.FormatYAML {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// maxDocumentBytes bounds the body of PUT /playlists/{name}/document.
const maxDocumentBytes = 1 << 20

// handlePutDocument replaces a playlist's definition. The write goes through
// the scheduler so it never lands in the middle of a cycle: an idle playlist
// is updated before the response (200), a running one once its cycle ends (202).
func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	current, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" && strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = formatter.FormatYAML
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	doc, err := formatter.Decode(body, format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	edited, err := formatter.Import(doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if edited.Name != current.Name {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("document is named %q, not %q", edited.Name, current.Name))
		return
	}

	var applyErr error
	apply := func() {
		applyErr = s.writeDefinition(current.ID(), edited)
	}

	queued, err := s.scheduler.Edit(current.ID(), apply)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if queued {
		s.logger.Info("definition edit queued behind running cycle", "playlist", current.Name)
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}
	if applyErr != nil {
		s.writeStoreError(w, applyErr)
		return
	}
	s.logger.Info("definition updated", "playlist", current.Name)
	writeJSON(w, http.StatusOK, map[string]any{"queued": false})
}

// writeDefinition stores edited over the playlist with the given ID and
// moves its schedule. It runs from the scheduler's edit queue.
func (s *Server) writeDefinition(id string, edited *models.DynamicPlaylist) error {
	stored, err := s.playlists.GetByName(edited.Name)
	if err != nil {
		s.logger.Error("failed to reload playlist for edit", "playlist", edited.Name, "err", err)
		return err
	}

	edited.SetID(id)
	edited.LastRefresh = stored.LastRefresh
	if err := s.playlists.Update(edited); err != nil {
		s.logger.Error("failed to write playlist definition", "playlist", edited.Name, "err", err)
		return err
	}

	if !stored.Schedule.Equal(edited.Schedule) {
		if err := s.scheduler.Reschedule(id, edited.Schedule); err != nil {
			s.logger.Error("failed to reschedule playlist", "playlist", edited.Name, "err", err)
			return err
		}
	}
	return nil
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	pl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.List(map[string]any{"playlist_id": pl.ID(), "limit": limit})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]RunStatus, 0, len(runs))
	for _, run := range runs {
		out = append(out, NewRunStatus(run))
	}
	writeJSON(w, http.StatusOK, out)
}

// NewRunStatus converts a run record to its API shape.
func NewRunStatus(run *models.RefreshRun) RunStatus {
	return RunStatus{
		ID:          run.ID(),
		Trigger:     string(run.Trigger),
		Status:      string(run.Status),
		Matched:     run.Matched,
		Written:     run.Written,
		Edits:       run.Edits,
		Rewrite:     run.Rewrite,
		Warnings:    run.Warnings,
		ErrorKind:   run.ErrorKind,
		Error:       run.ErrorMessage,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// lookup resolves the {name} URL parameter, writing the error response itself.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*models.DynamicPlaylist, bool) {
	pl, err := s.playlists.GetByName(chi.URLParam(r, "name"))
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	return pl, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrPlaylistNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
