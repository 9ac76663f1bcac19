package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, recovery, request IDs, etc.
type Middleware func(http.Handler) http.Handler

// PlaylistStore is the part of the local playlist store the API reads and edits.
type PlaylistStore interface {
	GetByName(name string) (*models.DynamicPlaylist, error)
	List(criteria map[string]any) ([]*models.DynamicPlaylist, error)
	Update(pl *models.DynamicPlaylist) error
}

// RunStore lists recorded refresh runs.
type RunStore interface {
	List(criteria map[string]any) ([]*models.RefreshRun, error)
}

// Scheduler is the part of [scheduler.Scheduler] the API drives.
type Scheduler interface {
	Trigger(id string) (bool, error)
	Get(id string) (scheduler.EntryStatus, bool)
	Edit(id string, fn func()) (queued bool, err error)
	Reschedule(id string, schedule models.Schedule) error
}

// Pinger checks the music server connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the control API.
type Server struct {
	playlists PlaylistStore
	runs      RunStore
	scheduler Scheduler
	remote    Pinger
	gatherer  prometheus.Gatherer
	logger    *log.Logger
}

// Opts are the dependencies of a [Server].
type Opts struct {
	Playlists PlaylistStore
	Runs      RunStore
	Scheduler Scheduler
	Remote    Pinger
	Gatherer  prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Logger    *log.Logger
}

// NewServer creates a control API server.
func NewServer(opts Opts) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		playlists: opts.Playlists,
		runs:      opts.Runs,
		scheduler: opts.Scheduler,
		remote:    opts.Remote,
		gatherer:  opts.Gatherer,
		logger:    opts.Logger,
	}
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(RequestLogger(s.logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control API shutdown: %w", err)
	}
	s.logger.Info("control API stopped")
	return nil
}
