package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/scheduler"
	"github.com/desertthunder/dynlist/internal/server"
	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

const defaultSyncInterval = 30 * time.Second

// Daemon runs the scheduler and, when enabled, the control API until SIGINT or SIGTERM.
//
// Playlist definitions are re-read from the store every --sync-interval, so
// imports and deletes made with other commands reach the running scheduler.
func (r *Runner) Daemon(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := r.runs.FailInterrupted(time.Now().UTC()); err != nil {
		return err
	} else if n > 0 {
		r.logger.Warn("marked runs interrupted by the previous shutdown as failed", "count", n)
	}

	r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sched := scheduler.New(r.runCycle, scheduler.Options{
		CatchUp:       r.config.Scheduler.CatchUp,
		MaxConcurrent: r.config.Scheduler.MaxConcurrent,
		Logger:        r.logger.WithPrefix("scheduler"),
		Metrics:       scheduler.NewMetrics(r.registry),
	})

	if schema, err := r.engine.Schema(ctx); err != nil {
		r.logger.Warn("music server unreachable, cycles retry on their schedule", "err", err)
	} else {
		r.logger.Info("connected to music server", "address", r.config.MPD.Address, "tags", len(schema.Tags()))
	}

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errc <- sched.Run(ctx)
	}()

	if err := r.syncSchedules(sched); err != nil {
		stop()
		wg.Wait()
		return err
	}

	if r.config.Server.Enabled && !cmd.Bool("no-server") {
		addr := cmd.String("listen")
		if addr == "" {
			addr = r.config.Server.Addr()
		}
		srv := server.NewServer(server.Opts{
			Playlists: r.playlists,
			Runs:      r.runs,
			Scheduler: sched,
			Remote:    r.library,
			Gatherer:  r.registry,
			Logger:    r.logger.WithPrefix("api"),
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			errc <- srv.ListenAndServe(ctx, addr)
		}()
	}

	interval := cmd.Duration("sync-interval")
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errc:
			if err != nil {
				runErr = err
				break loop
			}
		case <-ticker.C:
			if err := r.syncSchedules(sched); err != nil {
				r.logger.Error("failed to reload playlists", "err", err)
			}
		}
	}

	r.logger.Info("shutting down, waiting for running cycles")
	stop()
	wg.Wait()
	sched.Wait()
	return runErr
}

// runCycle is the scheduler's [scheduler.RunFunc].
func (r *Runner) runCycle(ctx context.Context, id string, trigger models.Trigger) error {
	_, err := r.engine.Refresh(ctx, id, trigger, nil)
	if errors.Is(err, shared.ErrAlreadyRunning) {
		return nil
	}
	return err
}

// syncSchedules brings the scheduler in line with the store: new playlists are
// registered, changed schedules rescheduled and deleted playlists unregistered.
func (r *Runner) syncSchedules(sched *scheduler.Scheduler) error {
	playlists, err := r.playlists.List(nil)
	if err != nil {
		return err
	}

	known := map[string]scheduler.EntryStatus{}
	for _, st := range sched.Status() {
		known[st.ID] = st
	}

	var errs []error
	for _, pl := range playlists {
		st, ok := known[pl.ID()]
		delete(known, pl.ID())

		switch {
		case !ok:
			if err := sched.Register(pl.ID(), pl.Name, pl.Schedule, pl.LastRefresh); err != nil {
				errs = append(errs, err)
				continue
			}
			r.logger.Debug("playlist scheduled", "playlist", pl.Name, "schedule", pl.Schedule.Kind)
		case !st.Schedule.Equal(pl.Schedule):
			if err := sched.Reschedule(pl.ID(), pl.Schedule); err != nil {
				errs = append(errs, err)
				continue
			}
			r.logger.Info("playlist rescheduled", "playlist", pl.Name)
		}
	}

	for id, st := range known {
		if err := sched.Unregister(id); err != nil && !errors.Is(err, shared.ErrPlaylistNotFound) {
			errs = append(errs, err)
			continue
		}
		r.logger.Info("playlist unscheduled", "playlist", st.Name)
	}

	return errors.Join(errs...)
}
