// Package scheduler decides when dynamic playlists are re-evaluated.
//
// Each registered playlist is a small state machine, Idle → Due → Running → Idle.
// Periodic schedules fire at anchor + k·interval, so a slow cycle never shifts
// later fire times. A playlist never runs twice at once and at most
// MaxConcurrent cycles run in total; due playlists wait for a free slot.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
)

// State is the lifecycle state of a registered playlist.
type State int

const (
	Idle State = iota
	Due
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Due:
		return "due"
	case Running:
		return "running"
	default:
		return ""
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RunFunc runs one evaluation cycle. ctx is the scheduler's context.
type RunFunc func(ctx context.Context, id string, trigger models.Trigger) error

// Options configures a [Scheduler].
type Options struct {
	CatchUp       bool // Run one cycle at registration when a scheduled instant was missed
	MaxConcurrent int  // Cycles allowed at once (default: 1)
	Logger        *log.Logger
	Metrics       *Metrics
	Now           func() time.Time
}

// EntryStatus is a point-in-time view of one registered playlist.
type EntryStatus struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	State     State           `json:"state"`
	Schedule  models.Schedule `json:"-"`
	Next      *time.Time      `json:"next,omitempty"`
	LastRun   *time.Time      `json:"last_run,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

type entry struct {
	id       string
	name     string
	schedule models.Schedule
	state    State
	trigger  models.Trigger
	next     time.Time
	lastRun  *time.Time
	lastErr  error

	editing         bool
	edits           []func()
	pendingSchedule *models.Schedule
	removed         bool
}

// Scheduler fires evaluation cycles for registered playlists.
type Scheduler struct {
	mu            sync.Mutex
	entries       map[string]*entry
	run           RunFunc
	catchUp       bool
	maxConcurrent int
	running       int
	ctx           context.Context
	logger        *log.Logger
	metrics       *Metrics
	now           func() time.Time
	wake          chan struct{}
	wg            sync.WaitGroup
}

// New creates a Scheduler that runs cycles with run.
func New(run RunFunc, opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		entries:       map[string]*entry{},
		run:           run,
		catchUp:       opts.CatchUp,
		maxConcurrent: opts.MaxConcurrent,
		ctx:           context.Background(),
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
		wake:          make(chan struct{}, 1),
	}
}

// Register adds a playlist. lastRun is the time of its last successful cycle,
// nil when it never ran. With catch-up enabled, a playlist whose last run
// predates the most recent scheduled instant gets exactly one cycle now.
func (s *Scheduler) Register(id, name string, schedule models.Schedule, lastRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; ok {
		return fmt.Errorf("%w: %s is already scheduled", shared.ErrPlaylistExists, name)
	}

	now := s.now()
	e := &entry{id: id, name: name, schedule: schedule, lastRun: lastRun}
	e.next, _ = schedule.NextFire(now)

	if s.catchUp {
		if prev, ok := schedule.Previous(now); ok && (lastRun == nil || lastRun.Before(prev)) {
			e.state = Due
			e.trigger = models.TriggerCatchUp
			s.logger.Info("missed scheduled refresh, catching up", "playlist", name, "missed", prev)
		}
	}

	s.entries[id] = e
	s.dispatchLocked()
	s.signal()
	return nil
}

// Unregister removes a playlist. A running cycle completes first.
func (s *Scheduler) Unregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if e.state == Running || e.editing {
		e.removed = true
	} else {
		delete(s.entries, id)
	}
	s.signal()
	return nil
}

// Reschedule replaces the schedule of a playlist. While a cycle runs the
// change is queued and applied when it ends.
func (s *Scheduler) Reschedule(id string, schedule models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if e.state == Running {
		e.pendingSchedule = &schedule
		return nil
	}
	s.applySchedule(e, schedule)
	s.signal()
	return nil
}

func (s *Scheduler) applySchedule(e *entry, schedule models.Schedule) {
	e.schedule = schedule
	e.next, _ = schedule.NextFire(s.now())
}

// Trigger requests a manual cycle. It reports false without doing anything
// when the playlist is already running.
func (s *Scheduler) Trigger(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	switch e.state {
	case Running:
		s.metrics.skip()
		s.logger.Debug("refresh already running, trigger ignored", "playlist", e.name)
		return false, nil
	case Due:
		return true, nil
	}

	e.state = Due
	e.trigger = models.TriggerManual
	s.dispatchLocked()
	return true, nil
}

// Edit runs fn against the playlist's definition at a point where no cycle is
// running. When the playlist is idle fn runs before Edit returns; otherwise it
// is queued until the running cycle ends and queued reports true.
func (s *Scheduler) Edit(id string, fn func()) (queued bool, err error) {
	s.mu.Lock()

	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if e.state == Running || e.editing {
		e.edits = append(e.edits, fn)
		s.mu.Unlock()
		return true, nil
	}

	e.editing = true
	e.edits = append(e.edits, fn)
	s.drainEditsLocked(e)
	e.editing = false
	if e.removed {
		delete(s.entries, id)
	}
	s.dispatchLocked()
	s.mu.Unlock()
	return false, nil
}

// drainEditsLocked runs queued edits without holding the lock. Edits queued
// while it runs are picked up as well.
func (s *Scheduler) drainEditsLocked(e *entry) {
	for len(e.edits) > 0 {
		edits := e.edits
		e.edits = nil
		s.mu.Unlock()
		for _, fn := range edits {
			fn()
		}
		s.mu.Lock()
	}
}

// Tick fires every idle playlist whose next instant is at or before now and
// returns how many became due. A playlist still running when its instant
// passes skips that instant.
func (s *Scheduler) Tick(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fired := 0
	for _, e := range s.entries {
		if e.schedule.IsManual() || e.next.IsZero() || e.next.After(now) {
			continue
		}
		missed := e.next
		e.next, _ = e.schedule.NextFire(now)

		switch e.state {
		case Idle:
			e.state = Due
			e.trigger = models.TriggerScheduled
			fired++
		case Running:
			s.metrics.skip()
			s.logger.Warn("previous cycle still running, skipping scheduled refresh", "playlist", e.name, "at", missed)
		}
	}

	s.dispatchLocked()
	return fired
}

// dispatchLocked starts due playlists while slots are free, earliest instant first.
func (s *Scheduler) dispatchLocked() {
	if s.running >= s.maxConcurrent {
		return
	}

	var due []*entry
	for _, e := range s.entries {
		if e.state == Due && !e.editing && !e.removed {
			due = append(due, e)
		}
	}
	slices.SortFunc(due, func(a, b *entry) int {
		if c := a.next.Compare(b.next); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})

	for _, e := range due {
		if s.running >= s.maxConcurrent {
			return
		}
		s.start(e)
	}
}

func (s *Scheduler) start(e *entry) {
	e.state = Running
	s.running++
	s.wg.Add(1)
	s.metrics.started()

	ctx, trigger := s.ctx, e.trigger
	go func() {
		started := time.Now()
		err := s.run(ctx, e.id, trigger)
		s.finish(e, trigger, started, err)
	}()
}

func (s *Scheduler) finish(e *entry, trigger models.Trigger, started time.Time, err error) {
	defer s.wg.Done()
	s.metrics.finished(string(trigger), started, err)

	if err != nil {
		s.logger.Warn("cycle failed", "playlist", e.name, "trigger", trigger, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e.lastRun = &now
	e.lastErr = err
	s.running--

	s.drainEditsLocked(e)
	if e.pendingSchedule != nil {
		s.applySchedule(e, *e.pendingSchedule)
		e.pendingSchedule = nil
	}

	e.state = Idle
	if e.removed {
		delete(s.entries, e.id)
	}

	s.dispatchLocked()
	s.signal()
}

// signal wakes the Run loop so it recomputes its timer.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// untilNext returns the wait before the earliest scheduled instant, or false
// when nothing is scheduled.
func (s *Scheduler) untilNext() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	for _, e := range s.entries {
		if e.schedule.IsManual() || e.next.IsZero() {
			continue
		}
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	if earliest.IsZero() {
		return 0, false
	}
	return max(earliest.Sub(s.now()), 0), true
}

// Run drives the timer loop until ctx is cancelled. Cycles started by the
// scheduler receive ctx; use [Scheduler.Wait] to let them finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	s.logger.Info("scheduler loop started")
	for {
		var fire <-chan time.Time
		if wait, ok := s.untilNext(); ok {
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped")
			return nil
		case <-s.wake:
			timer.Stop()
		case <-fire:
			if n := s.Tick(s.now()); n > 0 {
				s.logger.Debug("scheduled refreshes due", "count", n)
			}
		}
	}
}

// Wait blocks until every started cycle has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Status returns every registered playlist ordered by name.
func (s *Scheduler) Status() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := EntryStatus{
			ID:       e.id,
			Name:     e.name,
			State:    e.state,
			Schedule: e.schedule,
		}
		if !e.next.IsZero() {
			next := e.next
			st.Next = &next
		}
		if e.lastRun != nil {
			last := *e.lastRun
			st.LastRun = &last
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b EntryStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Get returns the status of one playlist.
func (s *Scheduler) Get(id string) (EntryStatus, bool) {
	for _, st := range s.Status() {
		if st.ID == id {
			return st, true
		}
	}
	return EntryStatus{}, false
}
