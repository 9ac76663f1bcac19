package models

import (
	"time"

	"github.com/desertthunder/dynlist/internal/shared"
)

// Trigger records what started a refresh cycle.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerCatchUp   Trigger = "catch_up"
)

// RunStatus is the lifecycle state of a [RefreshRun].
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RefreshRun records one evaluation cycle of a playlist.
type RefreshRun struct {
	entity

	PlaylistID   string
	Trigger      Trigger
	Status       RunStatus
	Matched      int
	Written      int
	Edits        int
	Rewrite      bool
	Warnings     []string
	ErrorKind    string
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// NewRefreshRun creates a running record for the playlist.
func NewRefreshRun(playlistID string, trigger Trigger, startedAt time.Time) *RefreshRun {
	return &RefreshRun{
		entity:     newEntity(),
		PlaylistID: playlistID,
		Trigger:    trigger,
		Status:     RunRunning,
		StartedAt:  startedAt.UTC(),
	}
}

// Succeed marks the run as succeeded at t.
func (r *RefreshRun) Succeed(t time.Time) {
	t = t.UTC()
	r.Status = RunSucceeded
	r.CompletedAt = &t
}

// Fail marks the run as failed at t with the error kind and message.
func (r *RefreshRun) Fail(t time.Time, kind string, err error) {
	t = t.UTC()
	r.Status = RunFailed
	r.CompletedAt = &t
	r.ErrorKind = kind
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// Duration returns how long the run took, or zero while it is running.
func (r *RefreshRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

func (r *RefreshRun) Validate() error {
	verr := &shared.ValidationError{}
	if r.PlaylistID == "" {
		verr.Add("playlist id is required")
	}
	switch r.Trigger {
	case TriggerManual, TriggerScheduled, TriggerCatchUp:
	default:
		verr.Add("unknown trigger %q", r.Trigger)
	}
	switch r.Status {
	case RunRunning, RunSucceeded, RunFailed:
	default:
		verr.Add("unknown status %q", r.Status)
	}
	if r.StartedAt.IsZero() {
		verr.Add("started at is required")
	}
	return verr.OrNil()
}
