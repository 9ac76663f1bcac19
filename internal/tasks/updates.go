package tasks

import (
	"fmt"
	"strings"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/query"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Compile Phase = iota
	Query
	Stickers
	Order
	Materialize
	Done
	BulkRefresh
)

func (p Phase) String() string {
	switch p {
	case Compile:
		return "compile"
	case Query:
		return "query"
	case Stickers:
		return "stickers"
	case Order:
		return "order"
	case Materialize:
		return "materialize"
	case Done:
		return "done"
	case BulkRefresh:
		return "bulk_refresh"
	default:
		return ""
	}
}

func compileUpdate(pl *models.DynamicPlaylist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compile,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Compiling rules of %s...", pl.Name),
	}
}

func queryUpdate(plan *query.Plan) ProgressUpdate {
	var msg string
	switch {
	case plan.Empty:
		msg = "Rules can never match, skipping catalogue query"
	case plan.FullScan:
		msg = "Listing the whole catalogue..."
	default:
		msg = fmt.Sprintf("Running %d catalogue queries...", len(plan.Queries))
	}
	return ProgressUpdate{
		Phase:   Query,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    plan,
	}
}

func stickersUpdate(keys []string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Stickers,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loading stickers: %s", strings.Join(keys, ", ")),
	}
}

func orderUpdate(candidates, matched int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Order,
		Step:    matched,
		Total:   candidates,
		Message: fmt.Sprintf("%d of %d candidates matched", matched, candidates),
	}
}

func materializeUpdate(target string, songs int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Materialize,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing %d songs to %s...", songs, target),
	}
}

func doneUpdate(name string, run *models.RefreshRun) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✓ %s (%d songs, %d edits)", name, run.Written, run.Edits),
		Data:    run,
	}
}

func refreshCompletedUpdate(step, total int, res PlaylistRefreshResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkRefresh,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d songs)", step, total, res.PlaylistName, res.Run.Written),
		Data:    res.Run,
	}
}

func refreshFailedUpdate(step, total int, res PlaylistRefreshResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkRefresh,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.PlaylistName, res.Error),
	}
}
