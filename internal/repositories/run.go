package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
)

// RefreshRunRepository implements models.Repository[*models.RefreshRun] for cycle history.
//
// Handles refresh run CRUD operations with soft delete support and per-playlist queries.
type RefreshRunRepository struct {
	db *sql.DB
}

// NewRefreshRunRepository creates a new RefreshRunRepository with the given database connection
func NewRefreshRunRepository(db *sql.DB) *RefreshRunRepository {
	return &RefreshRunRepository{db: db}
}

const runColumns = `id, sequence, playlist_id, trigger_kind, status, matched, written, edits, rewrite, warnings,
	error_kind, error_message, started_at, completed_at, created_at, updated_at, deleted_at`

// Create inserts a new refresh run into the database with generated ID and sequence
func (r *RefreshRunRepository) Create(run *models.RefreshRun) error {
	if err := run.Validate(); err != nil {
		return err
	}

	sequence, err := NextSequence(r.db, "refresh_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO refresh_runs (id, sequence, playlist_id, trigger_kind, status, matched, written, edits, rewrite,
			warnings, error_kind, error_message, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		run.PlaylistID,
		string(run.Trigger),
		string(run.Status),
		run.Matched,
		run.Written,
		run.Edits,
		run.Rewrite,
		strings.Join(run.Warnings, "\n"),
		run.ErrorKind,
		run.ErrorMessage,
		run.StartedAt,
		nullTime(run.CompletedAt),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", shared.ErrAlreadyRunning, run.PlaylistID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert refresh run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	return nil
}

// Get retrieves a refresh run by ID, excluding soft-deleted runs
func (r *RefreshRunRepository) Get(id string) (*models.RefreshRun, error) {
	query := `SELECT ` + runColumns + ` FROM refresh_runs WHERE id = ? AND deleted_at IS NULL`

	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return run, err
}

// Update records the outcome of a refresh run
func (r *RefreshRunRepository) Update(run *models.RefreshRun) error {
	if err := run.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		UPDATE refresh_runs
		SET status = ?, matched = ?, written = ?, edits = ?, rewrite = ?, warnings = ?, error_kind = ?,
			error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(run.Status),
		run.Matched,
		run.Written,
		run.Edits,
		run.Rewrite,
		strings.Join(run.Warnings, "\n"),
		run.ErrorKind,
		run.ErrorMessage,
		nullTime(run.CompletedAt),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID())
	}

	run.SetUpdatedAt(now)
	return nil
}

// Delete soft-deletes a refresh run by ID
func (r *RefreshRunRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE refresh_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete refresh run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}

	return nil
}

// List retrieves refresh runs matching the given criteria, newest first, excluding soft-deleted runs.
//
// Supported criteria: "playlist_id" (string), "status" (string or [models.RunStatus]), "limit" (int).
func (r *RefreshRunRepository) List(criteria map[string]any) ([]*models.RefreshRun, error) {
	query := `SELECT ` + runColumns + ` FROM refresh_runs WHERE deleted_at IS NULL`
	args := []any{}

	if playlistID, ok := criteria["playlist_id"].(string); ok && playlistID != "" {
		query += " AND playlist_id = ?"
		args = append(args, playlistID)
	}

	switch status := criteria["status"].(type) {
	case string:
		query += " AND status = ?"
		args = append(args, status)
	case models.RunStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RefreshRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// FailInterrupted marks runs left in the running state by a previous process as failed.
func (r *RefreshRunRepository) FailInterrupted(at time.Time) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE refresh_runs
		SET status = ?, error_kind = 'interrupted', error_message = 'process exited during the cycle',
			completed_at = ?, updated_at = ?
		WHERE status = ? AND deleted_at IS NULL
	`, string(models.RunFailed), at.UTC(), at.UTC(), string(models.RunRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to close interrupted runs: %w", err)
	}
	return result.RowsAffected()
}

// scanRun scans a row into a [models.RefreshRun]
func scanRun(row scanner) (*models.RefreshRun, error) {
	var (
		id           string
		sequence     int
		playlistID   string
		trigger      string
		status       string
		matched      int
		written      int
		edits        int
		rewrite      bool
		warnings     string
		errorKind    string
		errorMessage string
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &playlistID, &trigger, &status, &matched, &written, &edits, &rewrite, &warnings,
		&errorKind, &errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan refresh run: %w", err)
	}

	run := models.NewRefreshRun(playlistID, models.Trigger(trigger), startedAt)
	run.SetID(id)
	run.SetSequence(sequence)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	run.Status = models.RunStatus(status)
	run.Matched = matched
	run.Written = written
	run.Edits = edits
	run.Rewrite = rewrite
	if warnings != "" {
		run.Warnings = strings.Split(warnings, "\n")
	}
	run.ErrorKind = errorKind
	run.ErrorMessage = errorMessage
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		run.CompletedAt = &t
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}
