package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/formatter"
	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
)

// DynamicPlaylistRepository implements models.Repository[*models.DynamicPlaylist].
//
// Handles playlist CRUD with soft delete support, name lookups and snapshot storage.
type DynamicPlaylistRepository struct {
	db *sql.DB
}

// NewDynamicPlaylistRepository creates a new DynamicPlaylistRepository with the given database connection
func NewDynamicPlaylistRepository(db *sql.DB) *DynamicPlaylistRepository {
	return &DynamicPlaylistRepository{db: db}
}

const playlistColumns = `id, sequence, name, description, target, rules, order_by, shuffle, result_limit,
	schedule_interval, schedule_anchor, last_refresh, revision, created_at, updated_at, deleted_at`

// Create inserts a new playlist with generated ID and sequence
func (r *DynamicPlaylistRepository) Create(pl *models.DynamicPlaylist) error {
	if err := pl.Validate(); err != nil {
		return err
	}

	def, err := encodeDefinition(pl)
	if err != nil {
		return err
	}

	sequence, err := NextSequence(r.db, "dynamic_playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO dynamic_playlists (id, sequence, name, description, target, rules, order_by, shuffle, result_limit,
			schedule_interval, schedule_anchor, last_refresh, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		pl.Name,
		pl.Description,
		pl.Target,
		def.rules,
		def.order,
		pl.Shuffle,
		def.limit,
		def.interval,
		def.anchor,
		nullTime(pl.LastRefresh),
		pl.CreatedAt(),
		pl.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistExists, pl.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	pl.SetID(id)
	pl.SetSequence(sequence)
	return nil
}

// Get retrieves a playlist and its snapshot by ID, excluding soft-deleted playlists
func (r *DynamicPlaylistRepository) Get(id string) (*models.DynamicPlaylist, error) {
	query := `SELECT ` + playlistColumns + ` FROM dynamic_playlists WHERE id = ? AND deleted_at IS NULL`
	return r.load(r.db.QueryRow(query, id), id)
}

// GetByName retrieves a playlist and its snapshot by name
func (r *DynamicPlaylistRepository) GetByName(name string) (*models.DynamicPlaylist, error) {
	query := `SELECT ` + playlistColumns + ` FROM dynamic_playlists WHERE name = ? AND deleted_at IS NULL`
	return r.load(r.db.QueryRow(query, name), name)
}

func (r *DynamicPlaylistRepository) load(row *sql.Row, key string) (*models.DynamicPlaylist, error) {
	pl, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, key)
	}
	if err != nil {
		return nil, err
	}

	snap, err := r.GetSnapshot(pl.ID())
	if err != nil {
		return nil, err
	}
	pl.Snapshot = snap
	return pl, nil
}

// Update replaces the definition of an existing playlist and bumps its revision.
// The snapshot URIs are kept; when the stored playlist it writes to changes the
// snapshot is marked dirty in the same transaction.
func (r *DynamicPlaylistRepository) Update(pl *models.DynamicPlaylist) error {
	if err := pl.Validate(); err != nil {
		return err
	}

	def, err := encodeDefinition(pl)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prevName, prevTarget string
	var revision int64
	err = tx.QueryRow(`SELECT name, target, revision FROM dynamic_playlists WHERE id = ? AND deleted_at IS NULL`, pl.ID()).
		Scan(&prevName, &prevTarget, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, pl.ID())
	}
	if err != nil {
		return fmt.Errorf("failed to read playlist: %w", err)
	}

	now := time.Now().UTC()
	revision++

	query := `
		UPDATE dynamic_playlists
		SET name = ?, description = ?, target = ?, rules = ?, order_by = ?, shuffle = ?, result_limit = ?,
			schedule_interval = ?, schedule_anchor = ?, last_refresh = ?, revision = ?, updated_at = ?
		WHERE id = ?
	`

	_, err = tx.Exec(query,
		pl.Name,
		pl.Description,
		pl.Target,
		def.rules,
		def.order,
		pl.Shuffle,
		def.limit,
		def.interval,
		def.anchor,
		nullTime(pl.LastRefresh),
		revision,
		now,
		pl.ID(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistExists, pl.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}

	prev := models.DynamicPlaylist{Name: prevName, Target: prevTarget}
	if prev.TargetName() != pl.TargetName() {
		if err := markDirty(tx, pl.ID(), now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playlist update: %w", err)
	}

	pl.Revision = revision
	pl.SetUpdatedAt(now)
	return nil
}

// Delete soft-deletes a playlist by ID
func (r *DynamicPlaylistRepository) Delete(id string) error {
	now := time.Now().UTC()

	query := `
		UPDATE dynamic_playlists
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	return nil
}

// List retrieves all playlists matching the given criteria, excluding soft-deleted playlists.
//
// Supported criteria: "scheduled" (bool) keeps playlists with a periodic schedule.
func (r *DynamicPlaylistRepository) List(criteria map[string]any) ([]*models.DynamicPlaylist, error) {
	query := `SELECT ` + playlistColumns + ` FROM dynamic_playlists WHERE deleted_at IS NULL`

	if scheduled, ok := criteria["scheduled"].(bool); ok {
		if scheduled {
			query += " AND schedule_interval > 0"
		} else {
			query += " AND schedule_interval = 0"
		}
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}

	var playlists []*models.DynamicPlaylist
	for rows.Next() {
		pl, err := scanPlaylist(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		playlists = append(playlists, pl)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, pl := range playlists {
		snap, err := r.GetSnapshot(pl.ID())
		if err != nil {
			return nil, err
		}
		pl.Snapshot = snap
	}

	return playlists, nil
}

// GetSnapshot returns the cached snapshot of a playlist, empty when none was written yet
func (r *DynamicPlaylistRepository) GetSnapshot(playlistID string) (models.Snapshot, error) {
	var snap models.Snapshot

	err := r.db.QueryRow(`SELECT dirty, updated_at FROM playlist_snapshots WHERE playlist_id = ?`, playlistID).
		Scan(&snap.Dirty, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("failed to get snapshot: %w", err)
	}

	rows, err := r.db.Query(`SELECT uri FROM playlist_snapshot_entries WHERE playlist_id = ? ORDER BY position`, playlistID)
	if err != nil {
		return snap, fmt.Errorf("failed to query snapshot entries: %w", err)
	}
	defer rows.Close()

	snap.URIs = []string{}
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return snap, fmt.Errorf("failed to scan snapshot entry: %w", err)
		}
		snap.URIs = append(snap.URIs, uri)
	}

	return snap, rows.Err()
}

// SaveSnapshot replaces the snapshot of a playlist and records the refresh time in one transaction.
//
// revision is the definition revision the cycle evaluated. When the definition
// was written since, nothing is saved, the existing snapshot is marked dirty
// and [shared.ErrDefinitionMoved] is returned. A saved snapshot is always clean.
func (r *DynamicPlaylistRepository) SaveSnapshot(playlistID string, revision int64, snap models.Snapshot, refreshedAt time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	refreshedAt = refreshedAt.UTC()

	var current int64
	err = tx.QueryRow(`SELECT revision FROM dynamic_playlists WHERE id = ? AND deleted_at IS NULL`, playlistID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	if err != nil {
		return fmt.Errorf("failed to read playlist revision: %w", err)
	}

	if current != revision {
		if err := markDirty(tx, playlistID, refreshedAt); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit dirty snapshot: %w", err)
		}
		return fmt.Errorf("%w: %s evaluated revision %d, store has %d", shared.ErrDefinitionMoved, playlistID, revision, current)
	}

	if _, err := tx.Exec(`UPDATE dynamic_playlists SET last_refresh = ? WHERE id = ?`, refreshedAt, playlistID); err != nil {
		return fmt.Errorf("failed to record refresh: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM playlist_snapshot_entries WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO playlist_snapshot_entries (playlist_id, position, uri) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, uri := range snap.URIs {
		if _, err := stmt.Exec(playlistID, i, uri); err != nil {
			return fmt.Errorf("failed to insert snapshot entry %d: %w", i, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO playlist_snapshots (playlist_id, dirty, updated_at) VALUES (?, 0, ?)
		ON CONFLICT (playlist_id) DO UPDATE SET dirty = 0, updated_at = excluded.updated_at
	`, playlistID, refreshedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return tx.Commit()
}

// MarkSnapshotDirty flags the snapshot so the next cycle rewrites the stored playlist.
// The URI sequence is left unchanged.
func (r *DynamicPlaylistRepository) MarkSnapshotDirty(playlistID string) error {
	return markDirty(r.db, playlistID, time.Now().UTC())
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func markDirty(db execer, playlistID string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO playlist_snapshots (playlist_id, dirty, updated_at) VALUES (?, 1, ?)
		ON CONFLICT (playlist_id) DO UPDATE SET dirty = 1
	`, playlistID, at)
	if err != nil {
		return fmt.Errorf("failed to mark snapshot dirty: %w", err)
	}
	return nil
}

type definition struct {
	rules    string
	order    string
	limit    sql.NullInt64
	interval int64
	anchor   int64
}

func encodeDefinition(pl *models.DynamicPlaylist) (definition, error) {
	var def definition

	rules, err := formatter.MarshalRules(pl.Rules)
	if err != nil {
		return def, err
	}
	order := pl.Order
	if order == nil {
		order = []models.OrderClause{}
	}
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return def, fmt.Errorf("failed to encode order: %w", err)
	}

	def.rules = string(rules)
	def.order = string(orderJSON)
	if pl.Limit != nil {
		def.limit = sql.NullInt64{Int64: int64(*pl.Limit), Valid: true}
	}
	if !pl.Schedule.IsManual() {
		def.interval = int64(pl.Schedule.Interval / time.Second)
		def.anchor = pl.Schedule.Anchor.Unix()
	}
	return def, nil
}

// decodeRules reads the rules column. Rows written before rules were stored
// in their interchange form hold the model's own encoding, which is still
// accepted until the playlist is next updated.
func decodeRules(raw string) (*models.Node, error) {
	n, err := formatter.UnmarshalRules([]byte(raw))
	if err == nil {
		return n, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var legacy *models.Node
	if dec.Decode(&legacy) == nil {
		return legacy, nil
	}
	return nil, err
}

// scanner is satisfied by [sql.Row] and [sql.Rows]
type scanner interface {
	Scan(dest ...any) error
}

// scanPlaylist scans a row into a [models.DynamicPlaylist]
func scanPlaylist(row scanner) (*models.DynamicPlaylist, error) {
	var (
		id          string
		sequence    int
		name        string
		description string
		target      string
		rules       string
		order       string
		shuffle     bool
		limit       sql.NullInt64
		interval    int64
		anchor      int64
		lastRefresh sql.NullTime
		revision    int64
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := row.Scan(&id, &sequence, &name, &description, &target, &rules, &order, &shuffle, &limit,
		&interval, &anchor, &lastRefresh, &revision, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	pl := models.NewDynamicPlaylist(name, nil)
	if pl.Rules, err = decodeRules(rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules of %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(order), &pl.Order); err != nil {
		return nil, fmt.Errorf("failed to decode order of %s: %w", name, err)
	}
	if len(pl.Order) == 0 {
		pl.Order = nil
	}

	pl.SetID(id)
	pl.SetSequence(sequence)
	pl.SetCreatedAt(createdAt)
	pl.SetUpdatedAt(updatedAt)
	pl.Description = description
	pl.Target = target
	pl.Shuffle = shuffle
	pl.Revision = revision
	if limit.Valid {
		n := int(limit.Int64)
		pl.Limit = &n
	}
	if interval > 0 {
		pl.Schedule = models.Periodic(time.Duration(interval)*time.Second, time.Unix(anchor, 0))
	}
	if lastRefresh.Valid {
		t := lastRefresh.Time.UTC()
		pl.LastRefresh = &t
	}
	if deletedAt.Valid {
		pl.SetDeletedAt(&deletedAt.Time)
	}

	return pl, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
