package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// runColumns is the SELECT column list for run history queries.
const runColumns = `id, script, trigger_type, args, status, started_at, completed_at, duration_ms, error`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateRun inserts the initial record for a started run.
func (r *SQLiteRepository) CreateRun(ctx context.Context, rec *RunRecord) error {
	query := `
		INSERT INTO script_runs (
			id, script, trigger_type, args, status, started_at,
			completed_at, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Script,
		rec.TriggerType,
		nullableArgs(rec.Args),
		rec.Status,
		rec.StartedAt.Format(time.RFC3339Nano),
		nullableTime(rec.CompletedAt),
		nullableInt(rec.DurationMS),
		nullableString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// CompleteRun updates a record with its terminal status. The args
// column is left untouched; it was captured at start time.
func (r *SQLiteRepository) CompleteRun(ctx context.Context, rec *RunRecord) error {
	query := `
		UPDATE script_runs SET
			status = ?, completed_at = ?, duration_ms = ?, error = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rec.Status,
		nullableTime(rec.CompletedAt),
		nullableInt(rec.DurationMS),
		nullableString(rec.Error),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a single run record by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM script_runs WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rec, err := scanRunRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return rec, nil
}

// ListRuns retrieves recent run records, newest first. An empty script
// filter returns records across all scripts.
func (r *SQLiteRepository) ListRuns(ctx context.Context, script string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	query := `SELECT ` + runColumns + ` FROM script_runs`
	args := []any{}
	if script != "" {
		query += ` WHERE script = ?`
		args = append(args, script)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		rec, scanErr := scanRunRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return records, nil
}

// PruneRuns deletes records older than the cutoff, returning how many
// rows were removed. Used by the retention sweep.
func (r *SQLiteRepository) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM script_runs WHERE started_at < ?`,
		before.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunRow(scanner rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var args, completedAt, errMsg sql.NullString
	var durationMS sql.NullInt64
	var startedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Script,
		&rec.TriggerType,
		&args,
		&rec.Status,
		&startedAt,
		&completedAt,
		&durationMS,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	if args.Valid {
		rec.Args = args.String
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		rec.StartedAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, completedAt.String); parseErr == nil {
			rec.CompletedAt = &t
		}
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		rec.DurationMS = &d
	}
	if errMsg.Valid {
		rec.Error = &errMsg.String
	}

	return &rec, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableArgs(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
