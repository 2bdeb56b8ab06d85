package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS worker_instances (
	id TEXT PRIMARY KEY, name TEXT, host TEXT, version TEXT, environment TEXT,
	pid INTEGER, status TEXT, started_at TEXT, last_heartbeat TEXT, stopped_at TEXT
);
CREATE TABLE IF NOT EXISTS worker_jobs (
	id TEXT PRIMARY KEY, status TEXT, result_status TEXT, result_message TEXT,
	scheduled_at TEXT, completed_at TEXT, retry_count INTEGER, next_retry_at TEXT
);
CREATE TABLE IF NOT EXISTS probe_results (
	id TEXT PRIMARY KEY, job_id TEXT, target_name TEXT, query_name TEXT, status TEXT,
	message TEXT, raw_value TEXT, duration_ms INTEGER, occurred_at TEXT,
	provider TEXT, environment TEXT, server_version TEXT, database_name TEXT
);
`

// SQLiteRepository is a pure-Go backend, selected with the "sqlite" driver
// and used by tests that want a real, file-backed (or in-memory) SQL round
// trip without standing up PostgreSQL.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens dsn (a modernc.org/sqlite connection string,
// e.g. "file::memory:?cache=shared" or a file path) and applies the schema.
func NewSQLiteRepository(ctx context.Context, dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply sqlite schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// InsertResults mirrors PostgresRepository.InsertResults against the sqlite
// schema, within one transaction.
func (r *SQLiteRepository) InsertResults(ctx context.Context, results []*domain.Result, jobs []*domain.Job) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %s", ErrTransient, err)
	}
	defer tx.Rollback()

	// Written job-before-result to mirror PostgresRepository, where job_id is
	// a NOT NULL FK on probe_results and must exist before the result row
	// referencing it is inserted.
	for _, job := range jobs {
		if job == nil {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO worker_jobs (id, status, result_status, result_message, scheduled_at, completed_at, retry_count, next_retry_at)
			VALUES (?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				status=excluded.status, result_status=excluded.result_status, result_message=excluded.result_message,
				completed_at=excluded.completed_at, retry_count=excluded.retry_count, next_retry_at=excluded.next_retry_at`,
			job.ID.String(), string(job.Status), resultStatusString(job.ResultStatus), job.ResultMessage,
			job.ScheduledAt, job.CompletedAt, job.RetryCount, job.NextRetryAt)
		if err != nil {
			return fmt.Errorf("%w: update job %s: %s", ErrTransient, job.ID, err)
		}
	}

	for _, res := range results {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO probe_results
				(id, job_id, target_name, query_name, status, message, raw_value,
				 duration_ms, occurred_at, provider, environment, server_version, database_name)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			res.ID.String(), res.JobID.String(), res.TargetName, res.QueryName, string(res.Status), res.Message, res.RawValue,
			res.DurationMS, res.Timestamp, res.Provider, res.Environment, res.ServerVersion, res.DatabaseName)
		if err != nil {
			return fmt.Errorf("%w: insert result %s: %s", ErrTransient, res.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %s", ErrTransient, err)
	}
	return nil
}

// UpsertInstance records instance identity/state into the sqlite schema.
func (r *SQLiteRepository) UpsertInstance(ctx context.Context, instance *domain.Instance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO worker_instances (id, name, host, version, environment, pid, status, started_at, last_heartbeat, stopped_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, last_heartbeat=excluded.last_heartbeat, stopped_at=excluded.stopped_at`,
		instance.ID.String(), instance.Name, instance.Host, instance.Version, instance.Environment, instance.PID,
		string(instance.Status), instance.StartedAt, instance.LastHeartbeat, instance.StoppedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert instance %s: %s", ErrTransient, instance.ID, err)
	}
	return nil
}

// ListResults mirrors PostgresRepository.ListResults against the sqlite
// schema. Placeholders are built up rather than using named params since
// modernc.org/sqlite's driver follows database/sql's positional convention.
func (r *SQLiteRepository) ListResults(ctx context.Context, filter ResultFilter) ([]*domain.Result, error) {
	filter = filter.Normalize()

	var where []string
	var args []any
	if filter.Target != "" {
		where = append(where, "target_name = ?")
		args = append(args, filter.Target)
	}
	if filter.Query != "" {
		where = append(where, "query_name = ?")
		args = append(args, filter.Query)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Environment != "" {
		where = append(where, "environment = ?")
		args = append(args, filter.Environment)
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, filter.Until)
	}

	query := `SELECT id, job_id, target_name, query_name, status, message, raw_value,
		duration_ms, occurred_at, provider, environment, server_version, database_name
		FROM probe_results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY target_name, occurred_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, filter.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	defer rows.Close()

	var out []*domain.Result
	for rows.Next() {
		res := &domain.Result{}
		var id, jobID, status, provider string
		if err := rows.Scan(&id, &jobID, &res.TargetName, &res.QueryName, &status,
			&res.Message, &res.RawValue, &res.DurationMS, &res.Timestamp, &provider,
			&res.Environment, &res.ServerVersion, &res.DatabaseName); err != nil {
			return nil, fmt.Errorf("store: scan result row: %w", err)
		}
		res.ID, err = uuidFromString(id)
		if err != nil {
			return nil, err
		}
		res.JobID, err = uuidFromString(jobID)
		if err != nil {
			return nil, err
		}
		res.Status = domain.ResultStatus(status)
		res.Provider = provider
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	return out, nil
}

// DeleteJobsOlderThan mirrors PostgresRepository.DeleteJobsOlderThan; sqlite
// has no FK cascade configured (the CREATE TABLE IF NOT EXISTS schema above
// declares no foreign keys), so dependent probe_results rows are deleted
// first in the same transaction.
func (r *SQLiteRepository) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: janitor begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM worker_jobs
		WHERE scheduled_at < ? AND status IN ('completed', 'failed', 'cancelled')
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("store: janitor select candidates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: janitor scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("store: janitor select candidates: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM probe_results WHERE job_id IN (`+placeholders+`)`, args...); err != nil {
		return 0, fmt.Errorf("store: janitor delete results: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM worker_jobs WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("store: janitor delete jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: janitor commit: %w", err)
	}
	return result.RowsAffected()
}

func uuidFromString(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("store: parse uuid %q: %w", s, err)
	}
	return id, nil
}

// Close closes the underlying database handle.
func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}
