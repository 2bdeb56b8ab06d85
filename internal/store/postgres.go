package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for goose's migration connection
	"github.com/pressly/goose/v3"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresConfig configures the pooled connection used by PostgresRepository.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PostgresRepository is the durable backend for production deployments:
// result rows and instance/job state live in PostgreSQL, migrated with goose
// from the embedded migrations directory.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository runs pending migrations, then opens a pool sized to
// the available CPUs when not explicitly configured.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	if err := runMigrations(ctx, cfg.DSN); err != nil {
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parse DSN: %w", err)
	}

	maxConns := int32(cfg.MaxOpenConns)
	if maxConns <= 0 {
		maxConns = int32(runtime.GOMAXPROCS(0) * 4)
	}
	minConns := int32(cfg.MaxIdleConns)
	if minConns <= 0 {
		minConns = int32(runtime.GOMAXPROCS(0))
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 5 * time.Minute
	}

	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = connMaxLifetime
	poolConfig.MaxConnIdleTime = connMaxIdleTime
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET TIMEZONE='UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("store: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("store: open migration connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.ErrorContext(ctx, "store: failed to close migration connection", "error", err)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping for migrations: %w", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// InsertResults writes each Result row and updates its owning Job's
// terminal state, all within one transaction, per §4.9. A transaction
// rollback error is classified as transient so the batcher retries; a
// constraint violation on a well-formed batch would indicate corrupted
// input and is treated as permanent.
func (r *PostgresRepository) InsertResults(ctx context.Context, results []*domain.Result, jobs []*domain.Job) error {
	// Integrity-constraint violations (SQLSTATE class 23) are permanent;
	// every other statement failure is transient.
	errKind := func(err error) error {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
			return ErrPermanent
		}
		return ErrTransient
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %s", ErrTransient, err)
	}
	defer tx.Rollback(ctx)

	// worker_jobs must be written before probe_results: job_id is a NOT NULL,
	// non-deferrable FK on probe_results, checked at statement end, so the
	// referenced job row has to exist first or every insert in this batch
	// fails with a foreign-key violation.
	for _, job := range jobs {
		if job == nil {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO worker_jobs
				(id, instance_id, kind, target_name, query_name, priority, scheduled_at,
				 started_at, completed_at, status, retry_count, max_retries, next_retry_at,
				 result_status, result_message)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (id) DO UPDATE SET
				status=EXCLUDED.status, started_at=EXCLUDED.started_at,
				completed_at=EXCLUDED.completed_at, retry_count=EXCLUDED.retry_count,
				next_retry_at=EXCLUDED.next_retry_at, result_status=EXCLUDED.result_status,
				result_message=EXCLUDED.result_message`,
			job.ID, job.InstanceID, string(job.Kind), job.TargetName, job.QueryName,
			job.Priority, job.ScheduledAt, job.StartedAt, job.CompletedAt, string(job.Status),
			job.RetryCount, job.MaxRetries, job.NextRetryAt, resultStatusString(job.ResultStatus), job.ResultMessage)
		if err != nil {
			return fmt.Errorf("%w: update job %s: %s", errKind(err), job.ID, err)
		}
	}

	for _, res := range results {
		_, err := tx.Exec(ctx, `
			INSERT INTO probe_results
				(id, job_id, target_name, query_name, status, message, raw_value,
				 duration_ms, occurred_at, provider, environment, server_version, database_name)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (id) DO NOTHING`,
			res.ID, res.JobID, res.TargetName, res.QueryName, string(res.Status), res.Message, res.RawValue,
			res.DurationMS, res.Timestamp, string(res.Provider), res.Environment, res.ServerVersion, res.DatabaseName)
		if err != nil {
			return fmt.Errorf("%w: insert result %s: %s", errKind(err), res.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %s", ErrTransient, err)
	}
	return nil
}

// UpsertInstance records worker instance identity/state transitions.
func (r *PostgresRepository) UpsertInstance(ctx context.Context, instance *domain.Instance) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO worker_instances (id, name, host, version, environment, pid, status, started_at, last_heartbeat, stopped_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, last_heartbeat=EXCLUDED.last_heartbeat, stopped_at=EXCLUDED.stopped_at`,
		instance.ID, instance.Name, instance.Host, instance.Version, instance.Environment, instance.PID,
		string(instance.Status), instance.StartedAt, instance.LastHeartbeat, instance.StoppedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert instance %s: %s", ErrTransient, instance.ID, err)
	}
	return nil
}

// ListResults answers §6's list_results(filter), building the predicate from
// whichever filter fields are set and ordering by (target, occurred_at DESC)
// as the persisted-state shape in §6 specifies.
func (r *PostgresRepository) ListResults(ctx context.Context, filter ResultFilter) ([]*domain.Result, error) {
	filter = filter.Normalize()

	query := `
		SELECT id, job_id, target_name, query_name, status, message, raw_value,
		       duration_ms, occurred_at, provider, environment, server_version, database_name
		FROM probe_results
		WHERE ($1 = '' OR target_name = $1)
		  AND ($2 = '' OR query_name = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4 = '' OR environment = $4)
		  AND ($5::timestamptz IS NULL OR occurred_at >= $5)
		  AND ($6::timestamptz IS NULL OR occurred_at <= $6)
		ORDER BY target_name, occurred_at DESC
		LIMIT $7 OFFSET $8`

	since, until := nullableTime(filter.Since), nullableTime(filter.Until)
	rows, err := r.pool.Query(ctx, query,
		filter.Target, filter.Query, string(filter.Status), filter.Environment,
		since, until, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	defer rows.Close()

	var out []*domain.Result
	for rows.Next() {
		res := &domain.Result{}
		var status, provider string
		if err := rows.Scan(&res.ID, &res.JobID, &res.TargetName, &res.QueryName, &status,
			&res.Message, &res.RawValue, &res.DurationMS, &res.Timestamp, &provider,
			&res.Environment, &res.ServerVersion, &res.DatabaseName); err != nil {
			return nil, fmt.Errorf("store: scan result row: %w", err)
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

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// resultStatusString dereferences a Job's optional ResultStatus for storage
// in a nullable text column; a nil pointer (job has no result yet, e.g.
// Cancelled) stores as SQL NULL.
func resultStatusString(status *domain.ResultStatus) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}

// DeleteJobsOlderThan sweeps terminal worker_jobs rows scheduled before
// cutoff, in pages of at most limit, per the janitor named in §3. Postgres's
// FK is declared without ON DELETE CASCADE in the initial migration, so
// probe_results for the removed jobs are deleted first within the same
// statement's transaction scope to avoid an orphaned-row constraint error.
func (r *PostgresRepository) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: janitor begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM worker_jobs
		WHERE scheduled_at < $1 AND status IN ('completed', 'failed', 'cancelled')
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("store: janitor select candidates: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
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

	if _, err := tx.Exec(ctx, `DELETE FROM probe_results WHERE job_id = ANY($1::uuid[])`, ids); err != nil {
		return 0, fmt.Errorf("store: janitor delete results: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM worker_jobs WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("store: janitor delete jobs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: janitor commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}
