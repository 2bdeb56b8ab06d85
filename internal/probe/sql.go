package probe

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/watchkeeper/watchkeeper/internal/classify"
	"github.com/watchkeeper/watchkeeper/internal/domain"
)

func driverName(p domain.Provider) (string, error) {
	switch p {
	case domain.ProviderPostgres:
		return "pgx", nil
	case domain.ProviderSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("%w: no driver wired for provider %q", ErrConnect, p)
	}
}

// SQLResult is the raw outcome of one SQL probe attempt plus its measured
// elapsed time, per §4.5.
type SQLResult struct {
	Raw           classify.SQLRaw
	Elapsed       time.Duration
	ServerVersion string
	DatabaseName  string
}

// SQLExecutor opens a pooled *sql.DB per connection name, lazily, and reuses
// it across probes. Connections are never shared across provider/conn-string
// changes because callers key by Connection.Name which the config validator
// guarantees is unique.
type SQLExecutor struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewSQLExecutor builds an executor with an empty pool cache.
func NewSQLExecutor() *SQLExecutor {
	return &SQLExecutor{pools: make(map[string]*sql.DB)}
}

func (e *SQLExecutor) pool(conn *domain.Connection) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if db, ok := e.pools[conn.Name]; ok {
		return db, nil
	}

	driver, err := driverName(conn.Provider)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, conn.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnect, err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	e.pools[conn.Name] = db
	return db, nil
}

// Close releases every cached connection pool, for use at worker shutdown.
func (e *SQLExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for name, db := range e.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.pools, name)
	}
	return firstErr
}

// Execute runs query against conn, honoring conn.ConnectTimeout for opening
// the connection and query.Timeout for executing the statement, both linked
// to ctx. The pooled connection is always released back to the driver's
// pool on return, regardless of outcome.
func (e *SQLExecutor) Execute(ctx context.Context, conn *domain.Connection, query *domain.Query) SQLResult {
	start := time.Now()

	db, err := e.pool(conn)
	if err != nil {
		return SQLResult{Elapsed: time.Since(start), Raw: classify.SQLRaw{Outcome: classify.OutcomeError, ErrorMessage: err.Error()}}
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, conn.ConnectTimeout)
	defer cancelConnect()

	sqlConn, err := db.Conn(connectCtx)
	if err != nil {
		return SQLResult{Elapsed: time.Since(start), Raw: classify.SQLRaw{Outcome: classify.OutcomeError, ErrorMessage: fmt.Sprintf("Connect: %s", err)}}
	}
	defer sqlConn.Close()

	execCtx, cancelExec := context.WithTimeout(ctx, query.Timeout)
	defer cancelExec()

	raw, err := e.run(execCtx, sqlConn, query)
	elapsed := time.Since(start)
	if err != nil {
		return SQLResult{Elapsed: elapsed, Raw: classify.SQLRaw{Outcome: classify.OutcomeError, ErrorMessage: err.Error()}}
	}
	return SQLResult{Elapsed: elapsed, Raw: raw}
}

func (e *SQLExecutor) run(ctx context.Context, conn *sql.Conn, query *domain.Query) (classify.SQLRaw, error) {
	switch query.ResultKind {
	case domain.ResultKindScalar:
		row := conn.QueryRowContext(ctx, query.SQL)
		var value sql.NullString
		if err := row.Scan(&value); err != nil {
			if err == sql.ErrNoRows {
				return classify.SQLRaw{Outcome: classify.OutcomeOK, ScalarValue: nil}, nil
			}
			return classify.SQLRaw{}, fmt.Errorf("%w: %s", ErrExecute, err)
		}
		if !value.Valid {
			return classify.SQLRaw{Outcome: classify.OutcomeOK, ScalarValue: nil}, nil
		}
		v := value.String
		return classify.SQLRaw{Outcome: classify.OutcomeOK, ScalarValue: &v}, nil

	case domain.ResultKindNonQuery:
		result, err := conn.ExecContext(ctx, query.SQL)
		if err != nil {
			return classify.SQLRaw{}, fmt.Errorf("%w: %s", ErrExecute, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			rows = -1
		}
		return classify.SQLRaw{Outcome: classify.OutcomeOK, RowsAffected: &rows}, nil

	case domain.ResultKindTable:
		rows, err := conn.QueryContext(ctx, query.SQL)
		if err != nil {
			return classify.SQLRaw{}, fmt.Errorf("%w: %s", ErrExecute, err)
		}
		defer rows.Close()
		var n int64
		for rows.Next() {
			n++
		}
		if err := rows.Err(); err != nil {
			return classify.SQLRaw{}, fmt.Errorf("%w: %s", ErrExecute, err)
		}
		return classify.SQLRaw{Outcome: classify.OutcomeOK, RowsAffected: &n}, nil

	default:
		return classify.SQLRaw{}, fmt.Errorf("%w: unknown result kind %q", ErrResultShapeMismatch, query.ResultKind)
	}
}
