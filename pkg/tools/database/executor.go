// Package database runs read-only analyst queries against SQLite, MySQL and
// PostgreSQL through database/sql.
package database

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"

	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/parser"
	"github.com/choraleia/analyst/pkg/utils"
)

const (
	defaultMaxRows      = 1000
	defaultQueryTimeout = 30 * time.Second
	defaultMaxOpenConns = 4
	openRetries         = 3
)

// Options configures Open.
type Options struct {
	// Name identifies the source in logs.
	Name         string
	Dialect      Dialect
	DSN          string
	MaxRows      int
	QueryTimeout time.Duration
	MaxOpenConns int
}

// Executor runs one statement at a time on a pooled connection.
// It is safe for concurrent use.
type Executor struct {
	db      *sql.DB
	name    string
	dialect Dialect
	maxRows int
	timeout time.Duration
	logger  *slog.Logger
}

// Open connects to the source and verifies it answers a ping.
// An unreachable database yields a *ConnectionError.
func Open(ctx context.Context, opts Options) (*Executor, error) {
	if opts.Dialect == "" {
		opts.Dialect = DialectSQLite
	}
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("empty DSN")
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = defaultMaxRows
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = defaultMaxOpenConns
	}
	logger := utils.GetLogger().With("source", opts.Name, "dialect", string(opts.Dialect))

	if opts.Dialect == DialectSQLite {
		if err := checkSQLiteFile(opts.DSN); err != nil {
			return nil, &ConnectionError{Op: "open", Err: err}
		}
	}

	db, err := sql.Open(opts.Dialect.DriverName(), opts.Dialect.normalizeDSN(opts.DSN))
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: errors.Wrapf(err, "open %s", utils.MaskDSN(opts.DSN))}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	var lastErr error
	for i := 0; i < openRetries; i++ {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		logger.Warn("Database ping failed", "attempt", i+1, "error", lastErr)
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(200*(i+1)) * time.Millisecond):
		}
	}
	if lastErr != nil {
		_ = db.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ConnectionError{Op: "ping", Err: errors.Wrapf(lastErr, "ping %s", utils.MaskDSN(opts.DSN))}
	}

	logger.Info("Database source ready", "dsn", utils.MaskDSN(opts.DSN))
	return &Executor{
		db:      db,
		name:    opts.Name,
		dialect: opts.Dialect,
		maxRows: opts.MaxRows,
		timeout: opts.QueryTimeout,
		logger:  logger,
	}, nil
}

// checkSQLiteFile refuses plain paths that do not exist, since the driver
// would silently create an empty database.
func checkSQLiteFile(dsn string) error {
	path := dsn
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == ":memory:" || path == "" || strings.HasPrefix(path, "file:") {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "sqlite database %s", path)
	}
	return nil
}

func (e *Executor) Dialect() Dialect { return e.dialect }
func (e *Executor) Close() error     { return e.db.Close() }

// Ping checks the source is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ConnectionError{Op: "ping", Err: err}
	}
	return nil
}

// Execute runs the artifact's statement on a connection held only for the
// duration of the call. Rows beyond MaxRows are dropped and the result is
// marked Truncated. Caller cancellation is returned as the context error.
func (e *Executor) Execute(ctx context.Context, art *models.SQLArtifact) (*models.QueryResult, error) {
	if art == nil {
		return nil, &ExecutionError{Message: "no statement to execute"}
	}
	stmt, err := parser.NormalizeStatement(art.Statement)
	if err != nil {
		return nil, &ExecutionError{Message: err.Error(), Statement: art.Statement, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ConnectionError{Op: "acquire connection", Err: err}
	}
	defer conn.Close()

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := conn.QueryContext(qctx, stmt)
	if err != nil {
		return nil, e.classify(ctx, qctx, stmt, err)
	}
	defer rows.Close()

	columns, records, truncated, err := scanRows(rows, e.maxRows)
	if err != nil {
		return nil, e.classify(ctx, qctx, stmt, err)
	}

	result := &models.QueryResult{
		Columns:   columns,
		Rows:      records,
		RowCount:  len(records),
		Truncated: truncated,
		Statement: stmt,
		Duration:  time.Since(start),
	}
	e.logger.Debug("Query executed", "source", e.name, "rows", result.RowCount, "truncated", truncated, "duration", result.Duration)
	return result, nil
}

// scanRows reads at most limit rows (limit <= 0 reads all) and reports
// whether more were available.
func scanRows(rows *sql.Rows, limit int) ([]string, []map[string]any, bool, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, false, err
	}

	results := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if limit > 0 && len(results) >= limit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, false, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}
	return columns, results, truncated, nil
}
