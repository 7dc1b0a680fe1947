package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ExecutionError is a statement-level failure the model can correct:
// syntax errors, unknown columns, type errors and timeouts.
type ExecutionError struct {
	Message   string
	Statement string
	Timeout   bool
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return "query timed out: " + e.Message
	}
	return "query failed: " + e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ConnectionError means the database itself could not be reached.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// classify maps a driver error onto the package error types. ctx is the
// caller's context and qctx the per-query context carrying the timeout.
func (e *Executor) classify(ctx, qctx context.Context, stmt string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return &ExecutionError{
			Message:   fmt.Sprintf("statement did not finish within %s", e.timeout),
			Statement: stmt,
			Timeout:   true,
			Err:       err,
		}
	}
	if isConnectionFailure(err) {
		return &ConnectionError{Op: "query", Err: err}
	}
	return &ExecutionError{Message: err.Error(), Statement: stmt, Err: err}
}

func isConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception, 57P: operator intervention (shutdown)
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P03"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
