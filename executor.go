package dblock

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// querier matches *sql.Tx and *sql.DB: the live, cancellable
// statement-execution handle supplied by the transaction provider.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// applyClause splices the locking directive into the statement skeleton:
// the suffix is appended, a table hint replaces the HintSlot marker, and
// a leftover marker is stripped so non-hint backends never see it.
func applyClause(stmt Statement, c LockClause) string {
	query := stmt.Query
	if c.Hint != "" && strings.Contains(query, HintSlot) {
		query = strings.Replace(query, HintSlot, "WITH ("+c.Hint+")", 1)
	} else {
		query = strings.ReplaceAll(query, HintSlot, "")
	}
	if c.Suffix != "" {
		query += " " + c.Suffix
	}
	return query
}

// runLockingRead issues the (possibly locking) read and scans the first
// row. No row yields sql.ErrNoRows: under SKIP LOCKED that means the row
// is locked elsewhere, otherwise it means the row does not exist.
func runLockingRead(ctx context.Context, q querier, query string, args []any) (*Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return &Row{Columns: cols, Values: values}, rows.Close()
}

// runWithDeadline races the locking read against an independent timer
// for backends that cannot enforce the wait themselves. When the timer
// fires first the in-flight statement is cancelled through its context,
// which the driver translates into a server-side cancel, leaving the
// connection reusable. If the backend granted the lock microseconds
// before the deadline, the same aborted work releases it again; that
// race is benign.
func runWithDeadline(parent context.Context, wait time.Duration, fn func(context.Context) (*Row, error)) (*Row, error) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	type result struct {
		row *Row
		err error
	}
	done := make(chan result, 1)
	go func() {
		row, err := fn(ctx)
		done <- result{row, err}
	}()

	select {
	case r := <-done:
		return r.row, r.err
	case <-ctx.Done():
		// The goroutine unblocks once the driver observes the
		// cancellation; the buffered channel lets it finish.
		return nil, ctx.Err()
	}
}
