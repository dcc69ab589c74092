package dblock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/dblock/classify"
	"github.com/marcus/dblock/dialect"
)

// Manager ties a database handle to its dialect record. It is safe for
// concurrent use; each transaction it opens is single-owner.
type Manager struct {
	db          *sql.DB
	d           dialect.Dialect
	log         *slog.Logger
	defaultWait time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithDefaultTimeout fills in LockRequest.WaitFor for WaitWithTimeout
// requests that left it zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) { m.defaultWait = d }
}

// New builds a Manager for the given backend id. Unregistered backends
// fail here, at startup, not per request.
func New(db *sql.DB, backend string, opts ...Option) (*Manager, error) {
	d, err := dialect.For(backend)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		db:  db,
		d:   d,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dialect returns the backend's dialect record.
func (m *Manager) Dialect() dialect.Dialect {
	return m.d
}

// Txn is one transaction-scoped locking session. Locks acquired through
// it are held until Commit or Rollback; the backend releases them at the
// transaction boundary, so ending the transaction is the only release
// path.
type Txn struct {
	id    uuid.UUID
	m     *Manager
	tx    *sql.Tx
	scope *LockScope
	done  bool
}

// Begin opens a transaction with its own empty LockScope.
func (m *Manager) Begin(ctx context.Context) (*Txn, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Txn{
		id:    uuid.New(),
		m:     m,
		tx:    tx,
		scope: newLockScope(),
	}, nil
}

// ID returns the transaction's identity.
func (t *Txn) ID() uuid.UUID { return t.id }

// Scope returns the transaction's lock scope.
func (t *Txn) Scope() *LockScope { return t.scope }

// Commit ends the transaction; the backend releases every lock in the
// scope.
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.scope.clear()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback ends the transaction, releasing its locks. Safe to defer
// after Commit.
func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.scope.clear()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// LockedLoad reads one row identified by id through the caller's
// statement skeleton, locking it per the request. The outcome is always
// typed; err is non-nil only for malformed requests, missing rows and
// unclassified failures.
func (t *Txn) LockedLoad(ctx context.Context, stmt Statement, id Identity, req LockRequest) (*Row, Outcome, error) {
	req = t.m.withDefaults(req)
	clause, err := Translate(req, t.m.d)
	if err != nil {
		return nil, OutcomeUnknown, err
	}
	t.m.warnDegraded(id, req, clause)

	query := applyClause(stmt, clause)

	var row *Row
	if clause.ClientDeadline {
		row, err = runWithDeadline(ctx, clause.EffectiveWait, func(ctx context.Context) (*Row, error) {
			return runLockingRead(ctx, t.tx, query, stmt.Args)
		})
	} else {
		row, err = runLockingRead(ctx, t.tx, query, stmt.Args)
	}
	if err != nil {
		outcome, cErr := t.m.outcomeFor(clause, err)
		return nil, outcome, cErr
	}

	// The scope records the caller's locking intent even when the
	// backend degraded it to a plain read; degradation is observable
	// through the warn log and the clause flags, not through the scope.
	if clause.Mode != ModeNone {
		t.scope.Add(id, clause.Mode)
	}
	t.m.log.Debug("lock acquired",
		"txn", t.id,
		"identity", id.String(),
		"mode", clause.Mode.String(),
		"locking", clause.Locking())
	return row, OutcomeAcquired, nil
}

// Lock acquires a pessimistic lock on an already-known identity without
// reloading the caller's projection: a key-only locking select.
func (t *Txn) Lock(ctx context.Context, id Identity, req LockRequest) (Outcome, error) {
	stmt := Statement{
		Query: fmt.Sprintf("SELECT %s FROM %s %s WHERE %s = %s",
			id.KeyColumn, id.Table, HintSlot, id.KeyColumn, t.m.d.Placeholder(1)),
		Args: []any{id.Key},
	}
	_, outcome, err := t.LockedLoad(ctx, stmt, id, req)
	return outcome, err
}

func (m *Manager) withDefaults(req LockRequest) LockRequest {
	if req.Wait == WaitWithTimeout && req.WaitFor == 0 && m.defaultWait > 0 {
		req.WaitFor = m.defaultWait
	}
	return req
}

func (m *Manager) warnDegraded(id Identity, req LockRequest, clause LockClause) {
	if clause.Fallback {
		m.log.Warn("locking not supported by backend, plain read",
			"backend", m.d.Name,
			"identity", id.String(),
			"mode", req.Mode.String())
		return
	}
	if clause.Degraded {
		m.log.Warn("lock timeout policy not supported by backend, degraded",
			"backend", m.d.Name,
			"identity", id.String(),
			"requested", req.Wait.String(),
			"effective", clause.Wait.String(),
			"client_deadline", clause.ClientDeadline)
	}
}

// outcomeFor is the single point where raw backend failures become
// typed outcomes. Contention outcomes carry no error; anything
// unclassified keeps the wrapped cause as a hard failure.
func (m *Manager) outcomeFor(clause LockClause, rawErr error) (Outcome, error) {
	if errors.Is(rawErr, sql.ErrNoRows) {
		if clause.Wait == WaitSkipLocked {
			return OutcomeSkipped, nil
		}
		return OutcomeUnknown, fmt.Errorf("locked load: %w", rawErr)
	}

	raw := classify.Parse(m.d.Name, rawErr)
	switch classify.Classify(raw) {
	case classify.KindLockNotAvailable:
		return OutcomeRejected, nil
	case classify.KindDeadlock:
		return OutcomeDeadlock, nil
	case classify.KindTimeout:
		return OutcomeTimedOut, nil
	default:
		return OutcomeFailed, fmt.Errorf("locking read failed: %w", rawErr)
	}
}
