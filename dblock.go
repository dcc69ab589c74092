// Package dblock acquires row-level pessimistic locks through whatever
// mechanism the target backend supports, holds them for the life of the
// owning transaction, and reports lock contention as typed outcomes
// instead of raw driver errors.
package dblock

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedRequest marks a caller bug in a LockRequest. It is never
// retried and never produced by merely-unsupported feature combinations.
var ErrMalformedRequest = errors.New("malformed lock request")

// Mode is the requested lock strength, weakest to strongest.
type Mode int

const (
	ModeNone Mode = iota
	ModeRead
	ModeUpgrade
	ModePessimisticRead
	ModePessimisticWrite
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModeRead:
		return "READ"
	case ModeUpgrade:
		return "UPGRADE"
	case ModePessimisticRead:
		return "PESSIMISTIC_READ"
	case ModePessimisticWrite:
		return "PESSIMISTIC_WRITE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Exclusive reports whether the mode demands an exclusive row lock.
// UPGRADE is the legacy spelling of PESSIMISTIC_WRITE and keeps its
// semantics.
func (m Mode) Exclusive() bool {
	return m == ModeUpgrade || m == ModePessimisticWrite
}

// Max returns the stronger of two modes.
func (m Mode) Max(other Mode) Mode {
	if other > m {
		return other
	}
	return m
}

// Scope selects whether the lock covers the whole result or one named
// alias within it.
type Scope int

const (
	ScopeResult Scope = iota
	ScopeAlias
)

// WaitPolicy is how the locking read interacts with locks held by other
// transactions.
type WaitPolicy int

const (
	// WaitBlock waits for the lock indefinitely.
	WaitBlock WaitPolicy = iota
	// WaitNone demands immediate rejection if the lock is unavailable.
	WaitNone
	// WaitWithTimeout waits up to LockRequest.WaitFor, then times out.
	WaitWithTimeout
	// WaitSkipLocked silently skips rows locked by other transactions.
	WaitSkipLocked
)

func (w WaitPolicy) String() string {
	switch w {
	case WaitBlock:
		return "WAIT_FOREVER"
	case WaitNone:
		return "NO_WAIT"
	case WaitWithTimeout:
		return "WAIT_MILLIS"
	case WaitSkipLocked:
		return "SKIP_LOCKED"
	default:
		return fmt.Sprintf("WaitPolicy(%d)", int(w))
	}
}

// LockRequest describes what is being locked and how. The zero value is
// a plain unlocked read.
type LockRequest struct {
	Mode    Mode
	Scope   Scope
	Alias   string        // required iff Scope == ScopeAlias
	Wait    WaitPolicy
	WaitFor time.Duration // required iff Wait == WaitWithTimeout
}

// Validate checks the request's structural invariants. Unsupported
// feature combinations are not errors; they degrade during translation.
func (r LockRequest) Validate() error {
	if r.Scope == ScopeAlias && r.Alias == "" {
		return fmt.Errorf("%w: alias scope without alias name", ErrMalformedRequest)
	}
	if r.Scope == ScopeResult && r.Alias != "" {
		return fmt.Errorf("%w: alias %q without alias scope", ErrMalformedRequest, r.Alias)
	}
	if r.Wait == WaitWithTimeout && r.WaitFor <= 0 {
		return fmt.Errorf("%w: non-positive wait timeout %v", ErrMalformedRequest, r.WaitFor)
	}
	return nil
}

// Outcome is the normalized result of a locking read. Contention shows
// up here as a value, never as a raw driver error.
type Outcome int

const (
	// OutcomeUnknown is the zero value, reported only alongside a
	// non-nil error.
	OutcomeUnknown Outcome = iota
	// OutcomeAcquired: the lock is held until the transaction ends.
	OutcomeAcquired
	// OutcomeTimedOut: the wait limit elapsed first.
	OutcomeTimedOut
	// OutcomeRejected: the backend refused immediately (lock not
	// available).
	OutcomeRejected
	// OutcomeDeadlock: the backend chose this session as a deadlock
	// victim.
	OutcomeDeadlock
	// OutcomeSkipped: a SKIP LOCKED read found the row locked elsewhere.
	OutcomeSkipped
	// OutcomeBlocked is never returned by LockedLoad or Lock; it is what
	// an outside observer (lockprobe) reports when a session is still
	// waiting on the backend's lock manager.
	OutcomeBlocked
	// OutcomeFailed: the failure did not look like lock contention. The
	// wrapped cause accompanies it and must be treated as a hard error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeAcquired:
		return "acquired"
	case OutcomeTimedOut:
		return "timed out"
	case OutcomeRejected:
		return "rejected: lock not available"
	case OutcomeDeadlock:
		return "rejected: deadlock"
	case OutcomeSkipped:
		return "skipped: row locked"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeFailed:
		return "unclassified failure"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Contention reports whether the outcome is an expected result of lock
// contention rather than a success or a hard failure.
func (o Outcome) Contention() bool {
	switch o {
	case OutcomeTimedOut, OutcomeRejected, OutcomeDeadlock, OutcomeSkipped, OutcomeBlocked:
		return true
	}
	return false
}

// Identity names one lockable row: a table, its key column and the key
// value.
type Identity struct {
	Table     string
	KeyColumn string
	Key       any
}

func (id Identity) String() string {
	return fmt.Sprintf("%s[%v]", id.Table, id.Key)
}

// Statement is the resolved SQL skeleton handed in by the query-building
// collaborator: a SELECT without any locking directive. The executor
// appends the locking suffix; hint-based backends additionally need the
// HintSlot marker placed after the table reference.
type Statement struct {
	Query string
	Args  []any
}

// HintSlot marks where a table lock hint may be spliced into a
// Statement. It is a comment, so statements carrying it stay valid SQL
// on backends that never use hints.
const HintSlot = "/*lock*/"

// Row is one raw, unhydrated result row. Entity mapping is the caller's
// concern.
type Row struct {
	Columns []string
	Values  []any
}
