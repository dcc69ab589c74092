// Package classify normalizes backend-specific failures into a stable
// lock-conflict taxonomy. Drivers report conflicts through dozens of
// distinct signals; everything here reduces to a structured RawFailure
// record classified by per-backend data tables. New backends are added
// by extending the tables, not the logic.
package classify

import (
	"context"
	"errors"
)

// Kind is the normalized meaning of a raw backend failure.
type Kind int

const (
	// KindUnclassified is the zero value: the failure did not look like
	// lock contention and must be treated as a hard error. Misreading an
	// unrelated fault as benign contention would hide real bugs.
	KindUnclassified Kind = iota
	// KindLockNotAvailable: the lock could not be granted immediately
	// and the statement refused to wait.
	KindLockNotAvailable
	// KindDeadlock: the backend detected a deadlock and chose this
	// session as the victim.
	KindDeadlock
	// KindTimeout: a statement, lock-wait or client-side deadline
	// elapsed.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindLockNotAvailable:
		return "lock not available"
	case KindDeadlock:
		return "deadlock"
	case KindTimeout:
		return "timeout"
	default:
		return "unclassified"
	}
}

// RawFailure is the flat record the classifier consumes: the backend id
// plus whichever discriminating fields the driver exposed. Message text
// never participates in classification.
type RawFailure struct {
	Backend  string
	SQLState string // five-character SQLSTATE, when the driver reports one
	Code     int64  // vendor error number, when the driver reports one
	Message  string
	Cause    error
}

// SQLSTATE-keyed classification, for drivers that speak SQLSTATE.
var sqlStates = map[string]map[string]Kind{
	"postgres": {
		"55P03": KindLockNotAvailable, // lock_not_available (NOWAIT)
		"40P01": KindDeadlock,         // deadlock_detected
		"57014": KindTimeout,          // query_canceled (statement_timeout)
	},
}

// Vendor-code-keyed classification, for drivers without usable SQLSTATEs.
var vendorCodes = map[string]map[int64]Kind{
	"mysql": {
		1205: KindTimeout,          // ER_LOCK_WAIT_TIMEOUT
		3572: KindLockNotAvailable, // ER_LOCK_NOWAIT
		1213: KindDeadlock,         // ER_LOCK_DEADLOCK
	},
	"oracle": {
		54:    KindLockNotAvailable, // ORA-00054 resource busy, NOWAIT
		30006: KindTimeout,          // ORA-30006 resource busy, WAIT expired
		60:    KindDeadlock,         // ORA-00060 deadlock detected
	},
	"sqlserver": {
		1222: KindTimeout,  // lock request time out period exceeded
		1205: KindDeadlock, // transaction was deadlocked
	},
	"sqlite": {
		5: KindLockNotAvailable, // SQLITE_BUSY
		6: KindLockNotAvailable, // SQLITE_LOCKED
	},
}

// Classify maps a raw failure to its normalized kind. It is a pure
// function of the record's structured fields: backend id, SQLSTATE,
// vendor code, and the cancellation sentinels carried on Cause.
func Classify(f RawFailure) Kind {
	// A cancelled client-side deadline surfaces as a context error from
	// the driver, whatever else it wrapped.
	if errors.Is(f.Cause, context.DeadlineExceeded) || errors.Is(f.Cause, context.Canceled) {
		return KindTimeout
	}
	if f.SQLState != "" {
		if k, ok := sqlStates[f.Backend][f.SQLState]; ok {
			return k
		}
	}
	if f.Code != 0 {
		if k, ok := vendorCodes[f.Backend][f.Code]; ok {
			return k
		}
	}
	return KindUnclassified
}
