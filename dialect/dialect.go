// Package dialect describes the row-locking features of each supported
// database backend as static configuration data. Adding a backend is a
// table edit, not new logic.
package dialect

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownBackend is returned when a backend id has no registry entry.
// Hitting it means the process is misconfigured; it is not retryable.
var ErrUnknownBackend = errors.New("unknown backend")

// Capabilities records which locking features a backend supports natively.
// Anything unsupported is degraded by the clause translator, never rejected.
type Capabilities struct {
	NoWait           bool // FOR UPDATE NOWAIT (or hint equivalent)
	WaitTimeout      bool // per-statement wait token, e.g. Oracle's WAIT n
	AliasLocking     bool // locking scoped to one named alias, e.g. FOR UPDATE OF a
	OuterJoinLocking bool // locking reads over outer-joined results
	SkipLocked       bool // SKIP LOCKED wait policy
}

// ParamStyle selects the bind-parameter syntax a backend expects.
type ParamStyle int

const (
	ParamQuestion ParamStyle = iota // ?
	ParamDollar                     // $1, $2, ...
	ParamColon                      // :1, :2, ...
	ParamAt                         // @p1, @p2, ...
)

// Dialect is the immutable per-backend record consulted once per
// translation: the capability flags plus the SQL tokens that realize them.
// An empty token means the construct does not exist on that backend.
type Dialect struct {
	Name string
	Caps Capabilities

	ForUpdate  string // exclusive locking read suffix
	ForShare   string // shared locking read suffix
	NoWait     string // no-wait token appended to the locking suffix
	Wait       string // wait-timeout token, fmt verb taking whole seconds
	SkipLocked string // skip-locked token

	// Hint-based backends (sqlserver) lock via table hints instead of a
	// statement suffix. LockHint is the hint body; HintNoWait and
	// HintSkipLocked extend it.
	LockHint       string
	HintNoWait     string
	HintSkipLocked string

	Params ParamStyle
}

// Placeholder returns the bind parameter for 1-based position n.
func (d Dialect) Placeholder(n int) string {
	switch d.Params {
	case ParamDollar:
		return fmt.Sprintf("$%d", n)
	case ParamColon:
		return fmt.Sprintf(":%d", n)
	case ParamAt:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

// HintBased reports whether locking rides on table hints rather than a
// statement suffix.
func (d Dialect) HintBased() bool {
	return d.LockHint != ""
}

var registry = map[string]Dialect{
	"postgres": {
		Name: "postgres",
		Caps: Capabilities{
			NoWait:       true,
			AliasLocking: true,
			SkipLocked:   true,
		},
		ForUpdate:  "FOR UPDATE",
		ForShare:   "FOR SHARE",
		NoWait:     "NOWAIT",
		SkipLocked: "SKIP LOCKED",
		Params:     ParamDollar,
	},
	"mysql": {
		Name: "mysql",
		Caps: Capabilities{
			NoWait:       true,
			AliasLocking: true,
			SkipLocked:   true,
		},
		ForUpdate:  "FOR UPDATE",
		ForShare:   "FOR SHARE",
		NoWait:     "NOWAIT",
		SkipLocked: "SKIP LOCKED",
		Params:     ParamQuestion,
	},
	"oracle": {
		Name: "oracle",
		Caps: Capabilities{
			NoWait:       true,
			WaitTimeout:  true,
			AliasLocking: true,
			SkipLocked:   true,
		},
		ForUpdate:  "FOR UPDATE",
		ForShare:   "FOR UPDATE", // no separate shared locking read
		NoWait:     "NOWAIT",
		Wait:       "WAIT %d",
		SkipLocked: "SKIP LOCKED",
		Params:     ParamColon,
	},
	"sqlserver": {
		Name: "sqlserver",
		Caps: Capabilities{
			NoWait:     true,
			SkipLocked: true,
		},
		LockHint:       "UPDLOCK, ROWLOCK",
		HintNoWait:     "NOWAIT",
		HintSkipLocked: "READPAST",
		Params:         ParamAt,
	},
	"sqlite": {
		Name: "sqlite",
		// No locking read at all: the whole database locks on write and
		// there is no FOR UPDATE. Every locking request falls back to a
		// plain read.
		Caps:   Capabilities{},
		Params: ParamQuestion,
	},
}

// For looks up the dialect record for a backend id.
func For(name string) (Dialect, error) {
	d, ok := registry[name]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return d, nil
}

// Names returns the registered backend ids, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
