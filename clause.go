package dblock

import (
	"fmt"
	"time"

	"github.com/marcus/dblock/dialect"
)

// LockClause is the resolved locking directive handed to the executor.
// Built fresh per request; it depends on live capabilities and is never
// cached.
type LockClause struct {
	Mode  Mode
	Wait  WaitPolicy
	Alias string // retained only when alias locking is honored

	// Suffix is appended after the statement skeleton. Hint is spliced
	// into the statement's HintSlot instead on hint-based backends.
	Suffix string
	Hint   string

	// WaitFor is the requested wait; EffectiveWait is what the backend
	// will actually apply (Oracle coarsens to whole seconds).
	WaitFor       time.Duration
	EffectiveWait time.Duration

	// Degraded is set when the requested timeout policy could not be
	// honored natively. Fallback is set when locking itself could not be
	// honored and the read is plain. ClientDeadline tells the executor
	// to enforce WaitFor itself.
	Degraded       bool
	Fallback       bool
	ClientDeadline bool
}

// Locking reports whether the clause actually locks anything.
func (c LockClause) Locking() bool {
	return c.Mode != ModeNone && !c.Fallback
}

// Translate resolves a lock request against a backend's capabilities.
// Unsupported features degrade to something the backend can honor and
// never produce an error. Only a malformed request fails.
func Translate(req LockRequest, d dialect.Dialect) (LockClause, error) {
	if err := req.Validate(); err != nil {
		return LockClause{}, err
	}

	c := LockClause{
		Mode:    req.Mode,
		Wait:    req.Wait,
		WaitFor: req.WaitFor,
	}
	if req.Mode == ModeNone {
		return c, nil
	}

	caps := d.Caps
	if req.Scope == ScopeAlias {
		if caps.AliasLocking {
			c.Alias = req.Alias
		}
		// Alias-specific intent is a hint: without support the request
		// widens to the whole result.
	}

	switch req.Wait {
	case WaitNone:
		if !caps.NoWait {
			// Never emulated client-side: an instant-fail pre-check
			// without backend support is inherently racy.
			c.Wait = WaitBlock
			c.Degraded = true
		}
	case WaitWithTimeout:
		if caps.WaitTimeout {
			// Wait tokens take whole seconds; round up and record the
			// coarsened value.
			c.EffectiveWait = roundUpSeconds(req.WaitFor)
		} else {
			c.Wait = WaitBlock
			c.Degraded = true
			c.ClientDeadline = true
			c.EffectiveWait = req.WaitFor
		}
	case WaitSkipLocked:
		if !caps.SkipLocked {
			c.Wait = WaitBlock
			c.Degraded = true
		}
	}

	if d.ForUpdate == "" && !d.HintBased() {
		// No locking construct on this backend at all.
		c.Fallback = true
		c.Alias = ""
		return c, nil
	}

	if d.HintBased() {
		c.Hint = d.LockHint
		switch c.Wait {
		case WaitNone:
			c.Hint += ", " + d.HintNoWait
		case WaitSkipLocked:
			c.Hint += ", " + d.HintSkipLocked
		}
		return c, nil
	}

	base := d.ForUpdate
	if !req.Mode.Exclusive() && d.ForShare != "" {
		base = d.ForShare
	}
	if c.Alias != "" {
		base += " OF " + c.Alias
	}
	switch c.Wait {
	case WaitNone:
		base += " " + d.NoWait
	case WaitWithTimeout:
		if !c.ClientDeadline {
			base += " " + fmt.Sprintf(d.Wait, int(c.EffectiveWait/time.Second))
		}
	case WaitSkipLocked:
		base += " " + d.SkipLocked
	}
	c.Suffix = base
	return c, nil
}

func roundUpSeconds(d time.Duration) time.Duration {
	secs := (d + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
