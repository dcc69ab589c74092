package dblock

// LockScope tracks the identities locked within one transaction.
// Entries are added on acquisition and cleared when the owning
// transaction ends; individual locks are never released early because
// release belongs to the backend's transaction boundary.
//
// A transaction is single-owner by construction, so the scope needs no
// internal locking.
type LockScope struct {
	held map[string]Mode
}

func newLockScope() *LockScope {
	return &LockScope{held: make(map[string]Mode)}
}

// Add records an acquired lock, keeping the strongest mode seen for the
// identity.
func (s *LockScope) Add(id Identity, mode Mode) {
	key := id.String()
	s.held[key] = s.held[key].Max(mode)
}

// Contains reports whether the identity is locked in this scope.
func (s *LockScope) Contains(id Identity) bool {
	_, ok := s.held[id.String()]
	return ok
}

// HeldMode returns the strongest mode held for the identity, or
// ModeNone.
func (s *LockScope) HeldMode(id Identity) Mode {
	return s.held[id.String()]
}

// Len returns the number of locked identities.
func (s *LockScope) Len() int {
	return len(s.held)
}

func (s *LockScope) clear() {
	s.held = make(map[string]Mode)
}
