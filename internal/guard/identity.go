package guard

import (
	"sync"
	"time"
)

// IdentityState holds the verified address and the consecutive mismatch
// counter behind one lock, so a re-verification can replace the address and
// clear the counter without a reader seeing one change without the other.
type IdentityState struct {
	mu         sync.Mutex
	address    string
	verifiedAt time.Time
	mismatches int
}

// IdentitySnapshot is a consistent copy of IdentityState
type IdentitySnapshot struct {
	Address    string
	VerifiedAt time.Time
	Mismatches int
}

// Confirm records an address confirmed by the authority and clears the
// mismatch counter.
func (s *IdentityState) Confirm(address string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
	s.verifiedAt = at
	s.mismatches = 0
}

// Address returns the verified address, or "" before the first confirmation
func (s *IdentityState) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// RecordMismatch increments the counter and returns the new value
func (s *IdentityState) RecordMismatch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mismatches++
	return s.mismatches
}

// ResetMismatches clears the counter
func (s *IdentityState) ResetMismatches() {
	s.mu.Lock()
	s.mismatches = 0
	s.mu.Unlock()
}

// Mismatches returns the current counter value
func (s *IdentityState) Mismatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mismatches
}

func (s *IdentityState) Snapshot() IdentitySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return IdentitySnapshot{
		Address:    s.address,
		VerifiedAt: s.verifiedAt,
		Mismatches: s.mismatches,
	}
}
