package governance

import (
	"sync"
	"time"
)

// GuardianBrake holds the admin-managed guardian set and the emergency
// cancellation rules layered on top of the proposal lifecycle. Guardians
// are disjoint from normal voting weight; reaching the required number of
// distinct cancel votes inside the emergency window cancels a proposal
// regardless of its tallies.
//
// Changing the set or the quorum does not retroactively affect votes that
// were already counted.
type GuardianBrake struct {
	mu        sync.RWMutex
	guardians map[string]struct{}
	required  int
	window    time.Duration
}

// NewGuardianBrake creates a brake with the given guardian set, cancel
// quorum and emergency window measured from proposal creation.
func NewGuardianBrake(guardians []string, required int, window time.Duration) *GuardianBrake {
	b := &GuardianBrake{
		guardians: make(map[string]struct{}, len(guardians)),
		required:  required,
		window:    window,
	}
	for _, g := range guardians {
		b.guardians[g] = struct{}{}
	}
	return b
}

// IsGuardian reports whether the address is in the guardian set.
func (b *GuardianBrake) IsGuardian(address string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.guardians[address]
	return ok
}

// AddGuardian adds an address to the guardian set.
func (b *GuardianBrake) AddGuardian(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.guardians[address] = struct{}{}
}

// RemoveGuardian removes an address from the guardian set.
func (b *GuardianBrake) RemoveGuardian(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.guardians, address)
}

// Guardians returns the current guardian set.
func (b *GuardianBrake) Guardians() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.guardians))
	for g := range b.guardians {
		out = append(out, g)
	}
	return out
}

// Required returns the number of distinct cancel votes needed.
func (b *GuardianBrake) Required() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.required
}

// SetRequired updates the cancel quorum.
func (b *GuardianBrake) SetRequired(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.required = n
}

// WindowOpen reports whether the emergency window for a proposal created at
// createdAt is still open at now.
func (b *GuardianBrake) WindowOpen(createdAt, now time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return now.Before(createdAt.Add(b.window))
}
