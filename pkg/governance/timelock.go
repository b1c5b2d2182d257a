package governance

import (
	"sync"
	"time"
)

// ParameterChange is the single in-flight scheduled parameter change.
type ParameterChange struct {
	Parameters  Parameters `json:"parameters"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ETA         time.Time  `json:"eta"`
}

// ParameterTimelock is the administrative fast path for tuning governance
// parameters: a single-slot scheduled change bounded only by a mandatory
// delay. It has no quorum; role gating is the service's concern.
type ParameterTimelock struct {
	mu      sync.Mutex
	pending *ParameterChange
	delay   time.Duration
	now     func() time.Time
}

// NewParameterTimelock creates a timelock with the given mandatory delay.
func NewParameterTimelock(delay time.Duration, now func() time.Time) *ParameterTimelock {
	if now == nil {
		now = time.Now
	}
	return &ParameterTimelock{
		delay: delay,
		now:   now,
	}
}

// Schedule stores a proposed parameter set with eta = now + delay. It fails
// with ErrChangePending while another change occupies the slot.
func (t *ParameterTimelock) Schedule(params Parameters) (*ParameterChange, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		return nil, ErrChangePending
	}

	now := t.now()
	t.pending = &ParameterChange{
		Parameters:  params,
		ScheduledAt: now,
		ETA:         now.Add(t.delay),
	}
	change := *t.pending
	return &change, nil
}

// Execute returns the scheduled parameter set once its delay has elapsed,
// clearing the slot as a side effect.
func (t *ParameterTimelock) Execute() (*Parameters, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return nil, ErrNoChangePending
	}
	if t.now().Before(t.pending.ETA) {
		return nil, ErrChangeNotReady
	}

	params := t.pending.Parameters
	t.pending = nil
	return &params, nil
}

// Cancel clears the slot unconditionally.
func (t *ParameterTimelock) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return ErrNoChangePending
	}
	t.pending = nil
	return nil
}

// Pending returns a copy of the in-flight change, or nil.
func (t *ParameterTimelock) Pending() *ParameterChange {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return nil
	}
	change := *t.pending
	return &change
}
