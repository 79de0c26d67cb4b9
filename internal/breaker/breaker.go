// Package breaker implements the three-state circuit breaker that halts all
// automation after repeated reverts. Transitions form a closed cycle:
// CLOSED -> OPEN (threshold breach) -> HALF_OPEN (cooldown elapsed) ->
// CLOSED (trial success) | OPEN (trial failure).
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the breaker's position in the cycle.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	// DefaultMaxRevertsPerHour is the revert count that trips the breaker.
	DefaultMaxRevertsPerHour = 2
	// DefaultCooldown is how long the breaker stays open before permitting
	// a half-open trial.
	DefaultCooldown = 30 * time.Minute
	// trialGuard rejects repeat half-open requests while a trial outcome is
	// still pending.
	trialGuard = 5 * time.Minute

	revertWindow = time.Hour
)

// Snapshot is the externally persisted breaker state.
type Snapshot struct {
	State    State       `json:"state"`
	OpenedAt time.Time   `json:"opened_at,omitempty"`
	Reverts  []time.Time `json:"reverts,omitempty"`
}

// Store round-trips breaker state across process restarts.
type Store interface {
	LoadState() (*Snapshot, error)
	SaveState(*Snapshot) error
}

// Breaker is process-wide state; construct once and inject.
type Breaker struct {
	mu sync.Mutex

	maxReverts int
	cooldown   time.Duration
	now        func() time.Time
	store      Store

	state       State
	openedAt    time.Time
	reverts     []time.Time
	lastTrialAt time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithMaxReverts overrides the hourly revert threshold.
func WithMaxReverts(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxReverts = n
		}
	}
}

// WithCooldown overrides the open-state cooldown.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStore attaches a persistence backend. State is loaded immediately and
// saved after every mutation; stale reverts are re-pruned on load.
func WithStore(s Store) Option {
	return func(b *Breaker) { b.store = s }
}

// New creates a breaker in the CLOSED state, then restores persisted state
// when a store is attached.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		maxReverts: DefaultMaxRevertsPerHour,
		cooldown:   DefaultCooldown,
		now:        time.Now,
		state:      StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store != nil {
		if snap, err := b.store.LoadState(); err == nil && snap != nil {
			b.state = snap.State
			b.openedAt = snap.OpenedAt
			b.reverts = snap.Reverts
			b.pruneLocked()
			if b.state == "" {
				b.state = StateClosed
			}
		}
	}
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordRevert notes that an applied fix had to be reverted. Crossing the
// hourly threshold trips the breaker.
func (b *Breaker) RecordRevert() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reverts = append(b.reverts, b.now())
	b.pruneLocked()

	switch b.state {
	case StateClosed:
		if len(b.reverts) >= b.maxReverts {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		// A revert during a trial is a trial failure.
		b.state = StateOpen
		b.openedAt = b.now()
	case StateOpen:
		// Already open; the revert only extends the evidence window.
	}

	b.persistLocked()
}

// ShouldAllowFix reports whether automation may proceed, with a reason.
// While open it transitions to half-open once the cooldown elapses and then
// permits exactly one trial; repeat requests inside the trial guard are
// rejected until the trial's outcome is recorded.
func (b *Breaker) ShouldAllowFix() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, "circuit closed"

	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			remaining := (b.cooldown - elapsed).Round(time.Second)
			return false, fmt.Sprintf("circuit open: cooling down for another %s", remaining)
		}
		b.state = StateHalfOpen
		b.lastTrialAt = b.now()
		b.persistLocked()
		return true, "circuit half-open: permitting one trial fix"

	case StateHalfOpen:
		if b.now().Sub(b.lastTrialAt) < trialGuard {
			return false, "circuit half-open: trial already in flight"
		}
		b.lastTrialAt = b.now()
		b.persistLocked()
		return true, "circuit half-open: permitting one trial fix"
	}

	return false, fmt.Sprintf("circuit in unknown state %q", b.state)
}

// RecordSuccess reports a successful trial. In half-open it closes the
// circuit and clears the revert history.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.openedAt = time.Time{}
		b.reverts = nil
		b.lastTrialAt = time.Time{}
	case StateClosed, StateOpen:
		// Successes outside a trial carry no transition.
	}

	b.persistLocked()
}

// RecordFailure reports a failed trial. In half-open it reopens the circuit
// and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.lastTrialAt = time.Time{}
	case StateClosed, StateOpen:
	}

	b.persistLocked()
}

// Reset forces the breaker back to CLOSED, for test isolation and the
// operator CLI.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.openedAt = time.Time{}
	b.reverts = nil
	b.lastTrialAt = time.Time{}
	b.persistLocked()
}

// Snapshot returns a copy of the persistable state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	reverts := make([]time.Time, len(b.reverts))
	copy(reverts, b.reverts)
	return Snapshot{State: b.state, OpenedAt: b.openedAt, Reverts: reverts}
}

func (b *Breaker) pruneLocked() {
	cutoff := b.now().Add(-revertWindow)
	kept := b.reverts[:0]
	for _, ts := range b.reverts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.reverts = kept
}

func (b *Breaker) persistLocked() {
	if b.store == nil {
		return
	}
	reverts := make([]time.Time, len(b.reverts))
	copy(reverts, b.reverts)
	// Persistence failures must not block gating decisions.
	_ = b.store.SaveState(&Snapshot{State: b.state, OpenedAt: b.openedAt, Reverts: reverts})
}
