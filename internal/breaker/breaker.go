// Package breaker implements the process-wide circuit breaker that gates
// agent dispatch. State is durable through an injected state.DocStore so
// repeated CLI invocations do not bypass an open breaker.
package breaker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mpetrun5/drover/internal/state"
)

// docName is the DocStore document holding breaker state.
const docName = "circuit"

// State is the breaker position.
type State string

const (
	// Closed allows all dispatches.
	Closed State = "closed"
	// Open rejects dispatches until the cooldown elapses.
	Open State = "open"
	// HalfOpen allows exactly one trial dispatch after cooldown.
	HalfOpen State = "half-open"
)

// Snapshot is the durable breaker state document.
type Snapshot struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at"`
	State               State     `json:"state"`
}

// Breaker is the circuit breaker. All reads and writes go through one mutex:
// the breaker is the only mutable state shared across concurrent agent units.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	store     state.DocStore

	snap Snapshot
	mu   sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Breaker backed by the given store, loading any persisted
// state. A missing document starts the breaker closed.
func New(store state.DocStore, threshold int, cooldown time.Duration) (*Breaker, error) {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		store:     store,
		snap:      Snapshot{State: Closed},
		now:       time.Now,
	}

	err := store.Load(docName, &b.snap)
	if err != nil && err != state.ErrNotFound {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}
	if b.snap.State == "" {
		b.snap.State = Closed
	}
	return b, nil
}

// Allow reports whether a dispatch may proceed. When the breaker is open and
// the cooldown has elapsed, it transitions to half-open and permits a single
// trial.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.snap.State {
	case Closed:
		return true
	case HalfOpen:
		// The single trial is already in flight; further dispatches wait
		// for its outcome.
		return false
	case Open:
		if b.now().Sub(b.snap.LastFailureAt) >= b.cooldown {
			b.snap.State = HalfOpen
			b.persistLocked()
			log.Printf("[breaker] cooldown elapsed, half-open trial permitted")
			return true
		}
		return false
	}
	return false
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snap.State != Closed || b.snap.ConsecutiveFailures != 0 {
		log.Printf("[breaker] success recorded, closing (was %s)", b.snap.State)
	}
	b.snap.ConsecutiveFailures = 0
	b.snap.State = Closed
	b.persistLocked()
}

// RecordFailure increments the consecutive failure count and opens the
// breaker once the threshold is reached. A failed half-open trial re-opens
// immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snap.ConsecutiveFailures++
	b.snap.LastFailureAt = b.now()

	if b.snap.State == HalfOpen || b.snap.ConsecutiveFailures >= b.threshold {
		if b.snap.State != Open {
			log.Printf("[breaker] OPEN after %d consecutive failures (threshold %d)",
				b.snap.ConsecutiveFailures, b.threshold)
		}
		b.snap.State = Open
	}
	b.persistLocked()
}

// Reset clears all breaker state. Operator action.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snap = Snapshot{State: Closed}
	b.persistLocked()
	log.Printf("[breaker] reset by operator")
}

// Current returns a copy of the breaker state for display.
func (b *Breaker) Current() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Cooldown returns the configured cooldown window.
func (b *Breaker) Cooldown() time.Duration {
	return b.cooldown
}

// persistLocked writes the snapshot to the store. Failures are logged, not
// returned: the in-memory state is authoritative for this process and a
// persistence miss must not wedge dispatch.
func (b *Breaker) persistLocked() {
	if err := b.store.Save(docName, &b.snap); err != nil {
		log.Printf("[breaker] persist failed: %v", err)
	}
}
