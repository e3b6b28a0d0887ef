// Package circuit tracks per-site reliability so a fleet sync does not
// spend its time budget hammering a dead site. Skipping is temporary:
// backoff is bounded, and every site gets another chance once its horizon
// passes. State lives for the process lifetime.
package circuit

import (
	"sync"
	"time"

	"wpfleet/internal/domain"
)

// DefaultFailureThreshold is the consecutive-failure count that starts
// backing a site off.
const DefaultFailureThreshold = 3

// DefaultBackoffSteps is the skip ladder keyed by failures past the
// threshold; the last entry is the cap.
var DefaultBackoffSteps = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
}

type state struct {
	consecutiveFailures int
	lastSuccessAt       time.Time
	skipUntil           time.Time
}

// Breaker holds per-site circuit state. Safe for concurrent use; workers
// only ever touch the state of the site they own for that call.
type Breaker struct {
	mu        sync.Mutex
	states    map[string]*state
	threshold int
	steps     []time.Duration

	now func() time.Time // injectable for tests
}

// New builds a breaker. Non-positive threshold or an empty ladder fall back
// to the defaults.
func New(threshold int, steps []time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if len(steps) == 0 {
		steps = DefaultBackoffSteps
	}
	return &Breaker{
		states:    make(map[string]*state),
		threshold: threshold,
		steps:     steps,
		now:       time.Now,
	}
}

// ShouldAttempt reports whether a sync attempt against the site is due.
// It returns false iff now is before the site's skip horizon.
func (b *Breaker) ShouldAttempt(siteID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[siteID]
	if !ok {
		return true
	}
	return !b.now().Before(s.skipUntil)
}

// RecordOutcome folds one attempt's outcome into the site's state. Success
// clears everything; failure increments the streak and recomputes the skip
// horizon from the backoff ladder.
func (b *Breaker) RecordOutcome(siteID string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[siteID]
	if !ok {
		s = &state{}
		b.states[siteID] = s
	}
	if success {
		s.consecutiveFailures = 0
		s.skipUntil = time.Time{}
		s.lastSuccessAt = b.now()
		return
	}
	s.consecutiveFailures++
	if s.consecutiveFailures >= b.threshold {
		s.skipUntil = b.now().Add(b.backoff(s.consecutiveFailures))
	}
}

// Reset implements the operator's "retry now": the streak and skip horizon
// are cleared so the next sync attempts the site again immediately.
func (b *Breaker) Reset(siteID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.states[siteID]; ok {
		s.consecutiveFailures = 0
		s.skipUntil = time.Time{}
	}
}

// Snapshot returns a copy of the site's state for health reporting.
func (b *Breaker) Snapshot(siteID string) domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := domain.CircuitState{SiteID: siteID}
	s, ok := b.states[siteID]
	if !ok {
		return out
	}
	out.ConsecutiveFailures = s.consecutiveFailures
	if !s.lastSuccessAt.IsZero() {
		t := s.lastSuccessAt
		out.LastSuccessAt = &t
	}
	if !s.skipUntil.IsZero() {
		t := s.skipUntil
		out.SkipUntil = &t
	}
	return out
}

func (b *Breaker) backoff(failures int) time.Duration {
	idx := failures - b.threshold
	if idx >= len(b.steps) {
		idx = len(b.steps) - 1
	}
	return b.steps[idx]
}
