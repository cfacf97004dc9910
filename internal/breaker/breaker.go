// Package breaker tracks recent task outcomes per agent type and blocks
// admission for types whose failure rate is too high.
package breaker

import (
	"sync"
	"time"
)

// DefaultWindow is the number of recent outcomes considered per agent type.
const DefaultWindow = 10

// DefaultThreshold is the failure rate above which a type stops admitting.
const DefaultThreshold = 0.5

// DefaultMaxAge bounds how long an outcome stays relevant. Aged-out
// outcomes no longer count toward the rate, so a blocked type recovers
// passively even when no new outcomes arrive.
const DefaultMaxAge = time.Hour

// outcome is one recorded task result.
type outcome struct {
	ok bool
	at time.Time
}

// Breaker is a fixed-size ring of recent outcomes for one agent type.
type Breaker struct {
	ring   []outcome
	next   int
	filled int
}

// record appends an outcome, overwriting the oldest once the ring is full.
func (b *Breaker) record(ok bool, at time.Time) {
	b.ring[b.next] = outcome{ok: ok, at: at}
	b.next = (b.next + 1) % len(b.ring)
	if b.filled < len(b.ring) {
		b.filled++
	}
}

// rate returns the failure rate over unexpired outcomes and how many
// outcomes were counted.
func (b *Breaker) rate(now time.Time, maxAge time.Duration) (float64, int) {
	failures, counted := 0, 0
	for i := 0; i < b.filled; i++ {
		o := b.ring[i]
		if maxAge > 0 && now.Sub(o.at) > maxAge {
			continue
		}
		counted++
		if !o.ok {
			failures++
		}
	}
	if counted == 0 {
		return 0, 0
	}
	return float64(failures) / float64(counted), counted
}

// Set manages one breaker per agent type.
type Set struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	window    int
	threshold float64
	maxAge    time.Duration
	// now is injectable for deterministic tests.
	now func() time.Time
	// onOpen is called when a Record pushes a closed type over threshold.
	onOpen func(agentType string, rate float64)
}

// NewSet creates a breaker set. Non-positive window or threshold fall back
// to the defaults.
func NewSet(window int, threshold float64, maxAge time.Duration) *Set {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Set{
		breakers:  make(map[string]*Breaker),
		window:    window,
		threshold: threshold,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (s *Set) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetOpenHook installs an observer invoked when a type's breaker opens.
func (s *Set) SetOpenHook(fn func(agentType string, rate float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = fn
}

// Record stores a task outcome for the given agent type.
func (s *Set) Record(agentType string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.breakers[agentType]
	if b == nil {
		b = &Breaker{ring: make([]outcome, s.window)}
		s.breakers[agentType] = b
	}

	wasOpen := s.openLocked(b)
	b.record(ok, s.now())
	if !wasOpen && s.openLocked(b) && s.onOpen != nil {
		rate, _ := b.rate(s.now(), s.maxAge)
		s.onOpen(agentType, rate)
	}
}

// Allow reports whether the given agent type may receive new tasks.
// A type with no breaker, or with fewer than a full window of unexpired
// outcomes, always admits.
func (s *Set) Allow(agentType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.breakers[agentType]
	if b == nil {
		return true
	}
	return !s.openLocked(b)
}

// openLocked reports whether a breaker is over threshold. Caller holds s.mu.
func (s *Set) openLocked(b *Breaker) bool {
	rate, counted := b.rate(s.now(), s.maxAge)
	if counted < s.window {
		return false
	}
	return rate > s.threshold
}

// Rate returns the current failure rate for an agent type and the number of
// outcomes it is based on.
func (s *Set) Rate(agentType string) (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.breakers[agentType]
	if b == nil {
		return 0, 0
	}
	return b.rate(s.now(), s.maxAge)
}

// Reset clears recorded outcomes for an agent type. Operator escape hatch
// for a type stuck open.
func (s *Set) Reset(agentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, agentType)
}
