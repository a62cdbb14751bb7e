// Package ratelimit paces outbound requests per source key.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultInterval applies when a caller passes a non-positive interval.
const DefaultInterval = time.Second

// Clock abstracts time so tests can drive the governor deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WaitObserver receives the time a caller spent waiting for a slot.
type WaitObserver interface {
	ObserveRateWait(key string, d time.Duration)
}

// KeyStats is the per-key view returned by Stats.
type KeyStats struct {
	Key         string    `json:"key"`
	Requests    int64     `json:"requests"`
	LastGranted time.Time `json:"lastGranted"`
}

type keyState struct {
	// lock is a one-slot semaphore; blocked senders queue in arrival order.
	lock chan struct{}

	mu    sync.Mutex // guards last and count for readers outside lock
	last  time.Time
	count int64
}

// Governor grants request slots so that two consecutive slots for the same
// key are never closer than the requested interval. Different keys proceed
// independently.
type Governor struct {
	clock    Clock
	observer WaitObserver
	fallback time.Duration

	mu   sync.Mutex
	keys map[string]*keyState
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithObserver reports wait durations, typically to metrics.
func WithObserver(o WaitObserver) Option {
	return func(g *Governor) { g.observer = o }
}

// WithDefaultInterval replaces DefaultInterval for callers passing a
// non-positive interval.
func WithDefaultInterval(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.fallback = d
		}
	}
}

// NewGovernor builds an empty governor.
func NewGovernor(opts ...Option) *Governor {
	g := &Governor{
		clock:    realClock{},
		fallback: DefaultInterval,
		keys:     make(map[string]*keyState),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Governor) state(key string) *keyState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.keys[key]
	if !ok {
		st = &keyState{lock: make(chan struct{}, 1)}
		g.keys[key] = st
	}
	return st
}

// AwaitSlot blocks until interval has elapsed since the last slot granted for
// key, then records the grant. The read and update of the key's timestamp
// happen while holding the key's lock, so concurrent callers for one key are
// serialised. It returns ctx.Err() if ctx ends first; no slot is recorded
// in that case.
func (g *Governor) AwaitSlot(ctx context.Context, key string, interval time.Duration) error {
	if interval <= 0 {
		interval = g.fallback
	}
	st := g.state(key)

	select {
	case st.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-st.lock }()

	st.mu.Lock()
	last := st.last
	st.mu.Unlock()

	var waited time.Duration
	if !last.IsZero() {
		if wait := interval - g.clock.Now().Sub(last); wait > 0 {
			if err := g.clock.Sleep(ctx, wait); err != nil {
				return err
			}
			waited = wait
		}
	}

	st.mu.Lock()
	st.last = g.clock.Now()
	st.count++
	st.mu.Unlock()
	if g.observer != nil {
		g.observer.ObserveRateWait(key, waited)
	}
	return nil
}

// Stats returns request counters for every key seen so far, sorted by key.
func (g *Governor) Stats() []KeyStats {
	g.mu.Lock()
	states := make(map[string]*keyState, len(g.keys))
	for k, v := range g.keys {
		states[k] = v
	}
	g.mu.Unlock()

	out := make([]KeyStats, 0, len(states))
	for key, st := range states {
		st.mu.Lock()
		out = append(out, KeyStats{Key: key, Requests: st.count, LastGranted: st.last})
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Requests returns the number of slots granted for key.
func (g *Governor) Requests(key string) int64 {
	for _, s := range g.Stats() {
		if s.Key == key {
			return s.Requests
		}
	}
	return 0
}
