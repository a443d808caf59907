package contact

import (
	"context"
	"sync"
	"time"
)

// WindowStore keeps per-identifier submission timestamps.
// Implementations treat a timestamp equal to windowStart as expired.
type WindowStore interface {
	// Hit drops timestamps at or before windowStart and records now when fewer
	// than limit remain. It reports whether now was recorded.
	Hit(ctx context.Context, key string, now, windowStart time.Time, limit int) (bool, error)
	// Count returns how many timestamps fall after windowStart.
	Count(ctx context.Context, key string, windowStart time.Time) (int, error)
}

// RateLimiter is a sliding-window limiter: at most limit submissions per
// identifier within any trailing window.
type RateLimiter struct {
	store  WindowStore
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(store WindowStore, limit int, window time.Duration) *RateLimiter {
	if store == nil {
		store = NewMemoryWindowStore()
	}
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Check records a submission for id and reports whether it is allowed.
// A failing store admits the request.
func (l *RateLimiter) Check(ctx context.Context, id string) bool {
	now := l.now()
	ok, err := l.store.Hit(ctx, id, now, now.Add(-l.window), l.limit)
	if err != nil {
		LoggerFromContext(ctx).Error("rate limit store failed, admitting request", "err", err)
		return true
	}
	return ok
}

// Remaining returns how many more submissions id may make right now.
func (l *RateLimiter) Remaining(ctx context.Context, id string) int {
	now := l.now()
	n, err := l.store.Count(ctx, id, now.Add(-l.window))
	if err != nil {
		LoggerFromContext(ctx).Warn("rate limit store count failed", "err", err)
		return l.limit
	}
	return max(0, l.limit-n)
}

// MemoryWindowStore is the single-process store. Idle identifiers are swept
// inline at most once per window, from inside Hit.
type MemoryWindowStore struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: map[string][]time.Time{}}
}

func (s *MemoryWindowStore) Hit(_ context.Context, key string, now, windowStart time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if window := now.Sub(windowStart); now.Sub(s.lastSweep) >= window {
		s.sweep(windowStart)
		s.lastSweep = now
	}

	valid := pruneBefore(s.windows[key], windowStart)
	if len(valid) >= limit {
		s.windows[key] = valid
		return false, nil
	}
	s.windows[key] = append(valid, now)
	return true, nil
}

func (s *MemoryWindowStore) Count(_ context.Context, key string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(pruneBefore(s.windows[key], windowStart)), nil
}

// sweep drops identifiers with nothing left inside the window.
func (s *MemoryWindowStore) sweep(windowStart time.Time) {
	for key, ts := range s.windows {
		if len(ts) == 0 || !ts[len(ts)-1].After(windowStart) {
			delete(s.windows, key)
		}
	}
}

// Len returns the number of identifiers currently tracked.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// pruneBefore keeps timestamps strictly after windowStart, preserving order.
func pruneBefore(ts []time.Time, windowStart time.Time) []time.Time {
	out := ts[:0:0]
	for _, t := range ts {
		if t.After(windowStart) {
			out = append(out, t)
		}
	}
	return out
}
