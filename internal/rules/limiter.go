package rules

import (
	"context"
	"sync"
	"time"
)

// Limit is a fixed-window quota: Max attempts per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Decision is the outcome of one attempt against a Limit.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-wide fixed-window counter keyed by actor.
// The zero value is not usable; call NewMemoryLimiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Allow counts one attempt for key. The first attempt opens a window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit Limit) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(limit.Window)}
		l.windows[key] = w
		return Decision{Allowed: limit.Max >= 1, Remaining: max(limit.Max-1, 0), ResetAt: w.resetAt}, nil
	}

	if w.count >= limit.Max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: limit.Max - w.count, ResetAt: w.resetAt}, nil
}

// Reset clears the window for key.
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// ResetAll clears every window.
func (l *MemoryLimiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}

// Sweep drops expired windows and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}
