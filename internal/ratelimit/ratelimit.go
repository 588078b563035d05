// Package ratelimit caps how often check/track events may be emitted per flag
// key. It is a fixed-window counter: the window opens on the first admission
// for a key and lasts a fixed duration, it is not aligned to wall-clock minute
// ticks.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultLimit is the per-key admission cap applied when the host does not
// configure one.
const DefaultLimit = 60

type window struct {
	start time.Time
	count int
}

// Limiter admits up to limit calls per key per window. The boundary is exact:
// the Nth call in a window returns true, the (N+1)th returns false.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window

	now func() time.Time // overridable in tests
}

// New creates a limiter. A non-positive limit falls back to DefaultLimit and a
// non-positive window to one minute.
func New(limit int, windowLen time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowLen <= 0 {
		windowLen = time.Minute
	}
	return &Limiter{
		limit:   limit,
		window:  windowLen,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow reports whether another event for key may be emitted, counting the
// call against the key's current window when admitted.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}
