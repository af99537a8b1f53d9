// Package ratelimit provides a bounded, TTL-aware fixed-window rate
// limiter. One limiter instance owns its whole table; nothing else
// mutates it, and expired windows are evicted in place rather than by a
// background timer.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter allows up to `limit` events per key per window.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	interval time.Duration
	maxKeys  int
	now      func() time.Time
}

// New creates a limiter allowing `limit` events per `interval` for each
// key, tracking at most maxKeys distinct keys.
func New(limit int, interval time.Duration, maxKeys int) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		interval: interval,
		maxKeys:  maxKeys,
		now:      time.Now,
	}
}

// Allow reports whether another event for key fits in the current window,
// counting it if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		if !ok && len(l.windows) >= l.maxKeys {
			l.evictExpired(now)
			if len(l.windows) >= l.maxKeys {
				// table full of live windows: refuse rather than grow unbounded
				return false
			}
		}
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.interval)}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) evictExpired(now time.Time) {
	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
