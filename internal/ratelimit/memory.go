package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
	expiry time.Time
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*memoryEntry
	lastSweep time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow counts one request for key in the window containing now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || window <= 0 {
		return Result{Allowed: true}, nil
	}
	start, reset := windowBounds(now, window)
	windowID := start.UnixNano()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now, window)

	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: windowID}
		l.counters[key] = entry
	}
	if entry.window != windowID {
		entry.window = windowID
		entry.count = 0
	}
	entry.expiry = reset
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// sweepLocked drops counters whose window has closed, at most once per window.
func (l *MemoryLimiter) sweepLocked(now time.Time, window time.Duration) {
	if !l.lastSweep.IsZero() && now.Sub(l.lastSweep) < window {
		return
	}
	l.lastSweep = now
	for key, entry := range l.counters {
		if !now.Before(entry.expiry) {
			delete(l.counters, key)
		}
	}
}
