// Package ratelimit implements a fixed-window request counter keyed by an
// arbitrary string (IP, identity, or composite). Quantities here are
// abuse-oriented and low frequency, so a fixed window is preferred over a
// token bucket for predictability.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// record tracks observed requests for one key within the current window.
// Check-and-increment happens under the record's own mutex so concurrent
// requests for the same key can never exceed the ceiling.
type record struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// Limiter enforces a fixed-window ceiling per key. A new window starts
// exactly one window length after the previous window's recorded start.
// A missing record is treated as zero count; Allow never errors.
type Limiter struct {
	records sync.Map // key string → *record

	confMu  sync.RWMutex
	ceiling int
	window  time.Duration

	now    func() time.Time
	cancel context.CancelFunc
}

// New creates a Limiter and starts its background sweep of expired records.
// Call Stop to terminate the sweep goroutine.
func New(ceiling int, window, sweepInterval time.Duration) *Limiter {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Limiter{
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
		cancel:  cancel,
	}
	go l.sweep(ctx, sweepInterval)
	return l
}

// Allow reports whether a request for key is within the ceiling for the
// current window, incrementing the counter when it is. A request arriving
// at or after windowStart+window begins a fresh window.
func (l *Limiter) Allow(key string) bool {
	l.confMu.RLock()
	ceiling, window := l.ceiling, l.window
	l.confMu.RUnlock()

	now := l.now()

	v, _ := l.records.LoadOrStore(key, &record{})
	rec := v.(*record)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.windowStart.IsZero() || !now.Before(rec.windowStart.Add(window)) {
		rec.windowStart = now
		rec.count = 0
	}

	if rec.count >= ceiling {
		return false
	}
	rec.count++
	return true
}

// RetryAfter returns the number of seconds until the key's current window
// ends, rounded up, as a hint for 429 responses. Returns 0 for unknown keys.
func (l *Limiter) RetryAfter(key string) int {
	l.confMu.RLock()
	window := l.window
	l.confMu.RUnlock()

	v, ok := l.records.Load(key)
	if !ok {
		return 0
	}
	rec := v.(*record)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	remaining := rec.windowStart.Add(window).Sub(l.now())
	if remaining <= 0 {
		return 0
	}
	secs := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		secs++
	}
	return secs
}

// SetLimit updates the ceiling and window, applied on config hot reload.
// Existing windows keep their recorded start.
func (l *Limiter) SetLimit(ceiling int, window time.Duration) {
	l.confMu.Lock()
	l.ceiling = ceiling
	l.window = window
	l.confMu.Unlock()
}

// Stop terminates the sweep goroutine.
func (l *Limiter) Stop() {
	l.cancel()
}

// sweep periodically reclaims records whose window has long expired. Each
// record is inspected under its own lock; no lock is held across the whole
// pass.
func (l *Limiter) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.confMu.RLock()
			window := l.window
			l.confMu.RUnlock()

			now := l.now()
			l.records.Range(func(key, value interface{}) bool {
				rec := value.(*record)
				rec.mu.Lock()
				expired := !rec.windowStart.IsZero() && now.After(rec.windowStart.Add(window))
				rec.mu.Unlock()
				if expired {
					l.records.Delete(key)
				}
				return true
			})
		}
	}
}
