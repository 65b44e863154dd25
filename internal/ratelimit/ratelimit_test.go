package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a controllable clock for window boundary tests.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(ceiling int, window time.Duration) (*Limiter, *fakeClock) {
	l := New(ceiling, window, time.Hour)
	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func TestAllowWithinCeiling(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d: expected allow", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("4th request in window must be rejected")
	}
}

func TestAllowIndependentKeys(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	defer l.Stop()

	if !l.Allow("a") {
		t.Fatal("first request for key a should pass")
	}
	if l.Allow("a") {
		t.Error("second request for key a should be rejected")
	}
	if !l.Allow("b") {
		t.Error("key b must have its own window")
	}
}

func TestFreshWindowAtExactBoundary(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	defer l.Stop()

	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("ceiling reached, expected rejection")
	}

	// A request exactly at windowStart+window starts a fresh window.
	clock.Advance(time.Minute)
	if !l.Allow("k") {
		t.Error("request at window boundary must start a fresh window")
	}
}

func TestRejectionDoesNotExtendWindow(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)
	defer l.Stop()

	l.Allow("k")
	clock.Advance(30 * time.Second)
	if l.Allow("k") {
		t.Fatal("expected rejection mid-window")
	}
	clock.Advance(30 * time.Second)
	if !l.Allow("k") {
		t.Error("window must end one window length after its start, not after the last attempt")
	}
}

func TestCeilingNeverExceededConcurrently(t *testing.T) {
	const ceiling = 10
	l, _ := newTestLimiter(ceiling, time.Minute)
	defer l.Stop()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != ceiling {
		t.Errorf("expected exactly %d allowed, got %d", ceiling, got)
	}
}

func TestRetryAfter(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)
	defer l.Stop()

	if got := l.RetryAfter("nope"); got != 0 {
		t.Errorf("unknown key: expected 0, got %d", got)
	}

	l.Allow("k")
	clock.Advance(20 * time.Second)
	if got := l.RetryAfter("k"); got != 40 {
		t.Errorf("expected retry after 40s, got %d", got)
	}

	clock.Advance(40 * time.Second)
	if got := l.RetryAfter("k"); got != 0 {
		t.Errorf("expired window: expected 0, got %d", got)
	}
}

func TestSetLimitAppliesNewCeiling(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	defer l.Stop()

	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("expected rejection at old ceiling")
	}

	l.SetLimit(5, time.Minute)
	if !l.Allow("k") {
		t.Error("raised ceiling should admit the request")
	}
}

func TestSweepReclaimsExpiredRecords(t *testing.T) {
	l := New(3, 20*time.Millisecond, 20*time.Millisecond)
	defer l.Stop()

	l.Allow("old")
	time.Sleep(100 * time.Millisecond)

	if _, ok := l.records.Load("old"); ok {
		t.Error("expected expired record to be swept")
	}
}

func TestExpiredRecordTreatedAsReset(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)
	defer l.Stop()

	l.Allow("k")
	// Well past expiry but before any sweep: the stale record must not be
	// consulted as-is.
	clock.Advance(10 * time.Minute)
	if !l.Allow("k") {
		t.Error("stale record must be treated as reset, not queried stale")
	}
}
