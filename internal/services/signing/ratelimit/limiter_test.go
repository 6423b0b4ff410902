package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(Config{}, clock.Now), clock
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	limiter, clock := newTestLimiter()
	key := SMSKey("+12025550123")

	want := []bool{true, true, true, false}
	wantRemaining := []int{2, 1, 0, 0}
	for i := range want {
		res := limiter.Check(key, 3, time.Hour)
		if res.Allowed != want[i] {
			t.Fatalf("call %d allowed = %v, want %v", i+1, res.Allowed, want[i])
		}
		if res.Remaining != wantRemaining[i] {
			t.Fatalf("call %d remaining = %d, want %d", i+1, res.Remaining, wantRemaining[i])
		}
		if !res.ResetTime.Equal(clock.Now().Add(time.Hour)) {
			t.Fatalf("call %d reset = %v", i+1, res.ResetTime)
		}
	}
}

func TestCheckStartsNewWindowAfterReset(t *testing.T) {
	limiter, clock := newTestLimiter()
	for range 3 {
		limiter.Check("k", 3, time.Minute)
	}
	if limiter.Check("k", 3, time.Minute).Allowed {
		t.Fatal("expected denial inside window")
	}

	clock.Advance(time.Minute)
	if limiter.Check("k", 3, time.Minute).Allowed {
		t.Fatal("expected denial exactly at reset time")
	}
	clock.Advance(time.Millisecond)
	res := limiter.Check("k", 3, time.Minute)
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
}

func TestCheckIsolatesKeys(t *testing.T) {
	limiter, _ := newTestLimiter()
	limiter.Check("a", 1, time.Minute)
	if limiter.Check("a", 1, time.Minute).Allowed {
		t.Fatal("expected a to be limited")
	}
	if !limiter.Check("b", 1, time.Minute).Allowed {
		t.Fatal("expected b to be independent")
	}
}

func TestCheckConcurrentCallsRespectLimit(t *testing.T) {
	limiter, _ := newTestLimiter()
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check("shared", 10, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("allowed = %d, want 10", allowed)
	}
}

func TestSweepRemovesExpiredWindows(t *testing.T) {
	limiter, clock := newTestLimiter()
	for i := range 5 {
		limiter.Check(fmt.Sprintf("short-%d", i), 3, time.Minute)
	}
	limiter.Check("long", 3, time.Hour)

	clock.Advance(2 * time.Minute)
	if removed := limiter.Sweep(); removed != 5 {
		t.Fatalf("removed = %d, want 5", removed)
	}
	if limiter.Len() != 1 {
		t.Fatalf("len = %d, want 1", limiter.Len())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := New(Config{SweepInterval: 5 * time.Millisecond}, clock.Now)

	limiter.Start(context.Background())
	limiter.Start(context.Background())

	limiter.Check("k", 3, time.Second)
	clock.Advance(2 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for limiter.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected sweep goroutine to drop expired window")
		}
		time.Sleep(5 * time.Millisecond)
	}

	limiter.Check("k2", 3, time.Hour)
	limiter.Stop()
	limiter.Stop()
	if limiter.Len() != 0 {
		t.Fatalf("expected Stop to clear state, len = %d", limiter.Len())
	}
}
