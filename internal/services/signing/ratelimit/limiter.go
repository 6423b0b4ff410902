// Package ratelimit provides an in-process fixed-window request throttler.
//
// State is per process and lost on restart. The composition root owns the
// Limiter and its sweep lifecycle.
package ratelimit

import (
	"context"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/docseal/internal/platform/config"
)

const (
	shardCount           = 16
	defaultSweepInterval = 5 * time.Minute
)

// Config controls background sweeping.
type Config struct {
	SweepInterval time.Duration `env:"DOCSEAL_RATE_LIMIT_SWEEP_INTERVAL" envDefault:"5m"`
}

// LoadConfigFromEnv loads limiter configuration, falling back to defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Printf("ratelimit: %v", err)
		return Config{SweepInterval: defaultSweepInterval}
	}
	return cfg
}

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type window struct {
	count     int
	resetTime time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]window
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	shards        [shardCount]*shard
	sweepInterval time.Duration
	now           func() time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a Limiter. A nil clock uses time.Now.
func New(cfg Config, clock func() time.Time) *Limiter {
	if clock == nil {
		clock = time.Now
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	l := &Limiter{sweepInterval: interval, now: clock}
	for i := range l.shards {
		l.shards[i] = &shard{windows: map[string]window{}}
	}
	return l
}

// SMSKey is the limiter key for SMS sends to phone.
func SMSKey(phone string) string {
	return "sms:" + strings.TrimSpace(phone)
}

// Check records one request for key and reports whether it is allowed.
func (l *Limiter) Check(key string, limit int, windowDuration time.Duration) Result {
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.windows[key]
	if !ok || now.After(current.resetTime) {
		current = window{count: 1, resetTime: now.Add(windowDuration)}
		s.windows[key] = current
		return Result{Allowed: true, Remaining: max(limit-1, 0), ResetTime: current.resetTime}
	}
	if current.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetTime: current.resetTime}
	}
	current.count++
	s.windows[key] = current
	return Result{Allowed: true, Remaining: max(limit-current.count, 0), ResetTime: current.resetTime}
}

// Start launches the sweep goroutine. Calling Start twice is a no-op.
func (l *Limiter) Start(ctx context.Context) {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.cancel != nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.sweepLoop(sweepCtx, l.done)
}

// Stop halts sweeping and clears all windows. Calling Stop twice is a no-op.
func (l *Limiter) Stop() {
	l.lifecycle.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.lifecycle.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, s := range l.shards {
		s.mu.Lock()
		clear(s.windows)
		s.mu.Unlock()
	}
}

// Sweep removes expired windows and returns how many were dropped.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, w := range s.windows {
			if now.After(w.resetTime) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports how many keys are tracked.
func (l *Limiter) Len() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.windows)
		s.mu.Unlock()
	}
	return total
}

func (l *Limiter) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}
