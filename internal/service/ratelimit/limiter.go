package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key token bucket used to shed excess prediction traffic
// before it reaches the model. Buckets idle longer than staleAfter are
// dropped on the next sweep so one-off callers do not accumulate forever.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

const (
	staleAfter   = 10 * time.Minute
	sweepEvery   = time.Minute
	sweepMinSize = 1024
)

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), lastSweep: time.Now()}
}

// Allow reports whether one token can be consumed for key, refilling the
// bucket for the time elapsed since the last call.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.m) >= sweepMinSize && now.Sub(l.lastSweep) > sweepEvery {
		l.sweep(now)
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.m {
		if now.Sub(b.last) > staleAfter {
			delete(l.m, key)
		}
	}
	l.lastSweep = now
}
