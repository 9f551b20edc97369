package ratelimiter

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Limiter is a token bucket holding up to burst tokens, refilled at one
// token per interval. A burst of 1 allows one action per interval.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	burst    int
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// New creates a new rate limiter allowing burst actions at once and one
// more action per interval afterwards. burst < 1 is treated as 1.
func New(interval time.Duration, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		interval: interval,
		burst:    burst,
		tokens:   float64(burst),
		now:      time.Now,
	}
}

// Allow takes one token if available.
// Returns true if allowed, or false with the wait until the next token.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refill(now)

	if l.tokens >= 1 {
		l.tokens--
		return true, 0
	}

	missing := 1 - l.tokens
	return false, time.Duration(missing * float64(l.interval))
}

func (l *Limiter) refill(now time.Time) {
	if !l.last.IsZero() && l.interval > 0 {
		elapsed := now.Sub(l.last)
		l.tokens += float64(elapsed) / float64(l.interval)
		if l.tokens > float64(l.burst) {
			l.tokens = float64(l.burst)
		}
	} else if l.interval <= 0 {
		l.tokens = float64(l.burst)
	}
	l.last = now
}

// Reset refills the bucket, allowing the next burst immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.tokens = float64(l.burst)
	l.last = time.Time{}
	l.mu.Unlock()
}

// Interval returns the configured refill interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.burst
}

// Keyed holds one Limiter per key, such as a client IP or a job name.
// The least recently used keys are dropped once size keys are tracked.
type Keyed struct {
	mu       sync.Mutex
	interval time.Duration
	burst    int
	limiters *lru.Cache[string, *Limiter]
}

// NewKeyed creates a keyed limiter tracking at most size keys
func NewKeyed(interval time.Duration, burst, size int) (*Keyed, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, *Limiter](size)
	if err != nil {
		return nil, err
	}
	return &Keyed{interval: interval, burst: burst, limiters: cache}, nil
}

// Allow takes one token from the bucket of key
func (k *Keyed) Allow(key string) (bool, time.Duration) {
	return k.get(key).Allow()
}

// Reset refills the bucket of key
func (k *Keyed) Reset(key string) {
	k.get(key).Reset()
}

// Len returns the number of tracked keys
func (k *Keyed) Len() int {
	return k.limiters.Len()
}

func (k *Keyed) get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if l, ok := k.limiters.Get(key); ok {
		return l
	}
	l := New(k.interval, k.burst)
	k.limiters.Add(key, l)
	return l
}
