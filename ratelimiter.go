package mpool

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles how quickly the pool may initiate new connect
// attempts for a given kind. It is consulted in step 6 of the match loop,
// right before a new slot would be reserved; when it refuses, the waiter
// stays queued until the match loop next runs (another Acquire, a Recycle,
// or a slot event). The pool schedules no retry of its own when the
// limiter's bucket refills.
type RateLimiter interface {
	// Allow reports whether a new connect attempt for kind may start now.
	Allow(kind int) bool
}

// perKindLimiter is a RateLimiter backed by one golang.org/x/time/rate
// token bucket per kind, lazily created on first use.
type perKindLimiter struct {
	r rate.Limit
	b int

	mu  sync.Mutex
	lim map[int]*rate.Limiter
}

// NewRateLimiter returns a RateLimiter that allows up to b connect
// attempts to burst for any one kind, refilling at r attempts per second
// thereafter.
func NewRateLimiter(r float64, b int) RateLimiter {
	return &perKindLimiter{
		r:   rate.Limit(r),
		b:   b,
		lim: make(map[int]*rate.Limiter),
	}
}

func (p *perKindLimiter) Allow(kind int) bool {
	return p.ensure(kind).Allow()
}

func (p *perKindLimiter) ensure(kind int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.lim[kind]
	if l == nil {
		l = rate.NewLimiter(p.r, p.b)
		p.lim[kind] = l
	}
	return l
}
