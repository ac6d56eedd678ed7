package orchestrator

import (
	"context"
	"sync"
)

// Limiter is a resizable counting semaphore bounding in-flight generation
// calls. Degraded serial mode is a SetLimit(1) call on the same structure,
// not a separate dispatch path.
type Limiter struct {
	mu    sync.Mutex
	limit int
	inUse int
	wake  chan struct{} // closed and replaced whenever a permit may have freed
}

// NewLimiter creates a limiter with the given permit count.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{
		limit: limit,
		wake:  make(chan struct{}),
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.inUse < l.limit {
			l.inUse++
			l.mu.Unlock()
			return nil
		}
		wait := l.wake
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release returns a permit and wakes blocked acquirers.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.inUse--
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()
}

// SetLimit changes the permit count. Lowering it never interrupts calls
// already in flight; they drain naturally while new acquires see the new
// limit.
func (l *Limiter) SetLimit(n int) {
	if n < 1 {
		n = 1
	}
	l.mu.Lock()
	l.limit = n
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()
}

// Limit returns the current permit count.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// InUse returns how many permits are currently held.
func (l *Limiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}
