package core

// compute_limiter.go bounds how many engine runs execute at once.
//
// Every run holds one slot for its whole duration. When all slots are busy a
// request waits up to maxWait and then fails with ErrTooManyComputations, so a
// burst of reduct searches cannot starve the process. WaitForDrain lets
// shutdown wait for in-flight runs.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// ErrTooManyComputations is returned when no compute slot frees up within the
// wait bound. Clients should retry after a short delay.
var ErrTooManyComputations = errors.New("too many computations in progress")

// DefaultMaxConcurrent is the slot count used when none is configured.
const DefaultMaxConcurrent = 4

// DefaultMaxWait is how long a request waits for a slot by default.
const DefaultMaxWait = 15 * time.Second

// ComputeLimiter is a counting semaphore over engine runs.
type ComputeLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
	waiting atomic.Int64
}

// NewComputeLimiter allows maxConcurrent simultaneous runs. Non-positive
// arguments select the defaults.
func NewComputeLimiter(maxConcurrent int, maxWait time.Duration) *ComputeLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &ComputeLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most the configured bound. It returns
// ErrTooManyComputations on timeout and an ErrCancelled error when ctx ends
// first. Callers must Release a slot they acquired.
func (l *ComputeLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.active.Inc()
		return nil
	default:
	}

	l.waiting.Inc()
	defer l.waiting.Dec()

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Inc()
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: waited %s for a free slot", ErrTooManyComputations, l.maxWait)
	case <-ctx.Done():
		return dataset.Canceled(ctx, "waiting for a compute slot")
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *ComputeLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Inc()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ComputeLimiter) Release() {
	l.active.Dec()
	<-l.slots
}

// ActiveCount returns the number of runs holding a slot.
func (l *ComputeLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *ComputeLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *ComputeLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no run holds a slot or ctx ends.
func (l *ComputeLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of the limiter for monitoring.
type LimiterStatus struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *ComputeLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Waiting:       int(l.waiting.Load()),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
