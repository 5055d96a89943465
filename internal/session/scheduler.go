package session

import (
	"context"
	"time"
)

// Scheduler gates transcription so at most one request per session is in
// flight. Buffer triggers skip their turn when the slot is taken; session
// end waits a bounded time for the slot before proceeding without it.
type Scheduler struct {
	slot chan struct{}
}

// NewScheduler creates a scheduler with a free slot
func NewScheduler() *Scheduler {
	return &Scheduler{
		slot: make(chan struct{}, 1),
	}
}

// TryAcquire claims the slot without blocking. Returns false if a
// transcription is already in flight.
func (s *Scheduler) TryAcquire() bool {
	select {
	case s.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// AcquireWait claims the slot, waiting up to wait for an in-flight
// transcription to finish. Returns false on timeout or context cancellation.
func (s *Scheduler) AcquireWait(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s.slot <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Release frees the slot. Must only be called after a successful acquire.
func (s *Scheduler) Release() {
	select {
	case <-s.slot:
	default:
	}
}

// InFlight reports whether a transcription currently holds the slot
func (s *Scheduler) InFlight() bool {
	return len(s.slot) > 0
}
