package retrieval

import "context"

// Semaphore bounds how many adapter calls may be in flight at once,
// backed by a buffered channel.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a bounded semaphore with the given capacity.
func NewSemaphore(max int) *Semaphore {
	if max < 1 {
		max = 1
	}
	return &Semaphore{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Every Acquire must be paired with exactly one
// Release across all exit paths, including error returns.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}
