package semaphore

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Semaphore limits how many fetch units may run at once. Each unit holds
// exactly one slot. Waiters are served in FIFO order.
type Semaphore struct {
	mutex    sync.Mutex
	waiters  list.List
	size     int
	acquired int
}

func New(size int) *Semaphore {
	return &Semaphore{
		size: size,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	done := ctx.Done()

	// Prioritize context cancellation
	select {
	case <-done:
		return ctx.Err()
	default:
	}

	s.mutex.Lock()

	// Take a slot immediately if nobody is queued ahead of us
	if s.waiters.Len() == 0 && s.acquired < s.size {
		s.acquired++
		s.mutex.Unlock()
		return nil
	}

	// Wait for a slot to be released
	ready := make(chan struct{})
	elem := s.waiters.PushBack(ready)
	s.mutex.Unlock()

	select {
	case <-done:
		// The slot handoff happens under the mutex, so holding it here rules
		// out being handed a slot between the ready check and the removal.
		s.mutex.Lock()
		select {
		case <-ready:
			// Got a slot after we were canceled.
			// Pretend we didn't and put it back.
			s.mutex.Unlock()
			s.Release()
		default:
			// Canceled before acquiring a slot.
			s.waiters.Remove(elem)
			s.mutex.Unlock()
		}
		return ctx.Err()
	case <-ready:
		// Got a slot. Check that ctx isn't already done.
		// We check the done channel instead of calling ctx.Err because we
		// already have the channel, and ctx.Err is O(n) with the nesting
		// depth of ctx.
		select {
		case <-done:
			s.Release()
			return ctx.Err()
		default:
		}
		return nil
	}
}

// Release frees one slot and hands it to the oldest waiter, if any.
func (s *Semaphore) Release() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.acquired == 0 {
		return fmt.Errorf("semaphore: release without a matching acquire")
	}

	s.acquired--

	// Notify waiters
	for s.acquired < s.size {
		next := s.waiters.Front()
		if next == nil {
			break // No more waiters blocked.
		}
		s.acquired++
		s.waiters.Remove(next)
		close(next.Value.(chan struct{}))
	}

	return nil
}

func (s *Semaphore) Size() int {
	return s.size
}

func (s *Semaphore) Acquired() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.acquired
}

func (s *Semaphore) Available() int {
	return s.Size() - s.Acquired()
}
