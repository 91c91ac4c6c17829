package bitcoin

import (
	"context"
	"sync"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
)

// resultSlot is the single-assignment completion primitive shared by the
// event-delivery goroutine and the awaiting caller. All completion paths
// funnel through complete, which runs at most once; hooks registered with
// onComplete fire on every resolution path (success, failure, or
// cancellation), which is how listener deregistration is guaranteed.
type resultSlot struct {
	mu        sync.Mutex
	completed bool
	tx        *chain.Transaction
	err       error
	hooks     []func()
	done      chan struct{}
}

func newResultSlot() *resultSlot {
	return &resultSlot{done: make(chan struct{})}
}

// complete writes the result exactly once and runs the completion hooks.
// Later calls are ignored; the first writer wins. Returns whether this call
// performed the completion.
func (s *resultSlot) complete(tx *chain.Transaction, err error) bool {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return false
	}
	s.completed = true
	s.tx = tx
	s.err = err
	hooks := s.hooks
	s.hooks = nil
	close(s.done)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return true
}

// onComplete registers a hook to run when the slot completes. If the slot
// already completed, the hook runs immediately.
func (s *resultSlot) onComplete(hook func()) {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		hook()
		return
	}
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// await blocks until the slot completes or ctx is cancelled. Cancellation
// completes the slot with ctx.Err(), which runs the deregistration hooks;
// if an event resolves the slot in the same instant, that result wins and
// is returned instead.
func (s *resultSlot) await(ctx context.Context) (*chain.Transaction, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.complete(nil, ctx.Err())
	}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx, s.err
}
