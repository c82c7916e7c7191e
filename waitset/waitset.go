// Package waitset implements the blocking multiplexer an executor uses
// to wait on several entities' events, guard conditions, and message
// queues at once: one shared condition variable woken by whichever
// source fires first, with the woken goroutine rechecking every
// attached source rather than trusting which one signalled, mirroring
// the mailbox pattern in this pack's framesupplier-style distributors.
package waitset

import (
	"context"
	"sync"

	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/guard"
	"github.com/codebot/rmw-zenoh/msgqueue"
)

// Source is anything a wait-set can attach to: events.Manager's
// per-kind slots and guard.Condition both already satisfy this
// protocol directly.
type Source interface {
	Attach(ws events.Signaler) (ready bool)
	Detach() (stillEmpty bool)
}

// EventSource adapts one kind slot of an events.Manager into a Source.
type EventSource struct {
	Manager *events.Manager
	Kind    events.Kind
}

func (e EventSource) Attach(ws events.Signaler) bool { return e.Manager.Attach(e.Kind, ws) }
func (e EventSource) Detach() bool                   { return e.Manager.Detach(e.Kind) }

// QueueSource adapts a msgqueue.Queue into a Source via the guard
// condition its owner triggers on every Push, rechecking the queue's
// own emptiness on both Attach and Detach so a queue refilled between
// Signal and Detach is never missed. A triggered Available reports
// ready even if the queue has since been drained.
type QueueSource struct {
	Queue     *msgqueue.Queue
	Available *guard.Condition
}

func (q QueueSource) Attach(ws events.Signaler) bool {
	if !q.Queue.Empty() {
		return true
	}
	return q.Available.Attach(ws)
}

func (q QueueSource) Detach() bool {
	stillEmpty := q.Available.Detach()
	return stillEmpty && q.Queue.Empty()
}

// signaler is the single wake-up point shared by every source attached
// during one Wait call.
type signaler struct {
	mu   sync.Mutex
	cond *sync.Cond
	woke bool
}

func newSignaler() *signaler {
	s := &signaler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *signaler) Signal() {
	s.mu.Lock()
	s.woke = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks until at least one of sources is ready or ctx ends,
// returning every source found ready. Pass a context with no deadline
// to wait indefinitely; pass an already-expired context to poll
// without blocking. Cancellation is via ctx.Done() or any attached
// guard condition's Trigger.
func Wait(ctx context.Context, sources ...Source) ([]Source, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	sig := newSignaler()

	var fired, attached []Source
	for _, src := range sources {
		if src.Attach(sig) {
			fired = append(fired, src)
		} else {
			attached = append(attached, src)
		}
	}

	detachAll := func() {
		for _, src := range attached {
			src.Detach()
		}
	}

	if len(fired) > 0 {
		detachAll()
		return fired, nil
	}

	select {
	case <-ctx.Done():
		detachAll()
		return nil, ctx.Err()
	default:
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			sig.Signal()
		case <-stop:
		}
	}()

	sig.mu.Lock()
	for !sig.woke {
		sig.cond.Wait()
	}
	sig.mu.Unlock()

	for _, src := range attached {
		if stillEmpty := src.Detach(); !stillEmpty {
			fired = append(fired, src)
		}
	}

	if len(fired) == 0 {
		return nil, ctx.Err()
	}
	return fired, nil
}
