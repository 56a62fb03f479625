package eventqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/evbus/internal/events"
	"github.com/rzbill/evbus/internal/filter"
	"github.com/rzbill/evbus/internal/telemetry"
	"github.com/rzbill/evbus/pkg/id"
	"github.com/rzbill/evbus/pkg/log"
)

// Queue is one named event channel: an accepted type set, an optional
// filter predicate and one FIFO per subscriber.
type Queue struct {
	name      string
	logger    log.Logger
	metrics   telemetry.Recorder
	pollSlice time.Duration

	mu      sync.RWMutex
	types   map[string]struct{}
	filter  *filter.Predicate
	clients map[id.ID]*fifo

	// wake is closed and replaced under mu on every delivery. Waiters load
	// it before checking their FIFO so no delivery is missed.
	wake atomic.Pointer[chan struct{}]
}

// NewQueue creates an empty queue that accepts no types.
func NewQueue(name string, opts ...Option) *Queue {
	o := buildOptions(opts)
	q := &Queue{
		name:      name,
		logger:    o.logger.WithComponent("eventqueue").With(log.Queue(name)),
		metrics:   o.metrics,
		pollSlice: o.pollSlice,
		types:     map[string]struct{}{},
		clients:   map[id.ID]*fifo{},
	}
	ch := make(chan struct{})
	q.wake.Store(&ch)
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// AcceptsType reports whether events of typ are routed to this queue.
func (q *Queue) AcceptsType(typ string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.types[typ]
	return ok
}

// Publish delivers ev to every current subscriber if the filter accepts
// it. The filter runs outside the exclusive section. An evaluation error
// only drops the event for this queue. Type gating is the caller's job.
func (q *Queue) Publish(ctx context.Context, ev *events.Event) filter.Result {
	q.mu.RLock()
	pred := q.filter
	q.mu.RUnlock()

	res, err := pred.Evaluate(ev)
	switch res {
	case filter.EvaluationError:
		q.logger.Warn("filter evaluation failed",
			log.Str("type", ev.Type()), log.Str("filter", pred.String()), log.Err(err))
		q.metrics.FilterError(ctx, q.name)
		return res
	case filter.Rejected:
		q.metrics.FilterRejected(ctx, q.name)
		return res
	}

	q.mu.Lock()
	for _, f := range q.clients {
		f.push(ev)
	}
	n := len(q.clients)
	q.signalLocked()
	q.mu.Unlock()

	q.metrics.EventDelivered(ctx, q.name, n)
	return filter.Accepted
}

// signalLocked wakes every waiter. Caller holds mu exclusively.
func (q *Queue) signalLocked() {
	ch := make(chan struct{})
	old := q.wake.Swap(&ch)
	close(*old)
}

func (q *Queue) wakeCh() <-chan struct{} { return *q.wake.Load() }

// AddClient registers an empty FIFO for cid. Registering the same id twice
// is a programming error and panics.
func (q *Queue) AddClient(cid id.ID) {
	q.mu.Lock()
	if _, ok := q.clients[cid]; ok {
		q.mu.Unlock()
		panic(fmt.Sprintf("eventqueue: client %s already registered on queue %q", cid, q.name))
	}
	q.clients[cid] = &fifo{}
	q.mu.Unlock()
	q.metrics.SubscriberAdded(context.Background(), q.name)
}

// RemoveClient drops cid and its unread events. Absent ids are ignored.
func (q *Queue) RemoveClient(cid id.ID) {
	q.mu.Lock()
	_, ok := q.clients[cid]
	delete(q.clients, cid)
	q.mu.Unlock()
	if ok {
		q.metrics.SubscriberRemoved(context.Background(), q.name)
	}
}

// SetTypes replaces the accepted type set.
func (q *Queue) SetTypes(types []string) {
	set := typeSet(types)
	q.mu.Lock()
	q.types = set
	q.mu.Unlock()
}

// SetFilter replaces the filter. A nil predicate accepts everything.
func (q *Queue) SetFilter(pred *filter.Predicate) {
	q.mu.Lock()
	q.filter = pred
	q.mu.Unlock()
}

// Configure replaces the type set and the filter as one pair.
func (q *Queue) Configure(types []string, pred *filter.Predicate) {
	set := typeSet(types)
	q.mu.Lock()
	q.types = set
	q.filter = pred
	q.mu.Unlock()
}

func typeSet(types []string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

// WaitForEvent blocks the calling goroutine until an event for cid is
// available or timeout elapses. It must not be used from streaming
// handlers; those use WaitForEventContext.
func (q *Queue) WaitForEvent(cid id.ID, timeout time.Duration) (*events.Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		ch := q.wakeCh()
		q.mu.Lock()
		ev, ok := q.popLocked(cid)
		q.mu.Unlock()
		if ok {
			return ev, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ch:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// WaitForEventContext is the cooperative wait. It never parks while
// holding the queue lock: each iteration tries the lock without blocking
// and otherwise suspends on the wake signal, ctx or one poll slice.
// It returns false once timeout has elapsed since the first iteration or
// ctx is done.
func (q *Queue) WaitForEventContext(ctx context.Context, cid id.ID, timeout time.Duration) (*events.Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		ch := q.wakeCh()
		if q.mu.TryLock() {
			ev, ok := q.popLocked(cid)
			q.mu.Unlock()
			if ok {
				return ev, true
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(min(remaining, q.pollSlice))
		select {
		case <-ch:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		}
		timer.Stop()
	}
}

// popLocked pops the next event of cid. Caller holds mu exclusively.
func (q *Queue) popLocked(cid id.ID) (*events.Event, bool) {
	f, ok := q.clients[cid]
	if !ok {
		q.mu.Unlock()
		panic(fmt.Sprintf("eventqueue: wait on unknown client %s in queue %q", cid, q.name))
	}
	return f.pop()
}

// Types returns the accepted types in sorted order.
func (q *Queue) Types() []string {
	q.mu.RLock()
	out := make([]string, 0, len(q.types))
	for t := range q.types {
		out = append(out, t)
	}
	q.mu.RUnlock()
	sort.Strings(out)
	return out
}

// FilterText returns the filter source, or "" when there is none.
func (q *Queue) FilterText() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.filter.String()
}

// ClientCount returns the number of subscribers.
func (q *Queue) ClientCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.clients)
}

// Pending returns the number of unread events of cid, or -1 if cid is
// not registered.
func (q *Queue) Pending(cid id.ID) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	f, ok := q.clients[cid]
	if !ok {
		return -1
	}
	return f.len()
}
