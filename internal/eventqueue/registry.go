package eventqueue

import (
	"sort"
	"sync"

	"github.com/rzbill/evbus/internal/filter"
	"github.com/rzbill/evbus/pkg/id"
)

// Registry maps queue names to queues. Lock order is queue then registry.
// UnregisterIfUnused is the only place the two locks nest. Every other
// method releases the registry lock before calling into a queue, so no
// path takes a queue lock while holding the registry lock. GetOrCreate
// only constructs a fresh, unshared queue under it.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	opts   []Option
}

// NewRegistry returns an empty registry. opts are applied to every queue
// created by GetOrCreate.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{queues: map[string]*Queue{}, opts: opts}
}

// GetByName returns the queue registered under name, or nil.
func (r *Registry) GetByName(name string) *Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queues[name]
}

// GetAll returns every registered queue ordered by name.
func (r *Registry) GetAll() []*Queue {
	r.mu.RLock()
	out := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Register stores q under name, replacing any previous entry.
func (r *Registry) Register(name string, q *Queue) {
	r.mu.Lock()
	r.queues[name] = q
	r.mu.Unlock()
}

// Unregister removes name. Absent names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.queues, name)
	r.mu.Unlock()
}

// GetOrCreate returns the queue registered under name, creating and
// registering an empty one if needed. created reports which happened.
func (r *Registry) GetOrCreate(name string) (q *Queue, created bool) {
	r.mu.RLock()
	q = r.queues[name]
	r.mu.RUnlock()
	if q != nil {
		return q, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q = r.queues[name]; q != nil {
		return q, false
	}
	q = NewQueue(name, r.opts...)
	r.queues[name] = q
	return q, true
}

// QueuesForType returns the queues whose type set contains typ.
func (r *Registry) QueuesForType(typ string) []*Queue {
	r.mu.RLock()
	snapshot := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		snapshot = append(snapshot, q)
	}
	r.mu.RUnlock()

	out := snapshot[:0]
	for _, q := range snapshot {
		if q.AcceptsType(typ) {
			out = append(out, q)
		}
	}
	return out
}

// UnregisterIfUnused removes name if it still maps to q and q has no
// subscribers. The check and the removal happen under q's exclusive
// section so no AddClient can interleave.
func (r *Registry) UnregisterIfUnused(name string, q *Queue) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.clients) > 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queues[name] != q {
		return false
	}
	delete(r.queues, name)
	return true
}

// Acquire provisions a subscriber: get-or-create the queue, overwrite its
// types and filter, and register cid. If the queue was unregistered
// before cid landed on it, cid is withdrawn and the sequence retried, so
// the returned queue is always the registered one.
func (r *Registry) Acquire(name string, cid id.ID, types []string, pred *filter.Predicate) *Queue {
	for {
		q, _ := r.GetOrCreate(name)
		q.Configure(types, pred)
		q.AddClient(cid)

		r.mu.RLock()
		current := r.queues[name]
		r.mu.RUnlock()
		if current == q {
			return q
		}
		q.RemoveClient(cid)
	}
}
