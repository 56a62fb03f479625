package eventqueue

import "github.com/rzbill/evbus/internal/events"

// fifo is an unbounded slice-backed queue of events for one subscriber.
type fifo struct {
	items []*events.Event
	head  int
}

func (f *fifo) push(ev *events.Event) { f.items = append(f.items, ev) }

func (f *fifo) len() int { return len(f.items) - f.head }

func (f *fifo) pop() (*events.Event, bool) {
	if f.head >= len(f.items) {
		return nil, false
	}
	ev := f.items[f.head]
	f.items[f.head] = nil
	f.head++
	switch {
	case f.head == len(f.items):
		f.items = f.items[:0]
		f.head = 0
	case f.head >= 64 && f.head*2 >= len(f.items):
		n := copy(f.items, f.items[f.head:])
		clear(f.items[n:])
		f.items = f.items[:n]
		f.head = 0
	}
	return ev, true
}
