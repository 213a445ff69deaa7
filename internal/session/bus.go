package session

import (
	"sync"

	"github.com/google/uuid"

	"diplomacy/client/internal/protocol"
)

// Handler consumes one notification. Handlers run on the view's dispatch
// goroutine, strictly after the state mutation the notification caused,
// so a handler observing an event always sees the post-event state.
type Handler func(*protocol.Notification)

type subscription struct {
	id   uuid.UUID
	name string
	fn   Handler
}

// bus serializes notification delivery for one view. Publish appends to
// a queue drained by a single dispatch goroutine; handlers never run on
// the path that mutated the state, and never concurrently with each
// other.
type bus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	subs   map[string][]subscription
	queue  []*protocol.Notification
	closed bool
	done   chan struct{}
}

func newBus() *bus {
	b := &bus{
		subs: make(map[string][]subscription),
		done: make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

func (b *bus) dispatch() {
	defer close(b.done)
	b.mu.Lock()
	for {
		for len(b.queue) == 0 {
			if b.closed {
				b.mu.Unlock()
				return
			}
			b.cond.Wait()
		}
		n := b.queue[0]
		b.queue = b.queue[1:]
		handlers := make([]Handler, 0, len(b.subs[n.Name]))
		for _, sub := range b.subs[n.Name] {
			handlers = append(handlers, sub.fn)
		}
		b.mu.Unlock()
		//1.- Registration order, one at a time.
		for _, fn := range handlers {
			fn(n)
		}
		b.mu.Lock()
	}
}

func (b *bus) subscribe(name string, fn Handler) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := subscription{id: uuid.New(), name: name, fn: fn}
	b.subs[name] = append(b.subs[name], sub)
	return sub.id
}

func (b *bus) unsubscribe(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == id {
				b.subs[name] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (b *bus) publish(n *protocol.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, n)
	b.cond.Signal()
}

// close lets the dispatch goroutine finish the queued events, then waits
// for it to exit.
func (b *bus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()
	<-b.done
}
