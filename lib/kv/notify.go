package kv

import (
	"sync"

	"github.com/keyvaldb/keyval/lib/codec"
)

// --------------------------------------------------------------------------
// Change Notifications
// --------------------------------------------------------------------------

// EventType classifies a change notification.
type EventType int

const (
	// EventSet is emitted for every mutation that writes a value. Numeric and
	// array mutations are observationally indistinguishable from a plain set.
	EventSet EventType = iota
	// EventDelete is emitted for delete mutations.
	EventDelete
)

func (t EventType) String() string {
	if t == EventDelete {
		return "delete"
	}
	return "set"
}

// Event is one post-commit change notification. Key is fully resolved (no
// placeholders), Value is the mutation's input value (nil for deletes) and
// Versionstamp is the commit's versionstamp.
type Event struct {
	Type         EventType
	Key          codec.Key
	Value        any
	Versionstamp string
}

// Subscriber consumes change notifications. Subscribers run synchronously on
// the committing goroutine, in mutation order; a slow subscriber slows the
// commit's caller down.
type Subscriber func(Event)

// notifier fans events out to registered subscribers.
//
// Thread-safety: all methods are safe for concurrent use.
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]Subscriber
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]Subscriber)}
}

func (n *notifier) subscribe(fn Subscriber) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) snapshot() []Subscriber {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Subscriber, 0, len(n.subs))
	for id := 0; id < n.next; id++ {
		if fn, ok := n.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
