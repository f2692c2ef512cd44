package client

import (
	"sync"
)

// notifier delivers state snapshots to subscribers from one goroutine.
// Kicks are coalesced: a subscriber that falls behind sees only the latest
// state, and a version it has already seen is not delivered twice.
type notifier struct {
	snapshot func() ConversationState

	kicks  chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once

	mu     sync.Mutex
	nextID int
	subs   map[int]func(ConversationState)
}

func newNotifier(snapshot func() ConversationState, initial func(ConversationState)) *notifier {
	n := &notifier{
		snapshot: snapshot,
		kicks:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		subs:     make(map[int]func(ConversationState)),
	}
	if initial != nil {
		n.subscribe(initial)
	}
	go n.loop()
	return n
}

// kick schedules a delivery. It never blocks.
func (n *notifier) kick() {
	select {
	case n.kicks <- struct{}{}:
	default:
	}
}

func (n *notifier) subscribe(fn func(ConversationState)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// stop ends deliveries. It does not wait for a delivery in progress when
// called from a subscriber.
func (n *notifier) stop() {
	n.once.Do(func() {
		close(n.done)
	})
}

func (n *notifier) loop() {
	defer close(n.exited)

	var delivered uint64
	for {
		select {
		case <-n.done:
			return
		case <-n.kicks:
		}

		state := n.snapshot()
		if state.Version == delivered {
			continue
		}
		delivered = state.Version

		n.mu.Lock()
		subs := make([]func(ConversationState), 0, len(n.subs))
		for _, fn := range n.subs {
			subs = append(subs, fn)
		}
		n.mu.Unlock()

		for _, fn := range subs {
			select {
			case <-n.done:
				return
			default:
			}
			fn(state)
		}
	}
}
