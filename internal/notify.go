package internal

import "sync"

// Notification is one push event for the UI layer: a login progress step, a
// streaming event, or a session-expiry signal. Exactly one field is set.
type Notification struct {
	Login          *LoginProgress
	Stream         StreamEvent
	SessionExpired bool
}

// Notifier fans notifications out to subscribers. Publishing never blocks:
// a subscriber that stops draining its channel loses events rather than
// stalling the stream decode loop.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan Notification
	next int
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Notification)}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// the subscription and closes the channel.
func (n *Notifier) Subscribe() (<-chan Notification, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan Notification, 64)
	n.subs[id] = ch
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers a notification to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (n *Notifier) Publish(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- note:
		default:
		}
	}
}

// PublishLogin is a convenience wrapper used as a ProgressSink.
func (n *Notifier) PublishLogin(p LoginProgress) {
	n.Publish(Notification{Login: &p})
}

// PublishStream is a convenience wrapper used as an EventSink.
func (n *Notifier) PublishStream(e StreamEvent) {
	n.Publish(Notification{Stream: e})
}
