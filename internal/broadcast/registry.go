package broadcast

import (
	"sync"

	"github.com/nhdewitt/telemon/internal/protocol"
)

// Subscriber is one connected client.
//
// Send must not block: implementations queue the message or fail with
// ErrQueueFull or ErrClosed.
type Subscriber interface {
	ID() string
	Send(msg protocol.Message) error
}

// Registry is the set of subscribers that receive broadcasts.
type Registry struct {
	mu          sync.Mutex
	subscribers map[string]Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]Subscriber),
	}
}

func (r *Registry) Add(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[s.ID()] = s
}

// Remove reports whether id was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subscribers[id]
	delete(r.subscribers, id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// ForEachSend delivers msg to every subscriber registered at the time of
// the call. Sends happen outside the lock; a failure for one subscriber
// does not stop delivery to the rest.
func (r *Registry) ForEachSend(msg protocol.Message) []*TransportError {
	r.mu.Lock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	var errs []*TransportError
	for _, s := range subs {
		if err := s.Send(msg); err != nil {
			errs = append(errs, &TransportError{SubscriberID: s.ID(), Err: err})
		}
	}
	return errs
}
