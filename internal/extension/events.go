package extension

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind identifies a service lifecycle event.
type EventKind int

const (
	EventAcquired EventKind = iota
	EventLost
	EventDestroyed
)

func (k EventKind) String() string {
	switch k {
	case EventAcquired:
		return "name-acquired"
	case EventLost:
		return "name-lost"
	case EventDestroyed:
		return "destroy"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind EventKind
	Name string // bus name the event refers to
}

// SubscriptionID identifies a subscription returned by Subscribe.
type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	kind    EventKind
	handler func(Event)
}

// observers keeps subscriptions in registration order.
type observers struct {
	mu   sync.Mutex
	subs []subscription
}

func (o *observers) add(kind EventKind, handler func(Event)) SubscriptionID {
	id := SubscriptionID(uuid.NewString())
	o.mu.Lock()
	o.subs = append(o.subs, subscription{id: id, kind: kind, handler: handler})
	o.mu.Unlock()
	return id
}

func (o *observers) remove(id SubscriptionID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (o *observers) clear() {
	o.mu.Lock()
	o.subs = nil
	o.mu.Unlock()
}

// emit calls matching handlers outside the lock so handlers may subscribe,
// unsubscribe or destroy the service.
func (o *observers) emit(ev Event) {
	o.mu.Lock()
	var handlers []func(Event)
	for _, s := range o.subs {
		if s.kind == ev.Kind {
			handlers = append(handlers, s.handler)
		}
	}
	o.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
