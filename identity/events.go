package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind tags an asynchronous provider lifecycle event.
type EventKind string

const (
	EventSignedIn            EventKind = "signedIn"
	EventAutoSignedIn        EventKind = "autoSignIn"
	EventSignedOut           EventKind = "signedOut"
	EventSignInFailed        EventKind = "signIn_failure"
	EventSignUpFailed        EventKind = "signUp_failure"
	EventConfirmSignUpFailed EventKind = "confirmSignUp_failure"
	EventAutoSignInFailed    EventKind = "autoSignIn_failure"
)

// IsFailure reports whether k is one of the failure kinds.
func (k EventKind) IsFailure() bool {
	switch k {
	case EventSignInFailed, EventSignUpFailed, EventConfirmSignUpFailed, EventAutoSignInFailed:
		return true
	}
	return false
}

// Event is a transient lifecycle notification. Payload is opaque to the engine.
type Event struct {
	ID      uuid.UUID
	Kind    EventKind
	Payload any
	At      time.Time
}

// NewEvent stamps a new event with a random id and the current time.
func NewEvent(kind EventKind, payload any) Event {
	return Event{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: payload,
		At:      time.Now(),
	}
}

// Hub fans events out to subscribers. Adapters embed one to implement
// Provider.Subscribe. Publish calls subscribers synchronously in the
// publisher's goroutine; subscribers that need isolation queue internally.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]func(Event)
	nextID uint64
}

// Subscribe registers fn. The returned handle is safe to call more than once.
func (h *Hub) Subscribe(fn func(Event)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[uint64]func(Event))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
