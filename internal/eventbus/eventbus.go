// Package eventbus implements the typed, fan-out domain event bus from
// spec.md §4.10. Listeners are registered at process start; emit is
// fire-and-forget and must never block on a slow listener, so each
// listener gets its own buffered inbox drained by a dedicated goroutine
// (the same shape the teacher uses for its SSE/cleanup background loops).
package eventbus

import (
	"github.com/rs/zerolog/log"
)

// Kind enumerates the observed event set from spec.md §4.10.
type Kind string

const (
	ContentCreated  Kind = "content:created"
	ContentUpdated  Kind = "content:updated"
	ContentDeleted  Kind = "content:deleted"
	ContentRestored Kind = "content:restored"

	ChatSessionStarted Kind = "chat:session_started"
	ChatMessageSent    Kind = "chat:message_sent"
	ChatSessionEnded   Kind = "chat:session_ended"
	ChatRateLimited    Kind = "chat:rate_limited"

	CircuitStateChanged Kind = "circuit:state_changed"
)

// Event is a single emission: kind plus a well-formed payload.
type Event struct {
	Kind    Kind
	Payload any
}

// ContentPayload is emitted for content:* events.
type ContentPayload struct {
	ContentID string
	Type      string
	Slug      string
	Version   int
}

// ChatPayload is emitted for chat:* events.
type ChatPayload struct {
	SessionID  string
	VisitorID  string
	RetryAfter int // populated only for chat:rate_limited
}

// CircuitStatePayload is emitted for circuit:state_changed.
type CircuitStatePayload struct {
	Name          string
	PreviousState string
	NewState      string
	FailureCount  int
}

const listenerInboxSize = 64

type listener struct {
	inbox chan Event
}

// Bus fans an Event out to every registered listener without blocking the
// emitter.
type Bus struct {
	listeners []*listener
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn to receive every emitted Event, run on its own
// goroutine draining a buffered inbox. Call during process init, before
// Emit is used concurrently.
func (b *Bus) Subscribe(fn func(Event)) {
	l := &listener{inbox: make(chan Event, listenerInboxSize)}
	b.listeners = append(b.listeners, l)
	go func() {
		for evt := range l.inbox {
			fn(evt)
		}
	}()
}

// Emit fans evt out to all listeners. It never blocks: a listener whose
// inbox is full drops the event and is logged, rather than stalling the
// emitter.
func (b *Bus) Emit(evt Event) {
	for _, l := range b.listeners {
		select {
		case l.inbox <- evt:
		default:
			log.Warn().Str("kind", string(evt.Kind)).Msg("eventbus: listener inbox full, dropping event")
		}
	}
}
