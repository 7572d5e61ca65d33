// Package events provides a publish/subscribe bus for room activity.
// Components (room actor, brain) publish; the /v1/events WebSocket
// stream subscribes. The bus is nil-safe: calling Publish on a nil *Bus
// is a no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceRoom identifies events from the room session actor.
	SourceRoom = "room"
	// SourceBrain identifies events from the reply orchestrator.
	SourceBrain = "brain"
)

// Kind constants describe the type of event within a source.
const (
	// KindJoin signals an accepted connection.
	// Data: session_id, identity.
	KindJoin = "join"
	// KindReject signals a refused connection.
	// Data: identity, reason.
	KindReject = "reject"
	// KindLeave signals a closed session.
	// Data: session_id, identity, code, reason.
	KindLeave = "leave"
	// KindMessage signals an accepted chat message.
	// Data: session_id, identity, length.
	KindMessage = "message"
	// KindRateLimited signals a message dropped by the rate limiter.
	// Data: session_id, identity.
	KindRateLimited = "rate_limited"
	// KindReply signals that an assistant answer was delivered.
	// Data: identity, length, tool_messages, elapsed_ms.
	KindReply = "reply"

	// KindLLMCall signals a completed provider call.
	// Data: provider, pass, tools_offered, tool_calls, ok, duration_ms.
	KindLLMCall = "llm_call"
	// KindToolCall signals the start of a tool execution.
	// Data: tool, call_id.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: tool, call_id, ok, duration_ms.
	KindToolDone = "tool_done"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's <-chan Event.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. If a subscriber's channel
// is full, the event is dropped for that subscriber. Safe to call on a
// nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit stamps and publishes an event built from its parts.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Calling it
// twice for the same channel is a no-op.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
