// Package memory holds a room's conversation log: a bounded, ordered
// sequence of messages that is written through to durable storage on
// every change and hydrated from it on first use.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// StorageKey is the fixed key a room's history is stored under.
const StorageKey = "chat_history"

// Namespace is the storage namespace holding roomID's history.
func Namespace(roomID string) string {
	return "room:" + roomID
}

// ChatMessage is one turn in the conversation log.
type ChatMessage struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"` // system, user, assistant, tool
	Content    string    `json:"content"`
	Name       string    `json:"name,omitempty"` // speaker, or tool name for tool results
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Ephemeral  bool      `json:"ephemeral,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Storage is the durable backend. *opstate.Store satisfies it.
type Storage interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string) error
}

// Memory is a room's bounded conversation log. Writes are expected from
// a single owner (the room); reads may come from anywhere.
type Memory struct {
	mu        sync.RWMutex
	storage   Storage
	namespace string
	capacity  int
	history   []ChatMessage
	loaded    bool
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Memory for roomID holding at most capacity messages. A nil
// storage keeps the history in process only.
func New(storage Storage, roomID string, capacity int, logger *slog.Logger) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		storage:   storage,
		namespace: Namespace(roomID),
		capacity:  capacity,
		now:       time.Now,
		logger:    logger.With("component", "memory", "room", roomID),
	}
}

// Load hydrates the history from storage. It runs once; later calls are
// no-ops. A stored history longer than the capacity keeps its newest
// entries.
func (m *Memory) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Memory) loadLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	if m.storage == nil {
		m.loaded = true
		return nil
	}

	raw, err := m.storage.Get(ctx, m.namespace, StorageKey)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	var history []ChatMessage
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return fmt.Errorf("decode history: %w", err)
		}
	}
	if len(history) > m.capacity {
		history = history[len(history)-m.capacity:]
	}

	m.history = history
	m.loaded = true
	m.logger.Info("history loaded", "messages", len(history))
	return nil
}

// Append adds msg at the tail, evicting from the head when over capacity,
// and returns once the new state is durable. ID and Timestamp are filled
// in when empty. If the write fails the in-memory history is left as it
// was and the error is returned.
func (m *Memory) Append(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return ChatMessage{}, err
	}

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}

	prev := m.history
	next := make([]ChatMessage, 0, min(len(prev)+1, m.capacity))
	if over := len(prev) + 1 - m.capacity; over > 0 {
		next = append(next, prev[over:]...)
	} else {
		next = append(next, prev...)
	}
	next = append(next, msg)

	m.history = next
	if err := m.saveLocked(ctx); err != nil {
		m.history = prev
		return ChatMessage{}, err
	}
	return msg, nil
}

// Clear empties the history and persists the empty state.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, prevLoaded := m.history, m.loaded
	m.history = nil
	m.loaded = true
	if err := m.saveLocked(ctx); err != nil {
		m.history, m.loaded = prev, prevLoaded
		return err
	}
	m.logger.Info("history cleared", "dropped", len(prev))
	return nil
}

func (m *Memory) saveLocked(ctx context.Context) error {
	if m.storage == nil {
		return nil
	}
	history := m.history
	if history == nil {
		history = []ChatMessage{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := m.storage.Set(ctx, m.namespace, StorageKey, string(data)); err != nil {
		m.logger.Error("history write failed", "error", err)
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// FullView returns a copy of the whole history, oldest first.
func (m *Memory) FullView() []ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChatMessage, len(m.history))
	copy(out, m.history)
	return out
}

// ContextView returns the history minus ephemeral entries, in order. This
// is what a provider gets to see.
func (m *Memory) ContextView() []ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChatMessage, 0, len(m.history))
	for _, msg := range m.history {
		if !msg.Ephemeral {
			out = append(out, msg)
		}
	}
	return out
}

// Len returns the number of messages held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// Capacity returns the maximum number of messages held.
func (m *Memory) Capacity() int {
	return m.capacity
}
