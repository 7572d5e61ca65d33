package room

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/emoroom/internal/brain"
	"github.com/nugget/emoroom/internal/events"
	"github.com/nugget/emoroom/internal/llm"
	"github.com/nugget/emoroom/internal/memory"
)

// enqueue schedules an answer for s behind every earlier one. It blocks
// while the queue is full, which also holds off Shutdown until the
// worker makes room. After Shutdown the turn is answered with the
// apology instead.
func (r *Room) enqueue(s *Session) {
	r.qmu.RLock()
	defer r.qmu.RUnlock()
	if r.stopped {
		r.send(s, noticeApology)
		return
	}
	r.jobs <- job{session: s}
}

// run is the single reply worker. Turns are taken strictly in queue
// order and each runs to completion before the next starts. On quit the
// remaining queue is drained first.
func (r *Room) run() {
	defer close(r.done)
	for {
		select {
		case j := <-r.jobs:
			r.reply(j)
		case <-r.quit:
			for {
				select {
				case j := <-r.jobs:
					r.reply(j)
				default:
					return
				}
			}
		}
	}
}

// reply runs one turn. Turns are not cancelled when their session goes
// away; an undeliverable answer is dropped at send time.
func (r *Room) reply(j job) {
	s := j.session
	ctx := context.Background()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("reply panicked", "identity", s.Identity, "panic", p)
			r.deliver(s, noticeApology)
		}
	}()

	thought := r.thinker.Think(ctx, s.Identity, r.memory.ContextView())

	if err := r.persistThought(ctx, thought); err != nil {
		r.logger.Error("reply failed", "identity", s.Identity, "error", err)
		r.deliver(s, noticeApology)
		return
	}

	r.deliver(s, fmt.Sprintf("[%s]: %s", r.cfg.AgentName, thought.Answer))

	elapsed := time.Since(start)
	r.logger.Info("reply delivered",
		"identity", s.Identity,
		"tool_messages", len(thought.ToolMessages),
		"elapsed", elapsed.Round(time.Millisecond),
	)
	r.events.Emit(events.SourceRoom, events.KindReply, map[string]any{
		"identity":      s.Identity,
		"length":        len([]rune(thought.Answer)),
		"tool_messages": len(thought.ToolMessages),
		"elapsed_ms":    elapsed.Milliseconds(),
	})
}

// persistThought records the turn's tool results, then the answer.
func (r *Room) persistThought(ctx context.Context, t brain.Thought) error {
	for _, tm := range t.ToolMessages {
		if _, err := r.memory.Append(ctx, tm); err != nil {
			return fmt.Errorf("record tool result %s: %w", tm.Name, err)
		}
	}
	answer := memory.ChatMessage{Role: llm.RoleAssistant, Name: r.cfg.AgentName, Content: t.Answer}
	if _, err := r.memory.Append(ctx, answer); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// deliver sends a turn's result. Under the per-identity policy everyone
// in the room hears the agent; otherwise only the asker does, and only
// while still connected.
func (r *Room) deliver(s *Session, text string) {
	if r.cfg.Policy == PolicyPerIdentity {
		r.broadcast(text, nil)
		return
	}
	if !r.isLive(s) {
		r.logger.Debug("dropping reply for departed session", "identity", s.Identity, "session_id", s.ID)
		return
	}
	r.send(s, text)
}
