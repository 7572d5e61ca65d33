// Package room is the session actor for one chat room. It gates
// connections against the credential table, validates and rate limits
// messages, records the conversation in memory, and delivers the agent's
// answers in the order the messages were accepted.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nugget/emoroom/internal/brain"
	"github.com/nugget/emoroom/internal/events"
	"github.com/nugget/emoroom/internal/llm"
	"github.com/nugget/emoroom/internal/memory"
)

// Room policies.
const (
	// PolicySingle admits one live connection at a time.
	PolicySingle = "single"
	// PolicyPerIdentity admits many connections, one per identity, and
	// relays chat between them.
	PolicyPerIdentity = "per_identity"
)

// systemName attributes lifecycle entries in memory.
const systemName = "系统"

// User-visible notices.
const (
	noticeEmpty     = "[系统提示]: 消息不能为空。"
	noticeTooLong   = "[系统提示]: 消息过长。"
	noticeTooFast   = "[系统提示]: 说话太快了，请休息一下。"
	noticeApology   = "[系统]: 抱歉，AI 处理请求时出错了，请稍后再试。"
	rejectionPrefix = "[连接拒绝]: "
)

// Thinker produces the agent's answer for a turn. *brain.Brain
// satisfies it.
type Thinker interface {
	Think(ctx context.Context, speaker string, history []memory.ChatMessage) brain.Thought
}

// Config holds the room's settings.
type Config struct {
	ID               string
	AgentName        string
	Policy           string
	MaxMessageLength int
	RateLimit        time.Duration
	QueueSize        int
	// UserSecrets is the raw JSON credential table, identity to secret.
	UserSecrets string
}

type job struct {
	session *Session
}

// Room owns one room's live sessions and its conversation memory.
type Room struct {
	cfg     Config
	creds   credentials
	memory  *memory.Memory
	thinker Thinker
	events  *events.Bus
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	// qmu orders enqueue against Shutdown: once stopped is set no job
	// can enter the queue, so the worker's final drain sees every one.
	qmu     sync.RWMutex
	stopped bool
	jobs    chan job
	quit    chan struct{}
	done    chan struct{}
}

// New creates a room and starts its reply worker. Call Shutdown to stop
// it.
func New(cfg Config, mem *memory.Memory, thinker Thinker, bus *events.Bus, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicySingle
	}
	if cfg.AgentName == "" {
		cfg.AgentName = "EMO"
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 4096
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	r := &Room{
		cfg:      cfg,
		creds:    parseCredentials(cfg.UserSecrets),
		memory:   mem,
		thinker:  thinker,
		events:   bus,
		logger:   logger.With("component", "room", "room", cfg.ID),
		now:      time.Now,
		sessions: make(map[string]*Session),
		jobs:     make(chan job, cfg.QueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if r.creds.fault != nil {
		r.logger.Warn("credential table unusable, every connection will be refused",
			"reason", r.creds.fault.Reason)
	}
	go r.run()
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.cfg.ID }

// Policy returns the connection policy in force.
func (r *Room) Policy() string { return r.cfg.Policy }

// AgentName returns the name the agent speaks under.
func (r *Room) AgentName() string { return r.cfg.AgentName }

// Memory returns the room's conversation memory for read access.
func (r *Room) Memory() *memory.Memory { return r.memory }

// Authenticate checks identity and secret against the credential table
// and the sessions currently online. It returns nil or a *Rejection.
func (r *Room) Authenticate(identity, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rej := r.authenticateLocked(identity, secret); rej != nil {
		return rej
	}
	return nil
}

func (r *Room) authenticateLocked(identity, secret string) *Rejection {
	if rej := r.creds.check(identity, secret); rej != nil {
		return rej
	}
	switch r.cfg.Policy {
	case PolicyPerIdentity:
		for _, s := range r.sessions {
			if s.Identity == identity {
				return reject(ReasonAlreadyOnline, "用户 '%s' 已经在线", identity)
			}
		}
	default:
		if len(r.sessions) > 0 {
			return reject(ReasonAlreadyOnline, "当前机器人正在与其他用户对话中，请稍后再试")
		}
	}
	return nil
}

// Join authenticates a new connection and, if accepted, registers it,
// records the arrival and sends the welcome. A refused connection gets
// one rejection notice, is closed with the policy-violation code, and
// the *Rejection is returned.
func (r *Room) Join(ctx context.Context, conn Conn, identity, secret string) (*Session, error) {
	r.mu.Lock()
	if rej := r.authenticateLocked(identity, secret); rej != nil {
		r.mu.Unlock()
		r.logger.Info("connection rejected", "identity", identity, "reason", rej.Reason)
		r.events.Emit(events.SourceRoom, events.KindReject, map[string]any{
			"identity": identity,
			"reason":   string(rej.Reason),
		})
		_ = conn.Send(rejectionPrefix + rej.Message)
		_ = conn.Close(ClosePolicyViolation, rej.Message)
		return nil, rej
	}
	s := newSession(conn, identity, r.cfg.RateLimit, r.now())
	r.sessions[s.ID] = s
	online := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("participant joined", "identity", identity, "session_id", s.ID, "online", online)
	r.record(ctx, memory.ChatMessage{Role: llm.RoleUser, Name: systemName, Content: identity + " 已连接"})

	if r.cfg.Policy == PolicyPerIdentity {
		r.broadcast(fmt.Sprintf("[系统通知]: 欢迎 %s 加入房间！", identity), s)
	}
	r.send(s, fmt.Sprintf("[%[1]s]: 你好 %[2]s！我是你的 AI 助手 %[1]s。有什么我可以帮你的吗？", r.cfg.AgentName, identity))

	r.events.Emit(events.SourceRoom, events.KindJoin, map[string]any{
		"session_id": s.ID,
		"identity":   identity,
	})
	return s, nil
}

// HandleMessage processes one inbound frame from an accepted session.
// Invalid or too-frequent messages get a notice and go no further;
// chat commands are answered directly; anything else is recorded and
// queued for an answer.
func (r *Room) HandleMessage(ctx context.Context, s *Session, raw string) {
	text := strings.TrimSpace(strings.ToValidUTF8(raw, "�"))
	if text == "" {
		r.send(s, noticeEmpty)
		return
	}
	if utf8.RuneCountInString(text) > r.cfg.MaxMessageLength {
		r.send(s, noticeTooLong)
		return
	}
	if !s.allow(r.now()) {
		r.logger.Debug("message rate limited", "identity", s.Identity, "session_id", s.ID)
		r.events.Emit(events.SourceRoom, events.KindRateLimited, map[string]any{
			"session_id": s.ID,
			"identity":   s.Identity,
		})
		r.send(s, noticeTooFast)
		return
	}

	if reply, ok := r.command(text); ok {
		r.send(s, reply)
		return
	}

	if !r.record(ctx, memory.ChatMessage{Role: llm.RoleUser, Name: s.Identity, Content: text}) {
		r.send(s, noticeApology)
		return
	}
	if r.cfg.Policy == PolicyPerIdentity {
		r.broadcast(fmt.Sprintf("[%s]: %s", s.Identity, text), s)
	}
	r.events.Emit(events.SourceRoom, events.KindMessage, map[string]any{
		"session_id": s.ID,
		"identity":   s.Identity,
		"length":     utf8.RuneCountInString(text),
	})
	r.enqueue(s)
}

// command answers the chat commands. They are not recorded in memory.
func (r *Room) command(text string) (string, bool) {
	switch strings.ToLower(text) {
	case "/help", "/帮助":
		return fmt.Sprintf("[系统提示]: 直接发送消息即可与 %s 对话。/who 或 /在线人数 查看在线用户。", r.cfg.AgentName), true
	case "/who", "/在线人数":
		people := r.Participants()
		names := make([]string, len(people))
		for i, p := range people {
			names[i] = p.Identity
		}
		return fmt.Sprintf("[系统提示]: 当前在线人数: %d 人 (%s)", len(people), strings.Join(names, ", ")), true
	}
	return "", false
}

// Leave unregisters an accepted session and records the departure.
// Calling it again for the same session does nothing.
func (r *Room) Leave(ctx context.Context, s *Session, code int, reason string) {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.ID)
	r.mu.Unlock()

	r.logger.Info("participant left",
		"identity", s.Identity,
		"session_id", s.ID,
		"close", CloseReason(code, reason),
	)
	r.record(ctx, memory.ChatMessage{Role: llm.RoleUser, Name: systemName, Content: s.Identity + " 已断开连接"})
	if r.cfg.Policy == PolicyPerIdentity {
		r.broadcast(fmt.Sprintf("[系统通知]: %s 离开了房间", s.Identity), nil)
	}
	r.events.Emit(events.SourceRoom, events.KindLeave, map[string]any{
		"session_id": s.ID,
		"identity":   s.Identity,
		"code":       code,
		"reason":     reason,
	})
}

// Participants returns the online sessions ordered by join time.
func (r *Room) Participants() []Participant {
	r.mu.Lock()
	out := make([]Participant, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Identity < out[j].Identity
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Reset clears the conversation memory.
func (r *Room) Reset(ctx context.Context) error {
	if err := r.memory.Clear(ctx); err != nil {
		return fmt.Errorf("reset room %s: %w", r.cfg.ID, err)
	}
	return nil
}

// Shutdown closes every live session, lets queued replies finish, and
// stops the reply worker. It returns early with ctx's error if ctx ends
// first.
func (r *Room) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()
	for _, s := range live {
		_ = s.conn.Close(CloseGoingAway, "server shutting down")
	}

	r.qmu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.quit)
	}
	r.qmu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// record appends msg to memory and reports whether it became durable.
func (r *Room) record(ctx context.Context, msg memory.ChatMessage) bool {
	if _, err := r.memory.Append(ctx, msg); err != nil {
		r.logger.Error("failed to record message", "role", msg.Role, "name", msg.Name, "error", err)
		return false
	}
	return true
}

func (r *Room) send(s *Session, text string) {
	if err := s.conn.Send(text); err != nil {
		r.logger.Debug("send failed", "identity", s.Identity, "session_id", s.ID, "error", err)
	}
}

// broadcast sends text to every live session except skip.
func (r *Room) broadcast(text string, skip *Session) {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s != skip {
			targets = append(targets, s)
		}
	}
	r.mu.Unlock()
	for _, s := range targets {
		r.send(s, text)
	}
}

func (r *Room) isLive(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[s.ID] == s
}
