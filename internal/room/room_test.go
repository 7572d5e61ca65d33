package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/emoroom/internal/brain"
	"github.com/nugget/emoroom/internal/events"
	"github.com/nugget/emoroom/internal/llm"
	"github.com/nugget/emoroom/internal/memory"
	"github.com/nugget/emoroom/internal/tools"
)

const testSecrets = `{"alice":"wonderland","bob":"builder","carol":"carols"}`

// fakeConn records everything the room sends to one client.
type fakeConn struct {
	mu     sync.Mutex
	sent   []string
	closed bool
	code   int
	reason string
}

func (c *fakeConn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed, c.code, c.reason = true, code, reason
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// waitFor blocks until at least n messages were sent.
func (c *fakeConn) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := c.messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %q", n, c.messages())
	return nil
}

type thinkCall struct {
	speaker string
	history []memory.ChatMessage
}

// fakeThinker answers through fn and records every turn.
type fakeThinker struct {
	mu    sync.Mutex
	calls []thinkCall
	fn    func(n int, speaker string) brain.Thought
}

func (f *fakeThinker) Think(_ context.Context, speaker string, history []memory.ChatMessage) brain.Thought {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, thinkCall{speaker: speaker, history: history})
	f.mu.Unlock()
	if f.fn == nil {
		return brain.Thought{Answer: "你好 " + speaker}
	}
	return f.fn(n, speaker)
}

func (f *fakeThinker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testRoom struct {
	*Room
	clock *fakeClock
}

func newTestRoom(t *testing.T, cfg Config, thinker Thinker, mem *memory.Memory) testRoom {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "test"
	}
	if cfg.UserSecrets == "" {
		cfg.UserSecrets = testSecrets
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = time.Second
	}
	if mem == nil {
		mem = memory.New(nil, cfg.ID, 100, nil)
	}
	r := New(cfg, mem, thinker, nil, nil)
	clk := &fakeClock{t: time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)}
	r.now = clk.Now
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return testRoom{Room: r, clock: clk}
}

func (tr testRoom) join(t *testing.T, identity, secret string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s, err := tr.Join(context.Background(), conn, identity, secret)
	if err != nil {
		t.Fatalf("Join(%q) error: %v", identity, err)
	}
	return s, conn
}

func TestJoinAndFirstAnswer(t *testing.T) {
	thinker := &fakeThinker{}
	tr := newTestRoom(t, Config{AgentName: "EMO"}, thinker, nil)

	s, conn := tr.join(t, "alice", "wonderland")

	welcome := conn.waitFor(t, 1)[0]
	if !strings.HasPrefix(welcome, "[EMO]: ") || !strings.Contains(welcome, "alice") {
		t.Errorf("welcome = %q, want agent tag and participant name", welcome)
	}
	before := tr.Memory().Len()

	tr.HandleMessage(context.Background(), s, "hi")

	msgs := conn.waitFor(t, 2)
	if msgs[1] != "[EMO]: 你好 alice" {
		t.Errorf("answer = %q", msgs[1])
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(conn.messages()); got != 2 {
		t.Errorf("messages sent = %d, want exactly 2", got)
	}

	history := tr.Memory().FullView()
	if len(history) != before+2 {
		t.Fatalf("memory grew by %d, want 2", len(history)-before)
	}
	user, answer := history[before], history[before+1]
	if user.Role != llm.RoleUser || user.Name != "alice" || user.Content != "hi" {
		t.Errorf("user entry = %+v", user)
	}
	if answer.Role != llm.RoleAssistant || answer.Name != "EMO" || answer.Content != "你好 alice" {
		t.Errorf("answer entry = %+v", answer)
	}

	call := thinker.calls[0]
	if call.speaker != "alice" {
		t.Errorf("speaker = %q, want alice", call.speaker)
	}
	if last := call.history[len(call.history)-1]; last.Content != "hi" {
		t.Errorf("thinker saw last entry %+v, want the new message", last)
	}
}

func TestJoinRecordsArrival(t *testing.T) {
	tr := newTestRoom(t, Config{}, &fakeThinker{}, nil)
	tr.join(t, "alice", "wonderland")

	history := tr.Memory().FullView()
	if len(history) != 1 {
		t.Fatalf("memory = %d entries, want 1", len(history))
	}
	if history[0].Role != llm.RoleUser || history[0].Name != "系统" || history[0].Content != "alice 已连接" {
		t.Errorf("arrival entry = %+v", history[0])
	}
}

func TestHandleMessage_Validation(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		notice string
	}{
		{"blank", "   ", "消息不能为空"},
		{"empty", "", "消息不能为空"},
		{"whitespace only", "\n\t ", "消息不能为空"},
		{"too long", strings.Repeat("好", 11), "消息过长"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thinker := &fakeThinker{}
			tr := newTestRoom(t, Config{MaxMessageLength: 10}, thinker, nil)
			s, conn := tr.join(t, "bob", "builder")
			before := tr.Memory().Len()

			tr.HandleMessage(context.Background(), s, tt.text)

			msgs := conn.waitFor(t, 2)
			if !strings.HasPrefix(msgs[1], "[系统提示]") || !strings.Contains(msgs[1], tt.notice) {
				t.Errorf("notice = %q, want %q", msgs[1], tt.notice)
			}
			if got := tr.Memory().Len(); got != before {
				t.Errorf("memory length = %d, want unchanged %d", got, before)
			}
			if thinker.callCount() != 0 {
				t.Error("thinker should not run for an invalid message")
			}
		})
	}
}

func TestHandleMessage_MaxLengthCountsCharacters(t *testing.T) {
	tr := newTestRoom(t, Config{MaxMessageLength: 10}, &fakeThinker{}, nil)
	s, conn := tr.join(t, "bob", "builder")

	tr.HandleMessage(context.Background(), s, strings.Repeat("好", 10))

	msgs := conn.waitFor(t, 2)
	if strings.Contains(msgs[1], "消息过长") {
		t.Errorf("10 characters at limit 10 rejected: %q", msgs[1])
	}
}

func TestHandleMessage_RateLimit(t *testing.T) {
	thinker := &fakeThinker{}
	tr := newTestRoom(t, Config{RateLimit: time.Second}, thinker, nil)
	s, conn := tr.join(t, "alice", "wonderland")
	ctx := context.Background()

	tr.HandleMessage(ctx, s, "one")
	conn.waitFor(t, 2)
	afterFirst := tr.Memory().Len()

	tr.clock.Advance(500 * time.Millisecond)
	tr.HandleMessage(ctx, s, "two")
	msgs := conn.waitFor(t, 3)
	if !strings.Contains(msgs[2], "说话太快了") {
		t.Errorf("notice = %q, want too-fast notice", msgs[2])
	}
	if got := tr.Memory().Len(); got != afterFirst {
		t.Errorf("rate-limited message was recorded: memory %d, want %d", got, afterFirst)
	}

	tr.clock.Advance(501 * time.Millisecond)
	tr.HandleMessage(ctx, s, "three")
	msgs = conn.waitFor(t, 4)
	if msgs[3] != "[EMO]: 你好 alice" {
		t.Errorf("reply after interval = %q", msgs[3])
	}
	if thinker.callCount() != 2 {
		t.Errorf("thinker calls = %d, want 2", thinker.callCount())
	}
}

func TestHandleMessage_InvalidDoesNotConsumeInterval(t *testing.T) {
	tr := newTestRoom(t, Config{}, &fakeThinker{}, nil)
	s, conn := tr.join(t, "alice", "wonderland")

	tr.HandleMessage(context.Background(), s, "  ")
	tr.HandleMessage(context.Background(), s, "hi")

	msgs := conn.waitFor(t, 3)
	if msgs[2] != "[EMO]: 你好 alice" {
		t.Errorf("valid message after an empty one was not answered: %q", msgs[2])
	}
}

func TestReplyOrdering(t *testing.T) {
	thinker := &fakeThinker{fn: func(n int, _ string) brain.Thought {
		// Earlier turns take longer.
		time.Sleep(time.Duration(3-n) * 15 * time.Millisecond)
		return brain.Thought{Answer: fmt.Sprintf("answer-%d", n)}
	}}
	tr := newTestRoom(t, Config{}, thinker, nil)
	s, conn := tr.join(t, "alice", "wonderland")

	for i := range 3 {
		tr.HandleMessage(context.Background(), s, fmt.Sprintf("question-%d", i))
		tr.clock.Advance(2 * time.Second)
	}

	msgs := conn.waitFor(t, 4)
	for i := range 3 {
		want := fmt.Sprintf("[EMO]: answer-%d", i)
		if msgs[i+1] != want {
			t.Errorf("reply %d = %q, want %q", i, msgs[i+1], want)
		}
	}
}

func TestReplyPanicBecomesApology(t *testing.T) {
	thinker := &fakeThinker{fn: func(n int, speaker string) brain.Thought {
		if n == 0 {
			panic("thinker exploded")
		}
		return brain.Thought{Answer: "recovered"}
	}}
	tr := newTestRoom(t, Config{}, thinker, nil)
	s, conn := tr.join(t, "alice", "wonderland")

	tr.HandleMessage(context.Background(), s, "first")
	tr.clock.Advance(2 * time.Second)
	tr.HandleMessage(context.Background(), s, "second")

	msgs := conn.waitFor(t, 3)
	if msgs[1] != noticeApology {
		t.Errorf("first reply = %q, want apology", msgs[1])
	}
	if msgs[2] != "[EMO]: recovered" {
		t.Errorf("second reply = %q, want the answer", msgs[2])
	}
}

func TestSingleSessionPolicy(t *testing.T) {
	tr := newTestRoom(t, Config{Policy: PolicySingle}, &fakeThinker{}, nil)
	alice, aliceConn := tr.join(t, "alice", "wonderland")

	bobConn := &fakeConn{}
	_, err := tr.Join(context.Background(), bobConn, "bob", "builder")

	var rej *Rejection
	if !errors.As(err, &rej) || rej.Reason != ReasonAlreadyOnline {
		t.Fatalf("Join(bob) error = %v, want already online", err)
	}
	msgs := bobConn.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "[连接拒绝]: ") {
		t.Errorf("bob received %q, want one rejection notice", msgs)
	}
	if !bobConn.closed || bobConn.code != ClosePolicyViolation {
		t.Errorf("bob conn closed=%v code=%d, want closed with %d", bobConn.closed, bobConn.code, ClosePolicyViolation)
	}

	if aliceConn.closed {
		t.Error("original connection was closed")
	}
	people := tr.Participants()
	if len(people) != 1 || people[0].SessionID != alice.ID {
		t.Errorf("participants = %+v, want only alice", people)
	}
	if got := tr.Memory().Len(); got != 1 {
		t.Errorf("memory = %d entries, want only alice's arrival", got)
	}

	tr.HandleMessage(context.Background(), alice, "still here")
	if got := aliceConn.waitFor(t, 2)[1]; got != "[EMO]: 你好 alice" {
		t.Errorf("alice reply = %q", got)
	}
}

func TestPerIdentityPolicy(t *testing.T) {
	tr := newTestRoom(t, Config{Policy: PolicyPerIdentity}, &fakeThinker{}, nil)
	ctx := context.Background()

	_, aliceConn := tr.join(t, "alice", "wonderland")
	bob, bobConn := tr.join(t, "bob", "builder")

	if got := aliceConn.waitFor(t, 2)[1]; got != "[系统通知]: 欢迎 bob 加入房间！" {
		t.Errorf("alice saw %q, want bob's arrival notice", got)
	}

	dupConn := &fakeConn{}
	_, err := tr.Join(ctx, dupConn, "alice", "wonderland")
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Reason != ReasonAlreadyOnline {
		t.Fatalf("duplicate alice error = %v, want already online", err)
	}
	if !strings.Contains(rej.Message, "alice") {
		t.Errorf("rejection message = %q, want identity", rej.Message)
	}

	tr.HandleMessage(ctx, bob, "hey all")

	aliceMsgs := aliceConn.waitFor(t, 4)
	if aliceMsgs[2] != "[bob]: hey all" {
		t.Errorf("alice saw %q, want relayed message", aliceMsgs[2])
	}
	if aliceMsgs[3] != "[EMO]: 你好 bob" {
		t.Errorf("alice saw %q, want the agent's answer", aliceMsgs[3])
	}
	bobMsgs := bobConn.waitFor(t, 2)
	if bobMsgs[1] != "[EMO]: 你好 bob" {
		t.Errorf("bob saw %q, want the agent's answer", bobMsgs[1])
	}
	for _, m := range bobMsgs {
		if m == "[bob]: hey all" {
			t.Error("sender received its own relayed message")
		}
	}

	tr.Leave(ctx, bob, CloseNormal, "")
	if got := aliceConn.waitFor(t, 5)[4]; got != "[系统通知]: bob 离开了房间" {
		t.Errorf("alice saw %q, want bob's departure notice", got)
	}
}

func TestRejectionsAreNotRecorded(t *testing.T) {
	tr := newTestRoom(t, Config{}, &fakeThinker{}, nil)

	for _, tc := range []struct{ identity, secret string }{
		{"", ""},
		{"mallory", "x"},
		{"alice", "wrong"},
	} {
		conn := &fakeConn{}
		if _, err := tr.Join(context.Background(), conn, tc.identity, tc.secret); err == nil {
			t.Errorf("Join(%q, %q) succeeded", tc.identity, tc.secret)
		}
		if !conn.closed || conn.code != ClosePolicyViolation {
			t.Errorf("Join(%q) conn closed=%v code=%d", tc.identity, conn.closed, conn.code)
		}
	}
	if got := tr.Memory().Len(); got != 0 {
		t.Errorf("memory = %d entries after rejections, want 0", got)
	}
}

func TestLeave(t *testing.T) {
	tr := newTestRoom(t, Config{}, &fakeThinker{}, nil)
	s, _ := tr.join(t, "alice", "wonderland")

	tr.Leave(context.Background(), s, 1001, "")
	tr.Leave(context.Background(), s, 1001, "")

	history := tr.Memory().FullView()
	if len(history) != 2 {
		t.Fatalf("memory = %d entries, want arrival and departure", len(history))
	}
	if history[1].Name != "系统" || history[1].Content != "alice 已断开连接" {
		t.Errorf("departure entry = %+v", history[1])
	}
	if n := len(tr.Participants()); n != 0 {
		t.Errorf("participants = %d, want 0", n)
	}

	// The slot is free again.
	tr.join(t, "bob", "builder")
}

func TestDisconnectMidTurn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	thinker := &fakeThinker{fn: func(int, string) brain.Thought {
		close(started)
		<-release
		return brain.Thought{Answer: "too late"}
	}}
	tr := newTestRoom(t, Config{}, thinker, nil)
	s, conn := tr.join(t, "alice", "wonderland")

	tr.HandleMessage(context.Background(), s, "hi")
	<-started
	tr.Leave(context.Background(), s, 1006, "")
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if msgs := conn.messages(); len(msgs) != 1 {
		t.Errorf("sent %q, want only the welcome", msgs)
	}
	history := tr.Memory().FullView()
	last := history[len(history)-1]
	if last.Role != llm.RoleAssistant || last.Content != "too late" {
		t.Errorf("last entry = %+v, want the completed answer", last)
	}
}

func TestShutdownAnswersEveryQueuedTurn(t *testing.T) {
	const turns = 200
	thinker := &fakeThinker{}
	tr := newTestRoom(t, Config{QueueSize: 4}, thinker, nil)

	// Not registered, so Shutdown leaves the connection open and every
	// apology stays observable.
	conn := &fakeConn{}
	s := newSession(conn, "alice", 0, tr.clock.Now())

	var wg sync.WaitGroup
	for range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.enqueue(s)
		}()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	wg.Wait()

	if n := len(tr.jobs); n != 0 {
		t.Fatalf("%d turns left in the queue after Shutdown", n)
	}
	apologies := 0
	for _, m := range conn.messages() {
		if m == noticeApology {
			apologies++
		}
	}
	if got := thinker.callCount() + apologies; got != turns {
		t.Errorf("answered %d + apologized %d = %d turns, want %d", thinker.callCount(), apologies, got, turns)
	}
}

type failingStorage struct{}

func (failingStorage) Get(context.Context, string, string) (string, error) { return "", nil }
func (failingStorage) Set(context.Context, string, string, string) error {
	return errors.New("disk full")
}

func TestPersistenceFailure(t *testing.T) {
	thinker := &fakeThinker{}
	mem := memory.New(failingStorage{}, "test", 100, nil)
	tr := newTestRoom(t, Config{}, thinker, mem)
	s, conn := tr.join(t, "alice", "wonderland")

	tr.HandleMessage(context.Background(), s, "hi")

	msgs := conn.waitFor(t, 2)
	if msgs[1] != noticeApology {
		t.Errorf("reply = %q, want apology", msgs[1])
	}
	if got := tr.Memory().Len(); got != 0 {
		t.Errorf("memory = %d entries, want 0 after failed writes", got)
	}
	if thinker.callCount() != 0 {
		t.Error("thinker ran for an unrecorded message")
	}
}

func TestCommands(t *testing.T) {
	thinker := &fakeThinker{}
	tr := newTestRoom(t, Config{Policy: PolicyPerIdentity}, thinker, nil)
	alice, aliceConn := tr.join(t, "alice", "wonderland")
	tr.join(t, "bob", "builder")
	before := tr.Memory().Len()

	tr.HandleMessage(context.Background(), alice, "/WHO")
	tr.clock.Advance(2 * time.Second)
	tr.HandleMessage(context.Background(), alice, "/帮助")
	tr.clock.Advance(2 * time.Second)
	tr.HandleMessage(context.Background(), alice, "/在线人数")

	msgs := aliceConn.waitFor(t, 5)
	if !strings.Contains(msgs[2], "2 人") || !strings.Contains(msgs[2], "alice, bob") {
		t.Errorf("/who = %q", msgs[2])
	}
	if !strings.HasPrefix(msgs[3], "[系统提示]") || !strings.Contains(msgs[3], "/who") {
		t.Errorf("/帮助 = %q", msgs[3])
	}
	if !strings.Contains(msgs[4], "2 人") {
		t.Errorf("/在线人数 = %q", msgs[4])
	}
	if got := tr.Memory().Len(); got != before {
		t.Errorf("commands were recorded: memory %d, want %d", got, before)
	}
	if thinker.callCount() != 0 {
		t.Error("commands reached the thinker")
	}
}

func TestCommandsConsumeInterval(t *testing.T) {
	tr := newTestRoom(t, Config{}, &fakeThinker{}, nil)
	s, conn := tr.join(t, "alice", "wonderland")

	tr.HandleMessage(context.Background(), s, "/help")
	tr.HandleMessage(context.Background(), s, "hi")

	msgs := conn.waitFor(t, 3)
	if !strings.Contains(msgs[2], "说话太快了") {
		t.Errorf("message right after a command = %q, want too-fast notice", msgs[2])
	}
}

// scriptedProvider returns its responses in order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Call(context.Context, []llm.Message, []llm.ToolDefinition) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	return r, nil
}

func TestTimeToolTurn(t *testing.T) {
	registry := tools.NewRegistry(nil)
	registry.Register(tools.TimeTool(func() time.Time {
		return time.Date(2026, 10, 19, 7, 4, 5, 0, time.UTC)
	}))
	provider := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "get_current_time", Arguments: map[string]any{"format": "time"}}}},
		{Text: "[EMO]: 现在是 15:04:05。"},
	}}
	b := brain.New(provider, registry, brain.Config{
		AgentName:   "EMO",
		Timezone:    "Asia/Shanghai",
		ToolCalling: true,
	}, nil, nil)

	tr := newTestRoom(t, Config{AgentName: "EMO"}, b, nil)
	s, conn := tr.join(t, "alice", "wonderland")
	tr.HandleMessage(context.Background(), s, "现在几点？")

	if got := conn.waitFor(t, 2)[1]; got != "[EMO]: 现在是 15:04:05。" {
		t.Errorf("answer = %q", got)
	}

	full := tr.Memory().FullView()
	if len(full) != 4 {
		t.Fatalf("full view = %d entries, want arrival, question, tool result, answer", len(full))
	}
	tool := full[2]
	if tool.Role != llm.RoleTool || tool.Name != "get_current_time" || !tool.Ephemeral {
		t.Errorf("tool entry = %+v", tool)
	}
	if tool.ToolCallID == "" {
		t.Error("tool entry has no call id")
	}
	if full[3].Role != llm.RoleAssistant {
		t.Errorf("last entry role = %q, want assistant", full[3].Role)
	}

	for _, m := range tr.Memory().ContextView() {
		if m.Role == llm.RoleTool {
			t.Errorf("context view includes tool entry %+v", m)
		}
	}
	if got := len(tr.Memory().ContextView()); got != 3 {
		t.Errorf("context view = %d entries, want 3", got)
	}
}

func TestEvents(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(32)
	defer bus.Unsubscribe(ch)

	r := New(Config{ID: "test", UserSecrets: testSecrets, RateLimit: time.Second},
		memory.New(nil, "test", 10, nil), &fakeThinker{}, bus, nil)
	defer r.Shutdown(context.Background())

	conn := &fakeConn{}
	s, err := r.Join(context.Background(), conn, "alice", "wonderland")
	if err != nil {
		t.Fatal(err)
	}
	r.HandleMessage(context.Background(), s, "hi")
	r.HandleMessage(context.Background(), s, "again")
	conn.waitFor(t, 3)
	_, _ = r.Join(context.Background(), &fakeConn{}, "mallory", "x")
	r.Leave(context.Background(), s, CloseNormal, "")

	want := map[string]bool{
		events.KindJoin:        false,
		events.KindMessage:     false,
		events.KindRateLimited: false,
		events.KindReply:       false,
		events.KindReject:      false,
		events.KindLeave:       false,
	}
	deadline := time.After(2 * time.Second)
	for remaining := len(want); remaining > 0; {
		select {
		case e := <-ch:
			if seen, ok := want[e.Kind]; ok && !seen {
				want[e.Kind] = true
				remaining--
			}
		case <-deadline:
			t.Fatalf("missing events: %v", want)
		}
	}
}
