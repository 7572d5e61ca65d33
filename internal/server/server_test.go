package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/emoroom/internal/brain"
	"github.com/nugget/emoroom/internal/events"
	"github.com/nugget/emoroom/internal/memory"
	"github.com/nugget/emoroom/internal/room"
	"github.com/nugget/emoroom/internal/tools"
)

type echoThinker struct{}

func (echoThinker) Think(_ context.Context, speaker string, history []memory.ChatMessage) brain.Thought {
	last := history[len(history)-1]
	return brain.Thought{Answer: speaker + " said " + last.Content}
}

type fixture struct {
	ts   *httptest.Server
	room *room.Room
	bus  *events.Bus
}

func newFixture(t *testing.T, adminToken string) fixture {
	t.Helper()
	bus := events.New()
	rm := room.New(room.Config{
		ID:          "test",
		AgentName:   "EMO",
		UserSecrets: `{"alice":"wonderland","bob":"builder"}`,
		RateLimit:   time.Millisecond,
	}, memory.New(nil, "test", 50, nil), echoThinker{}, bus, nil)

	srv := New(Config{AdminToken: adminToken, Provider: "mock"}, rm, tools.NewDefaultRegistry(nil), bus, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rm.Shutdown(ctx)
		ts.Close()
	})
	return fixture{ts: ts, room: rm, bus: bus}
}

func (f fixture) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(f.ts.URL, "http") + path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", mt)
	}
	return string(data)
}

func getJSON(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublicEndpoints(t *testing.T) {
	f := newFixture(t, "s3cret")

	tests := []struct {
		path string
		key  string
		want string
	}{
		{"/", "status", "ok"},
		{"/health", "status", "healthy"},
		{"/v1/version", "version", "dev"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body map[string]string
			if code := getJSON(t, f.ts.URL+tt.path, "", &body); code != http.StatusOK {
				t.Fatalf("GET %s = %d", tt.path, code)
			}
			if body[tt.key] != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, body[tt.key], tt.want)
			}
		})
	}
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t, "s3cret")

	for _, path := range []string{"/v1/room", "/v1/room/history", "/v1/room/context", "/v1/tools"} {
		if code := getJSON(t, f.ts.URL+path, "", nil); code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, code)
		}
		if code := getJSON(t, f.ts.URL+path, "wrong", nil); code != http.StatusUnauthorized {
			t.Errorf("GET %s with wrong token = %d, want 401", path, code)
		}
		if code := getJSON(t, f.ts.URL+path, "s3cret", nil); code != http.StatusOK {
			t.Errorf("GET %s with token = %d, want 200", path, code)
		}
	}
	if code := getJSON(t, f.ts.URL+"/v1/room?token=s3cret", "", nil); code != http.StatusOK {
		t.Errorf("GET /v1/room?token= = %d, want 200", code)
	}
}

func TestAdminOpenWithoutToken(t *testing.T) {
	f := newFixture(t, "")
	if code := getJSON(t, f.ts.URL+"/v1/room", "", nil); code != http.StatusOK {
		t.Errorf("GET /v1/room = %d, want 200 when no admin token is configured", code)
	}
}

func TestChatSession(t *testing.T) {
	f := newFixture(t, "")
	ws := dial(t, f.wsURL("/ws?name=alice&secret=wonderland"))

	welcome := readText(t, ws)
	if !strings.HasPrefix(welcome, "[EMO]: ") || !strings.Contains(welcome, "alice") {
		t.Errorf("welcome = %q", welcome)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, ws); got != "[EMO]: alice said hi" {
		t.Errorf("answer = %q", got)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("   ")); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, ws); !strings.Contains(got, "消息不能为空") {
		t.Errorf("notice = %q", got)
	}

	var status RoomStatus
	getJSON(t, f.ts.URL+"/v1/room", "", &status)
	if len(status.Participants) != 1 || status.Participants[0].Identity != "alice" {
		t.Errorf("participants = %+v", status.Participants)
	}
	if status.MemorySize != 3 || status.MemoryCapacity != 50 || status.Provider != "mock" {
		t.Errorf("status = %+v", status)
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return len(f.room.Participants()) == 0 })

	var history HistoryResponse
	getJSON(t, f.ts.URL+"/v1/room/history", "", &history)
	if history.Count != 4 {
		t.Fatalf("history count = %d, want 4", history.Count)
	}
	if last := history.Messages[3]; last.Content != "alice 已断开连接" {
		t.Errorf("last entry = %+v", last)
	}
}

func TestChatRejection(t *testing.T) {
	f := newFixture(t, "")
	ws := dial(t, f.wsURL("/ws?name=alice&secret=nope"))

	if got := readText(t, ws); got != "[连接拒绝]: 密码错误" {
		t.Errorf("rejection = %q", got)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Errorf("read after rejection = %v, want close 1008", err)
	}
	if n := f.room.Memory().Len(); n != 0 {
		t.Errorf("memory = %d entries after rejection, want 0", n)
	}
}

func TestChatSecondConnectionRefused(t *testing.T) {
	f := newFixture(t, "")
	alice := dial(t, f.wsURL("/ws?name=alice&secret=wonderland"))
	readText(t, alice)

	bob := dial(t, f.wsURL("/websocket?name=bob&secret=builder"))
	if got := readText(t, bob); !strings.HasPrefix(got, "[连接拒绝]: ") {
		t.Errorf("bob got %q, want rejection", got)
	}

	if err := alice.WriteMessage(websocket.TextMessage, []byte("still here")); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, alice); got != "[EMO]: alice said still here" {
		t.Errorf("alice answer = %q", got)
	}
}

func TestResetAndContext(t *testing.T) {
	f := newFixture(t, "")
	ws := dial(t, f.wsURL("/ws?name=alice&secret=wonderland"))
	readText(t, ws)
	_ = ws.WriteMessage(websocket.TextMessage, []byte("hi"))
	readText(t, ws)

	var ctxView HistoryResponse
	getJSON(t, f.ts.URL+"/v1/room/context", "", &ctxView)
	if ctxView.Count != 3 {
		t.Errorf("context count = %d, want 3", ctxView.Count)
	}

	resp, err := http.Post(f.ts.URL+"/v1/room/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset = %d", resp.StatusCode)
	}
	if n := f.room.Memory().Len(); n != 0 {
		t.Errorf("memory after reset = %d, want 0", n)
	}
}

func TestToolsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	var body struct {
		Tools []struct {
			Name      string `json:"name"`
			Ephemeral bool   `json:"ephemeral"`
		} `json:"tools"`
	}
	getJSON(t, f.ts.URL+"/v1/tools", "", &body)
	if len(body.Tools) != 1 || body.Tools[0].Name != "get_current_time" || !body.Tools[0].Ephemeral {
		t.Errorf("tools = %+v", body.Tools)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, "s3cret")
	stream := dial(t, f.wsURL("/v1/events?token=s3cret"))
	waitUntil(t, func() bool { return f.bus.SubscriberCount() == 1 })

	chat := dial(t, f.wsURL("/ws?name=bob&secret=builder"))
	readText(t, chat)

	_ = stream.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e events.Event
	if err := stream.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if e.Source != events.SourceRoom || e.Kind != events.KindJoin {
		t.Errorf("event = %s/%s, want room/join", e.Source, e.Kind)
	}
	if e.Data["identity"] != "bob" {
		t.Errorf("identity = %v, want bob", e.Data["identity"])
	}

	stream.Close()
	waitUntil(t, func() bool { return f.bus.SubscriberCount() == 0 })
}

func TestEventStreamRequiresToken(t *testing.T) {
	f := newFixture(t, "s3cret")
	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("/v1/events"), nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestTruncateReason(t *testing.T) {
	long := strings.Repeat("好", 50) // 150 bytes
	got := truncateReason(long)
	if len(got) > maxCloseReason {
		t.Errorf("len = %d, want <= %d", len(got), maxCloseReason)
	}
	if got != strings.Repeat("好", 41) {
		t.Errorf("truncated mid-rune: %q", got)
	}
	if truncateReason("short") != "short" {
		t.Error("short reason changed")
	}
}
