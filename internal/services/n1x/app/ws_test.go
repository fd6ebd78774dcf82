package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/narrative"
	"github.com/louisbranch/n1x/internal/services/n1x/storage"
	"golang.org/x/net/websocket"
)

type fakeGenerator struct {
	mu       sync.Mutex
	output   string
	err      error
	requests []narrative.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req narrative.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.output, f.err
}

func (f *fakeGenerator) calls() []narrative.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]narrative.Request(nil), f.requests...)
}

func newTestServer(t *testing.T, deps Dependencies) *httptest.Server {
	t.Helper()
	if deps.Store == nil {
		deps.Store = storage.NewMemory()
	}
	handler, stop := NewHandler(deps, time.Second)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		stop()
	})
	return srv
}

func dialWSWithServerURL(httpURL string, path string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	return websocket.Dial(wsURL, "", httpURL)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, err := dialWSWithServerURL(srv.URL, "/ws")
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := websocket.JSON.Send(conn, frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Frame
	if err := websocket.JSON.Receive(conn, &got); err != nil {
		t.Fatalf("receive server frame: %v", err)
	}
	return got
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) Frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		if got := readFrame(t, conn); got.Type == typ {
			return got
		}
	}
	t.Fatalf("no %q frame within 20 frames", typ)
	return Frame{}
}

func join(t *testing.T, conn *websocket.Conn, roomID, handle string, trust int, fragments ...string) Frame {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":      "join",
		"room":      roomID,
		"handle":    handle,
		"trust":     trust,
		"fragments": fragments,
	})
	got := readFrame(t, conn)
	if got.Type != "init" {
		t.Fatalf("frame type = %q, want init", got.Type)
	}
	return got
}

func TestUpEndpoint(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	resp, err := http.Post(srv.URL+"/ws", "application/json", nil)
	if err != nil {
		t.Fatalf("post /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebSocketJoinReturnsInit(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	conn := dialWS(t, srv)

	got := join(t, conn, "lobby", "ada", 2, "f001")
	if got.Room != "lobby" || got.Handle != "ada" {
		t.Fatalf("init = %+v", got)
	}
	if got.Effective == nil || *got.Effective != 2 {
		t.Fatalf("effective trust = %v", got.Effective)
	}
	if got.Snapshot == nil || got.Snapshot.Daemon.String() != "dormant" || len(got.Fragments) != 1 {
		t.Fatalf("init snapshot = %+v", got.Snapshot)
	}
	if got.TS == 0 {
		t.Fatal("expected ts on frame")
	}
}

func TestWebSocketMeshModeAndChatFanOut(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	ada := dialWS(t, srv)
	bo := dialWS(t, srv)

	join(t, ada, "lobby", "ada", 1)
	readUntil(t, ada, "state_update")
	join(t, bo, "lobby", "bo", 0)

	notice := readFrame(t, ada)
	if notice.Type != "join" || notice.Handle != "bo" {
		t.Fatalf("join notice = %+v", notice)
	}
	mode := readFrame(t, ada)
	if mode.Type != "system" || mode.Mode != "mesh" {
		t.Fatalf("mode notice = %+v", mode)
	}
	readUntil(t, ada, "state_update")
	readUntil(t, bo, "state_update")

	for _, text := range []string{"first", "second"} {
		writeFrame(t, ada, map[string]any{"type": "chat", "text": text})
	}
	for _, conn := range []*websocket.Conn{ada, bo} {
		first := readUntil(t, conn, "chat")
		second := readUntil(t, conn, "chat")
		if first.Text != "first" || second.Text != "second" || first.Seq != 1 || second.Seq != 2 {
			t.Fatalf("chat order = %q(%d) %q(%d)", first.Text, first.Seq, second.Text, second.Seq)
		}
	}
}

func TestWebSocketNarrativeReply(t *testing.T) {
	gen := &fakeGenerator{output: "i hear you [[n1x:test-pass]]"}
	srv := newTestServer(t, Dependencies{Generator: gen})
	conn := dialWS(t, srv)
	join(t, conn, "lobby", "ada", 1)

	writeFrame(t, conn, map[string]any{"type": "chat", "text": "@n1x are you there"})
	reply := readUntil(t, conn, "n1x_response")
	if reply.Text != "i hear you" || reply.Handle != "N1X" {
		t.Fatalf("reply = %+v", reply)
	}
	calls := gen.calls()
	if len(calls) != 1 || calls[0].Handle != "ada" || calls[0].Policy.Level != 1 || calls[0].Room == nil {
		t.Fatalf("generator calls = %+v", calls)
	}
}

func TestWebSocketNarrativeFailureKeepsBookkeeping(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream down")}
	srv := newTestServer(t, Dependencies{Generator: gen})
	conn := dialWS(t, srv)
	join(t, conn, "lobby", "ada", 1)

	writeFrame(t, conn, map[string]any{"type": "chat", "text": "@n1x ping"})
	update := readUntil(t, conn, "state_update")
	if update.Snapshot == nil || update.Snapshot.Activity != 3 {
		t.Fatalf("state update = %+v", update.Snapshot)
	}
	writeFrame(t, conn, map[string]any{"type": "chat", "text": "still here"})
	if next := readUntil(t, conn, "chat"); next.Text != "still here" {
		t.Fatalf("next chat = %+v", next)
	}
}

func TestWebSocketLeaveReturnsSync(t *testing.T) {
	store := storage.NewMemory()
	srv := newTestServer(t, Dependencies{Store: store})
	conn := dialWS(t, srv)
	join(t, conn, "lobby", "ada", 2, "f003")

	writeFrame(t, conn, map[string]any{"type": "fragment", "fragment": "f004"})
	readUntil(t, conn, "state_update")
	writeFrame(t, conn, map[string]any{"type": "leave"})
	sync := readUntil(t, conn, "sync")
	if sync.Effective == nil || *sync.Effective != 2 {
		t.Fatalf("sync = %+v", sync)
	}
	if strings.Join(sync.Fragments, ",") != "f003,f004" {
		t.Fatalf("sync fragments = %v", sync.Fragments)
	}

	stored, err := store.GetRoom(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("stored room: %v", err)
	}
	if len(stored.Fragments) != 2 {
		t.Fatalf("stored fragments = %v", stored.Fragments)
	}
}

func TestWebSocketDropsMalformedFrames(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	conn := dialWS(t, srv)

	if err := websocket.Message.Send(conn, "{not json"); err != nil {
		t.Fatalf("send raw: %v", err)
	}
	writeFrame(t, conn, map[string]any{"type": "chat", "text": "before join"})
	writeFrame(t, conn, map[string]any{"type": "bogus"})
	join(t, conn, "lobby", "ada", 0)
}

func TestWebSocketDuplicateHandleIsSuffixed(t *testing.T) {
	srv := newTestServer(t, Dependencies{})
	first := dialWS(t, srv)
	second := dialWS(t, srv)

	join(t, first, "lobby", "ada", 1)
	got := join(t, second, "lobby", "ada", 1)
	if got.Handle != "ada-2" {
		t.Fatalf("second handle = %q", got.Handle)
	}
}
