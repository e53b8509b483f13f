package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"auditorium/internal/clock"
	"auditorium/internal/scene"
	"auditorium/internal/seating"
	"auditorium/internal/session"
)

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newWSServer(t *testing.T) (*Server, *session.Store, *httptest.Server) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	store := session.NewStore(scene.DefaultConfig(), func() scene.Deps {
		return scene.Deps{Clock: clk, Rand: seating.NewRand(3)}
	}, 0)

	srv := NewServer(store, ServerConfig{
		DisableLogging: true,
		RateLimit:      &RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Hour},
	})
	srv.startWorkers()
	ts := httptest.NewServer(srv.Router())

	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
		store.CloseAll()
	})
	return srv, store, ts
}

func dialSession(t *testing.T, ts *httptest.Server, sessionID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + sessionID
	header := http.Header{}
	header.Set("Origin", "http://localhost")
	return websocket.DefaultDialer.Dial(url, header)
}

// readUntil returns the first message with the given event.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad message %s: %v", data, err)
		}
		if env.Event == event {
			return env
		}
	}
}

func TestWebSocketPushesOwnSessionOnly(t *testing.T) {
	_, store, ts := newWSServer(t)

	alice, err := store.Create(t.Context(), scene.Params{AvatarID: "woman.glb", Pseudonym: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	bob, err := store.Create(t.Context(), scene.Params{AvatarID: "manTest.glb", Pseudonym: "Bob"})
	if err != nil {
		t.Fatal(err)
	}

	connA, _, err := dialSession(t, ts, alice.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer connA.Close()
	connB, _, err := dialSession(t, ts, bob.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer connB.Close()

	for i := 0; i < 3; i++ {
		var snap scene.Snapshot
		json.Unmarshal(readUntil(t, connA, "scene:snapshot").Data, &snap)
		if snap.SessionID != alice.ID() {
			t.Fatalf("alice received snapshot of %s", snap.SessionID)
		}
		json.Unmarshal(readUntil(t, connB, "scene:snapshot").Data, &snap)
		if snap.SessionID != bob.ID() {
			t.Fatalf("bob received snapshot of %s", snap.SessionID)
		}
	}
}

func TestWebSocketChatCommand(t *testing.T) {
	_, store, ts := newWSServer(t)

	sc, err := store.Create(t.Context(), scene.Params{AvatarID: "woman.glb", Pseudonym: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := dialSession(t, ts, sc.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"event": "chat:send", "text": "hi all"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		var snap scene.Snapshot
		json.Unmarshal(readUntil(t, conn, "scene:snapshot").Data, &snap)
		if local, ok := snap.Seat(snap.LocalSeat); ok && local.Chat != nil {
			if local.Chat.Text != "hi all" {
				t.Errorf("bubble text = %q", local.Chat.Text)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("chat bubble never appeared in a snapshot")
		}
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	_, _, ts := newWSServer(t)

	_, resp, err := dialSession(t, ts, "missing")
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %+v", resp)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	_, store, ts := newWSServer(t)
	sc, err := store.Create(t.Context(), scene.Params{AvatarID: "woman.glb", Pseudonym: "Alice"})
	if err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + sc.ID()
	header := http.Header{}
	header.Set("Origin", "https://example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected origin rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}
}

func TestWebSocketClosedWhenSessionDeleted(t *testing.T) {
	srv, store, ts := newWSServer(t)
	sc, err := store.Create(t.Context(), scene.Params{AvatarID: "woman.glb", Pseudonym: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := dialSession(t, ts, sc.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	readUntil(t, conn, "scene:snapshot")
	store.Delete(sc.ID())
	readUntil(t, conn, "scene:closed")

	deadline := time.Now().Add(2 * time.Second)
	for srv.wsHub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d clients still registered", srv.wsHub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketOversizedFrameClosesConnection(t *testing.T) {
	srv, store, ts := newWSServer(t)
	sc, err := store.Create(t.Context(), scene.Params{AvatarID: "woman.glb", Pseudonym: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := dialSession(t, ts, sc.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readUntil(t, conn, "scene:snapshot")

	// The server may reset the socket before the whole frame is written
	huge := map[string]string{"event": "chat:send", "text": strings.Repeat("x", 64<<10)}
	_ = conn.WriteJSON(huge)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Fatal("oversized frame did not close the connection")
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.wsHub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d clients still registered", srv.wsHub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if srv.joins.Joined(sc.ID()) != 0 {
		t.Errorf("join slot not released")
	}
	snap := sc.Snapshot()
	if local, _ := snap.Seat(snap.LocalSeat); local.Chat != nil {
		t.Error("oversized chat should not reach the scene")
	}
}

func TestWebSocketRenderersPerSessionLimit(t *testing.T) {
	_, store, ts := newWSServer(t)
	sc, err := store.Create(t.Context(), scene.Params{AvatarID: "woman.glb", Pseudonym: "Alice"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < MaxRenderersPerSession; i++ {
		conn, _, err := dialSession(t, ts, sc.ID())
		if err != nil {
			t.Fatalf("renderer %d: %v", i, err)
		}
		defer conn.Close()
	}

	_, resp, err := dialSession(t, ts, sc.ID())
	if err == nil {
		t.Fatal("expected the extra renderer to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %+v", resp)
	}

	// Another session is unaffected
	other, err := store.Create(t.Context(), scene.Params{AvatarID: "manTest.glb", Pseudonym: "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := dialSession(t, ts, other.ID())
	if err != nil {
		t.Fatalf("other session: %v", err)
	}
	conn.Close()
}
