package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"auditorium/internal/chat"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// MaxRenderersPerSession is the maximum WebSocket connections per session
	MaxRenderersPerSession = 4

	// SnapshotInterval is how often each session's snapshot is pushed
	SnapshotInterval = 100 * time.Millisecond

	writeWait = 2 * time.Second

	// maxCommandBytes bounds one inbound renderer frame, the same as an HTTP body.
	maxCommandBytes = maxBodyBytes
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if IsAllowedOrigin(origin) {
			return true
		}

		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsClient is one renderer connection bound to a single session.
type wsClient struct {
	conn      *websocket.Conn
	ip        string
	sessionID string
}

// sessionMessage is a payload addressed to the clients of one session.
type sessionMessage struct {
	sessionID string
	data      []byte
	close     bool
}

// wsCommand is an inbound renderer message.
type wsCommand struct {
	Event string `json:"event"`
	Text  string `json:"text"`
}

// WebSocketHub fans scene snapshots out to the renderers of each session.
// A client only ever receives messages for the session it joined.
type WebSocketHub struct {
	sessions    SessionStore
	chatLimiter *chat.RateLimiter

	clients    map[*websocket.Conn]*wsClient
	broadcast  chan sessionMessage
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	joins *JoinLimiter

	done     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a new hub. A nil joins uses the default
// total, per-IP and per-session connection limits.
func NewWebSocketHub(sessions SessionStore, chatLimiter *chat.RateLimiter, joins *JoinLimiter) *WebSocketHub {
	if joins == nil {
		joins = NewJoinLimiter(MaxWSConnectionsTotal, MaxWSConnectionsPerIP, MaxRenderersPerSession)
	}
	return &WebSocketHub{
		sessions:    sessions,
		chatLimiter: chatLimiter,
		clients:     make(map[*websocket.Conn]*wsClient),
		broadcast:   make(chan sessionMessage, 256),
		register:    make(chan *wsClient),
		unregister:  make(chan *websocket.Conn),
		joins:       joins,
		done:        make(chan struct{}),
	}
}

// Run owns every connection write. It returns after Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.joins.Release(client.sessionID, client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client joined session %s from %s (%d total)", client.sessionID, client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *WebSocketHub) deliver(msg sessionMessage) {
	h.mu.RLock()
	var targets []*websocket.Conn
	for conn, client := range h.clients {
		if client.sessionID == msg.sessionID {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.TextMessage, msg.data)
		if err != nil || msg.close {
			h.remove(conn)
			continue
		}
		IncrementWSMessages()
	}
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		h.joins.Release(client.sessionID, client.ip)
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		log.Printf("📱 Client left session %s (%d remaining)", client.sessionID, count)
		UpdateWSConnections(count)
	}
}

// Stop ends Run and the broadcast loop and closes every connection.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues an event for the clients of sessionID.
func (h *WebSocketHub) Broadcast(sessionID, event string, data interface{}) {
	h.send(sessionID, event, data, false)
}

func (h *WebSocketHub) send(sessionID, event string, data interface{}, closeAfter bool) {
	jsonBytes, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, data: jsonBytes, close: closeAfter}:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// watchedSessions returns the distinct sessions that have at least one client.
func (h *WebSocketHub) watchedSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, client := range h.clients {
		if _, ok := seen[client.sessionID]; ok {
			continue
		}
		seen[client.sessionID] = struct{}{}
		ids = append(ids, client.sessionID)
	}
	return ids
}

// StartBroadcastLoop pushes each watched session's snapshot every SnapshotInterval.
// Clients of a session that has been deleted get a final scene:closed and are dropped.
func (h *WebSocketHub) StartBroadcastLoop() {
	ticker := time.NewTicker(SnapshotInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
			}

			for _, id := range h.watchedSessions() {
				sc, ok := h.sessions.Get(id)
				if !ok {
					h.send(id, "scene:closed", map[string]string{"sessionId": id}, true)
					continue
				}
				h.Broadcast(id, "scene:snapshot", sc.Snapshot())
			}
		}
	}()
}

// HandleWebSocket joins a renderer to the session named by ?session=.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	sessionID := r.URL.Query().Get("session")
	if _, ok := h.sessions.Get(sessionID); !ok {
		RecordConnectionRejected("invalid")
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}

	if err := h.joins.Acquire(sessionID, ip); err != nil {
		log.Printf("⚠️ WebSocket connection to session %s rejected from %s: %v", sessionID, ip, err)
		RecordConnectionRejected("ws_limit")
		status := http.StatusTooManyRequests
		if errors.Is(err, ErrJoinsFull) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.joins.Release(sessionID, ip)
		return
	}

	client := &wsClient{conn: conn, ip: ip, sessionID: sessionID}
	select {
	case h.register <- client:
	case <-h.done:
		h.joins.Release(sessionID, ip)
		conn.Close()
		return
	}

	go h.readLoop(client)
}

// readLoop handles renderer commands until the connection drops.
func (h *WebSocketHub) readLoop(client *wsClient) {
	defer func() {
		select {
		case h.unregister <- client.conn:
		case <-h.done:
		}
	}()

	client.conn.SetReadLimit(maxCommandBytes)
	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Printf("⚠️ Oversized frame from %s on session %s, closing", client.ip, client.sessionID)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		switch cmd.Event {
		case "chat:send":
			h.handleChat(client.sessionID, cmd.Text)
		default:
			log.Printf("📨 Unknown WebSocket event %q from %s", cmd.Event, client.ip)
		}
	}
}

func (h *WebSocketHub) handleChat(sessionID, text string) {
	sc, ok := h.sessions.Get(sessionID)
	if !ok {
		return
	}
	if h.chatLimiter != nil && !h.chatLimiter.Allow(sessionID) {
		h.Broadcast(sessionID, "chat:rejected", map[string]string{"reason": "rate_limit"})
		return
	}
	if _, err := sc.SendChat(text); err != nil {
		log.Printf("⚠️ Chat for session %s dropped: %v", sessionID, err)
	}
}
