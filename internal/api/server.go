package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"auditorium/internal/chat"
)

// ServerConfig configures NewServer. The zero value is production-ready.
type ServerConfig struct {
	Catalog        *Catalog
	StaticFilesDir string
	CORSOrigins    []string
	ScreenWidth    int
	ScreenHeight   int
	DisableLogging bool

	// RateLimit overrides DefaultRateLimitConfig when non-nil.
	RateLimit *RateLimitConfig
	// Chat overrides chat.DefaultRateLimitConfig when non-nil.
	Chat *chat.RateLimitConfig
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	sessions    SessionStore
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	chatLimiter *chat.RateLimiter
	joins       *JoinLimiter

	mu          sync.Mutex
	httpServer  *http.Server
	shutdown    bool
	workersOnce sync.Once
	stopOnce    sync.Once
}

// NewServer creates a new API server over sessions.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(sessions SessionStore, cfg ServerConfig) *Server {
	rateCfg := DefaultRateLimitConfig
	if cfg.RateLimit != nil {
		rateCfg = *cfg.RateLimit
	}
	chatCfg := chat.DefaultRateLimitConfig
	if cfg.Chat != nil {
		chatCfg = *cfg.Chat
	}

	s := &Server{
		sessions:    sessions,
		rateLimiter: NewIPRateLimiter(rateCfg),
		chatLimiter: chat.NewRateLimiter(chatCfg),
		joins:       NewJoinLimiter(MaxWSConnectionsTotal, MaxWSConnectionsPerIP, MaxRenderersPerSession),
	}
	s.wsHub = NewWebSocketHub(sessions, s.chatLimiter, s.joins)

	s.router = NewRouter(RouterConfig{
		Sessions:       sessions,
		Catalog:        cfg.Catalog,
		ChatLimiter:    s.chatLimiter,
		RateLimiter:    s.rateLimiter,
		Joins:          s.joins,
		CORSOrigins:    cfg.CORSOrigins,
		StaticFilesDir: cfg.StaticFilesDir,
		ScreenWidth:    cfg.ScreenWidth,
		ScreenHeight:   cfg.ScreenHeight,
		DisableLogging: cfg.DisableLogging,
	})

	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket-specific routes to the router.
// These routes need access to the wsHub instance, so they can't be
// part of the generic NewRouter factory.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.wsHub.HandleWebSocket)
}

// startWorkers runs the hub and the snapshot broadcaster once.
func (s *Server) startWorkers() {
	s.workersOnce.Do(func() {
		go s.wsHub.Run()
		s.wsHub.StartBroadcastLoop()
	})
}

// Start begins the HTTP server AND starts background workers.
// This is the ONLY method that opens network listeners. It blocks until
// Shutdown and returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.startWorkers()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🎭 Auditorium: http://localhost%s/app/", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and then stops
// the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.Stop()
	return err
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(store, api.ServerConfig{})
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/catalog")
func (s *Server) Router() http.Handler {
	return s.router
}

// Stats reports the limiter counters for the debug server.
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"requests":  s.rateLimiter.Stats(),
		"renderers": s.joins.Stats(),
	}
}

// Stop performs graceful shutdown of background workers.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.wsHub.Stop()
		s.rateLimiter.Stop()
		s.chatLimiter.Stop()
	})
}
