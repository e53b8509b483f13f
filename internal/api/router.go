package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"auditorium/internal/chat"
	"auditorium/internal/presentation"
	"auditorium/internal/scene"
	"auditorium/internal/seating"
)

// SessionStore is the subset of the session store used by the API.
// *session.Store satisfies it.
type SessionStore interface {
	// Create enters and starts a new scene
	Create(ctx context.Context, p scene.Params) (*scene.Scene, error)
	// Get returns a live scene by session id
	Get(id string) (*scene.Scene, bool)
	// Delete tears a scene down
	Delete(id string) bool
	// Len returns the number of live scenes
	Len() int
}

// Catalog is the static auditorium description served to the renderer.
type Catalog struct {
	Selectable []seating.SelectableAvatar `json:"selectable"`
	Guests     []seating.AvatarID         `json:"guests"`
	Slots      []seating.Slot             `json:"-"`
}

// DefaultCatalog is the canonical auditorium catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Selectable: seating.DefaultSelectable(),
		Guests:     seating.DefaultCatalog(),
		Slots:      seating.DefaultSlots(),
	}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Sessions: session.NewStore(scene.DefaultConfig(), deps, 10),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Sessions is the live scene store (required)
	Sessions SessionStore

	// Catalog describes avatars and seats. Zero value uses DefaultCatalog.
	Catalog *Catalog

	// ChatLimiter is an optional per-session chat send limiter.
	ChatLimiter *chat.RateLimiter

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// Joins is the renderer connection limiter, reported by /health when set.
	Joins *JoinLimiter

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, localhost origins are allowed.
	CORSOrigins []string

	// StaticFilesDir is the directory the renderer client is served from.
	// If empty, defaults to "./web".
	StaticFilesDir string

	// ScreenWidth and ScreenHeight size the placeholder PNG.
	ScreenWidth  int
	ScreenHeight int

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler dependencies.
type routerHandlers struct {
	sessions     SessionStore
	catalog      Catalog
	chatLimiter  *chat.RateLimiter
	rateLimiter  *IPRateLimiter
	joins        *JoinLimiter
	screenWidth  int
	screenHeight int
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE - it has no side effects:
//   - No network listeners are opened
//   - No scenes are created
//
// The only goroutine started is the limiter cleanup, unless a limiter is passed in.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	catalog := DefaultCatalog()
	if cfg.Catalog != nil {
		catalog = *cfg.Catalog
	}
	width, height := cfg.ScreenWidth, cfg.ScreenHeight
	if width <= 0 || height <= 0 {
		width, height = presentation.DefaultScreenWidth/4, presentation.DefaultScreenHeight/4
	}

	h := &routerHandlers{
		sessions:     cfg.Sessions,
		catalog:      catalog,
		chatLimiter:  cfg.ChatLimiter,
		rateLimiter:  rateLimiter,
		joins:        cfg.Joins,
		screenWidth:  width,
		screenHeight: height,
	}

	r.Route("/api", func(r chi.Router) {
		// Static auditorium description
		r.Get("/catalog", h.handleGetCatalog)
		r.Get("/seats", h.handleGetSeats)

		// Sessions
		r.With(rateLimiter.CreateMiddleware).Post("/sessions", h.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDeleteSession)
			r.Post("/chat", h.handleSendChat)
			r.Get("/countdown", h.handleGetCountdown)
			r.Get("/screen.png", h.handleGetScreen)
		})
	})

	r.Get("/health", h.handleHealth)

	// Renderer client
	staticDir := cfg.StaticFilesDir
	if staticDir == "" {
		staticDir = "./web"
	}
	r.Handle("/app/*", http.StripPrefix("/app/", http.FileServer(http.Dir(staticDir))))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/app/", http.StatusFound)
	})

	return r
}
