package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client request limits.
type RateLimitConfig struct {
	RequestsPerSecond float64       // Any API request, per client IP
	Burst             int           // Burst for RequestsPerSecond
	CreatesPerMinute  float64       // POST /api/sessions per client IP, 0 disables
	CreateBurst       int           // Burst for CreatesPerMinute
	CleanupInterval   time.Duration // How often idle clients are forgotten
}

// DefaultRateLimitConfig returns production-safe defaults
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 10,
	Burst:             20,
	CreatesPerMinute:  6,
	CreateBurst:       3,
	CleanupInterval:   5 * time.Minute,
}

// clientBuckets holds the token buckets of one client IP.
type clientBuckets struct {
	requests *rate.Limiter
	creates  *rate.Limiter // nil when session creates are not limited separately
	lastSeen atomic.Int64  // unix nanos
}

// RequestStats is a point-in-time view of an IPRateLimiter.
type RequestStats struct {
	Clients         int    `json:"clients"`
	Allowed         uint64 `json:"allowed"`
	Rejected        uint64 `json:"rejected"`
	CreatesRejected uint64 `json:"createsRejected"`
}

// IPRateLimiter throttles API requests per client IP, with a tighter bucket
// for session creation since every create builds a full scene.
type IPRateLimiter struct {
	clients  sync.Map // map[string]*clientBuckets
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once

	allowed         atomic.Uint64
	rejected        atomic.Uint64
	createsRejected atomic.Uint64
}

// NewIPRateLimiter creates the limiter and its idle-client cleanup goroutine.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		config:   cfg,
		stopChan: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop stops the cleanup goroutine
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

func (rl *IPRateLimiter) buckets(ip string) *clientBuckets {
	now := time.Now().UnixNano()
	if v, ok := rl.clients.Load(ip); ok {
		b := v.(*clientBuckets)
		b.lastSeen.Store(now)
		return b
	}

	b := &clientBuckets{
		requests: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
	}
	if rl.config.CreatesPerMinute > 0 {
		b.creates = rate.NewLimiter(rate.Limit(rl.config.CreatesPerMinute/60), max(rl.config.CreateBurst, 1))
	}
	b.lastSeen.Store(now)

	actual, _ := rl.clients.LoadOrStore(ip, b)
	return actual.(*clientBuckets)
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *IPRateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.config.CleanupInterval * 2).UnixNano()
	rl.clients.Range(func(key, value interface{}) bool {
		if value.(*clientBuckets).lastSeen.Load() < cutoff {
			rl.clients.Delete(key)
		}
		return true
	})
}

// Allow reports whether ip may make another API request.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.buckets(ip).requests.Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// AllowCreate reports whether ip may create another session.
func (rl *IPRateLimiter) AllowCreate(ip string) bool {
	b := rl.buckets(ip)
	if b.creates == nil || b.creates.Allow() {
		return true
	}
	rl.createsRejected.Add(1)
	return false
}

// Middleware applies the general request limit.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateMiddleware applies the session-create limit. Mount it on the create route only.
func (rl *IPRateLimiter) CreateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowCreate(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "10")
			writeError(w, "Too many sessions created, try again shortly", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats returns the request counters and how many clients are tracked.
func (rl *IPRateLimiter) Stats() RequestStats {
	clients := 0
	rl.clients.Range(func(_, _ interface{}) bool {
		clients++
		return true
	})
	return RequestStats{
		Clients:         clients,
		Allowed:         rl.allowed.Load(),
		Rejected:        rl.rejected.Load(),
		CreatesRejected: rl.createsRejected.Load(),
	}
}

// GetClientIP extracts the client IP from an HTTP request
// Handles X-Forwarded-For header for proxied requests
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the client.
		// CAUTION: This can be spoofed if not behind a trusted proxy
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

var (
	ErrJoinsFull       = errors.New("too many renderer connections")
	ErrJoinsPerIP      = errors.New("too many renderer connections from this address")
	ErrJoinsPerSession = errors.New("too many renderers on this session")
)

// JoinStats is a point-in-time view of a JoinLimiter.
type JoinStats struct {
	Renderers int    `json:"renderers"`
	Sessions  int    `json:"sessions"`
	Rejected  uint64 `json:"rejected"`
}

// JoinLimiter caps concurrent renderer connections overall, per client IP
// and per session. A session normally has one renderer; a second tab or an
// overlapping reconnect can briefly add another.
type JoinLimiter struct {
	maxTotal      int
	maxPerIP      int
	maxPerSession int

	mu         sync.Mutex
	total      int
	perIP      map[string]int
	perSession map[string]int

	rejected atomic.Uint64
}

// NewJoinLimiter creates a limiter. A limit <= 0 is not enforced.
func NewJoinLimiter(maxTotal, maxPerIP, maxPerSession int) *JoinLimiter {
	return &JoinLimiter{
		maxTotal:      maxTotal,
		maxPerIP:      maxPerIP,
		maxPerSession: maxPerSession,
		perIP:         make(map[string]int),
		perSession:    make(map[string]int),
	}
}

// Acquire reserves a renderer slot for sessionID from ip. Every nil return
// must be paired with one Release.
func (l *JoinLimiter) Acquire(sessionID, ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	switch {
	case l.maxTotal > 0 && l.total >= l.maxTotal:
		err = ErrJoinsFull
	case l.maxPerIP > 0 && l.perIP[ip] >= l.maxPerIP:
		err = ErrJoinsPerIP
	case l.maxPerSession > 0 && l.perSession[sessionID] >= l.maxPerSession:
		err = ErrJoinsPerSession
	}
	if err != nil {
		l.rejected.Add(1)
		return err
	}

	l.total++
	l.perIP[ip]++
	l.perSession[sessionID]++
	return nil
}

// Release frees a slot taken by Acquire. Empty entries are dropped so the
// maps only hold live sessions and addresses.
func (l *JoinLimiter) Release(sessionID, ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.perSession[sessionID] == 0 || l.perIP[ip] == 0 {
		return
	}
	l.total--
	if l.perIP[ip]--; l.perIP[ip] == 0 {
		delete(l.perIP, ip)
	}
	if l.perSession[sessionID]--; l.perSession[sessionID] == 0 {
		delete(l.perSession, sessionID)
	}
}

// Joined returns how many renderers hold a slot on sessionID.
func (l *JoinLimiter) Joined(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perSession[sessionID]
}

// Stats returns the current renderer counts.
func (l *JoinLimiter) Stats() JoinStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return JoinStats{
		Renderers: l.total,
		Sessions:  len(l.perSession),
		Rejected:  l.rejected.Load(),
	}
}

// AllowedOrigins are the renderer origins accepted by CORS and the WebSocket upgrader.
var AllowedOrigins = []string{
	"http://localhost",
	"http://127.0.0.1",
}

// IsAllowedOrigin accepts an allowed origin exactly or with any port.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range AllowedOrigins {
		if origin == allowed || strings.HasPrefix(origin, allowed+":") {
			return true
		}
	}
	return false
}
