package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"auditorium/internal/presentation"
	"auditorium/internal/scene"
	"auditorium/internal/seating"
	"auditorium/internal/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 10

// handleHealth reports liveness with the session and limiter counters.
func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "ok",
		"sessions": h.sessions.Len(),
		"requests": h.rateLimiter.Stats(),
	}
	if h.joins != nil {
		health["renderers"] = h.joins.Stats()
	}
	writeJSON(w, health)
}

func (h *routerHandlers) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.catalog)
}

func (h *routerHandlers) handleGetSeats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.catalog.Slots)
}

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req scene.Params
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	sc, err := h.sessions.Create(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, scene.ErrInvalidParams):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrTooManySessions):
		RecordConnectionRejected("session_limit")
		writeError(w, "Auditorium is full", http.StatusServiceUnavailable)
		return
	case errors.Is(err, seating.ErrNoSeats), errors.Is(err, seating.ErrNoAvatars):
		log.Printf("❌ Auditorium misconfigured: %v", err)
		writeError(w, "Auditorium unavailable", http.StatusInternalServerError)
		return
	default:
		log.Printf("❌ Scene entry failed: %v", err)
		writeError(w, "Scene entry failed", http.StatusInternalServerError)
		return
	}

	UpdateActiveSessions(h.sessions.Len())
	writeJSONStatus(w, http.StatusCreated, map[string]interface{}{
		"sessionId": sc.ID(),
		"snapshot":  sc.Snapshot(),
	})
}

// sessionFromRequest resolves {id} or writes a 404.
func (h *routerHandlers) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*scene.Scene, bool) {
	sc, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sc, true
}

func (h *routerHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, sc.Snapshot())
}

func (h *routerHandlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sessions.Delete(id) {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	if h.chatLimiter != nil {
		h.chatLimiter.Forget(id)
	}
	UpdateActiveSessions(h.sessions.Len())
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleSendChat(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if h.chatLimiter != nil && !h.chatLimiter.Allow(sc.ID()) {
		w.Header().Set("Retry-After", "1")
		writeError(w, "Slow down", http.StatusTooManyRequests)
		return
	}

	if _, err := sc.SendChat(req.Text); err != nil {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleGetCountdown(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	cd, err := sc.Countdown()
	if err != nil {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, cd)
}

// handleGetScreen renders the pre-show placeholder. Once the presentation has
// started the renderer plays the video itself.
func (h *routerHandlers) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	cd, err := sc.Countdown()
	if err != nil {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	if cd.Started {
		writeError(w, "Presentation is playing", http.StatusConflict)
		return
	}

	var buf bytes.Buffer
	if err := presentation.RenderPlaceholder(&buf, h.screenWidth, h.screenHeight, cd.Formatted); err != nil {
		log.Printf("⚠️ Placeholder render failed: %v", err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
