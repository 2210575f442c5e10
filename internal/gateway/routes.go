package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atmo-climate/atmo/internal/export"
)

// SessionHeader carries the session ID of a streamed answer.
const SessionHeader = "X-Session-ID"

// RegisterRoutes mounts the question and session API routes.
func RegisterRoutes(r chi.Router, g *Gateway) {
	RegisterStreamRoutes(r, g)
	RegisterSessionRoutes(r, g)
}

// RegisterStreamRoutes mounts the routes that stream answers. They run for
// as long as the model takes and must not sit behind a request timeout.
func RegisterStreamRoutes(r chi.Router, g *Gateway) {
	r.Post("/ask", handleAsk(g))
	r.Get("/ws/ask", handleWebSocket(g))
}

// RegisterSessionRoutes mounts the history, session and export routes.
func RegisterSessionRoutes(r chi.Router, g *Gateway) {
	r.Get("/history/{id}", handleHistory(g))
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", handleListSessions(g))
		r.Get("/{id}", handleGetSession(g))
		r.Delete("/{id}", handleDeleteSession(g))
		r.Get("/{id}/export", handleExport(g))
	})
}

type askRequest struct {
	Question  *string `json:"question" validate:"required,max=8000"`
	SessionID string  `json:"session_id" validate:"omitempty,max=128"`
}

// handleAsk streams the answer as plain text: thoughts and facts wrapped
// in markers, answer chunks as they arrive. The session ID is returned in
// a header since the body carries no envelope.
func handleAsk(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		turn, err := g.Begin(r.Context(), req.SessionID, *req.Question)
		if err != nil {
			var setup *SetupError
			if errors.As(err, &setup) {
				w.Header().Set(SessionHeader, setup.SessionID)
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set(SessionHeader, turn.SessionID)
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		for f := range turn.Fragments() {
			if _, err := io.WriteString(w, f.Wire()); err != nil {
				g.logger.Info("client went away", zap.String("session_id", turn.SessionID), zap.Error(err))
				return
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				g.logger.Info("client went away", zap.String("session_id", turn.SessionID), zap.Error(err))
				return
			}
		}
	}
}

func handleListSessions(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := g.store.ListSessions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

func handleGetSession(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		msgs, err := g.store.Messages(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       id,
			"messages": msgs,
		})
	}
}

func handleHistory(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := g.store.Messages(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleDeleteSession(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		n, err := g.store.DeleteSession(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if n == 0 {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": n})
	}
}

func handleExport(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		msgs, err := g.store.Messages(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(msgs) == 0 {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		content, contentType, err := export.Render(r.URL.Query().Get("format"), id, msgs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, content)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
