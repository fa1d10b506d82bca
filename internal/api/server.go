// Package api exposes the HTTP surface: the chat-data logging endpoint
// the widget submits to, the completion proxy, and quick prompts.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kapa-moon/creativity-ai/internal/collector"
	"github.com/kapa-moon/creativity-ai/internal/completion"
	"github.com/kapa-moon/creativity-ai/internal/fieldsink"
	"github.com/kapa-moon/creativity-ai/internal/summary"
)

type Server struct {
	sink       fieldsink.Sink
	completion completion.Client
	router     chi.Router
	port       int
}

func NewServer(sink fieldsink.Sink, cc completion.Client, port int) *Server {
	srv := &Server{
		sink:       sink,
		completion: cc,
		port:       port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Post("/chat-data", srv.handleChatData)
		r.Post("/chat", srv.handleChat)
		r.Post("/quick-prompts", srv.handleQuickPrompts)
	})

	srv.router = r
	return srv
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("starting HTTP API", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "creativity-ai",
	})
}

type chatDataRequest struct {
	SessionID string          `json:"sessionId"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
}

func (s *Server) handleChatData(w http.ResponseWriter, r *http.Request) {
	var req chatDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}

	switch req.Action {
	case "submitChatData":
		s.handleSubmitChatData(w, r, req)
	case "getChatSummary":
		s.handleGetChatSummary(w, r, req.SessionID)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown action: %s", req.Action),
		})
	}
}

func (s *Server) handleSubmitChatData(w http.ResponseWriter, r *http.Request, req chatDataRequest) {
	var compact summary.Compact
	if err := json.Unmarshal(req.Data, &compact); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid chat data"})
		return
	}
	if compact.SessionID == "" {
		compact.SessionID = req.SessionID
	}

	if err := collector.StoreCompact(r.Context(), s.sink, compact); err != nil {
		slog.Error("store chat data failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Chat data stored successfully",
		"sessionId":    compact.SessionID,
		"eventsLogged": len(compact.ConversationLog),
	})
}

func (s *Server) handleGetChatSummary(w http.ResponseWriter, r *http.Request, sessionID string) {
	fields, err := s.sink.GetAll(r.Context(), sessionID)
	if err != nil {
		slog.Error("load chat summary failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if len(fields) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"fields":    fields,
	})
}

type chatRequest struct {
	Message string            `json:"message"`
	History []completion.Turn `json:"history,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	reply, usage, err := s.completion.Complete(r.Context(), req.History, req.Message)
	if err != nil {
		var ce *completion.Error
		if !errors.As(err, &ce) {
			ce = completion.Classify(err)
		}
		slog.Error("completion failed", "kind", ce.Kind, "error", err)
		writeJSON(w, ce.HTTPStatus(), map[string]string{"error": ce.UserMessage()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": reply,
		"usage":   usage,
	})
}

type quickPromptsRequest struct {
	History []completion.Turn `json:"history,omitempty"`
}

func (s *Server) handleQuickPrompts(w http.ResponseWriter, r *http.Request) {
	var req quickPromptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	prompts, err := s.completion.QuickPrompts(r.Context(), req.History)
	if err != nil || len(prompts) == 0 {
		prompts = completion.FallbackQuickPrompts()
	}

	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
