package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/codev612/hearnow/internal/config"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/storage/sqlite"
	"github.com/codev612/hearnow/internal/websocket"
	"github.com/codev612/hearnow/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Handler contains the API handlers
type Handler struct {
	sessionManager    *session.Manager
	sessionStorage    *sqlite.SessionStorage
	transcriptStorage *sqlite.TranscriptStorage
	assistantStorage  *sqlite.AssistantStorage
	config            *config.Config
	logger            *logger.Logger
	wsServer          *websocket.Server
}

// NewHandler creates a new API handler
func NewHandler(
	sessionManager *session.Manager,
	sessionStorage *sqlite.SessionStorage,
	transcriptStorage *sqlite.TranscriptStorage,
	assistantStorage *sqlite.AssistantStorage,
	cfg *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
) *Handler {
	return &Handler{
		sessionManager:    sessionManager,
		sessionStorage:    sessionStorage,
		transcriptStorage: transcriptStorage,
		assistantStorage:  assistantStorage,
		config:            cfg,
		logger:            log.Named("api-handler"),
		wsServer:          wsServer,
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing to do but note it.
		_ = err
	}
}

// CreateSession starts a new recording session
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		// An empty body is fine; the title is optional.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	record, err := h.sessionManager.StartSession(r.Context(), body.Title)
	if err != nil {
		h.logger.Error("Failed to start recording session", logger.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	WriteJSON(w, http.StatusCreated, record)
}

// StopSession ends the recording session with the given ID
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.sessionManager.StopSession(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	record, err := h.sessionStorage.GetSession(id)
	if err != nil {
		h.logger.Error("Failed to load ended session", logger.Error(err))
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// GetSessions lists past and current sessions, newest first
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	sessions, err := h.sessionStorage.GetSessions(limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve sessions", logger.Error(err))
		http.Error(w, "Failed to retrieve sessions", http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"timestamp":         time.Now(),
		"count":             len(sessions),
		"active_session_id": h.sessionManager.ActiveSessionID(),
		"sessions":          sessions,
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetSession returns a single session record
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.sessionStorage.GetSession(id)
	if err != nil {
		h.logger.Error("Failed to retrieve session", logger.Error(err))
		http.Error(w, "Failed to retrieve session", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.NotFound(w, r)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// GetTranscript returns the transcript bubbles for a session in insertion
// order
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, offset := parsePaginationParams(r)

	if max := h.config.Storage.MaxBubblesInAPI; max > 0 && limit > max {
		limit = max
	}

	bubbles, err := h.transcriptStorage.GetBubblesBySession(id, limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcript", logger.Error(err))
		http.Error(w, "Failed to retrieve transcript", http.StatusInternalServerError)
		return
	}

	total, err := h.transcriptStorage.CountBySession(id)
	if err != nil {
		h.logger.Error("Failed to count transcript bubbles", logger.Error(err))
		total = len(bubbles)
	}

	response := map[string]any{
		"timestamp":  time.Now(),
		"session_id": id,
		"count":      len(bubbles),
		"total":      total,
		"bubbles":    bubbles,
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetAssistantNotes returns the assistant summaries and suggested answers
// for a session, newest first
func (h *Handler) GetAssistantNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, offset := parsePaginationParams(r)

	notes, err := h.assistantStorage.GetNotesBySession(id, limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve assistant notes", logger.Error(err))
		http.Error(w, "Failed to retrieve assistant notes", http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"timestamp":  time.Now(),
		"session_id": id,
		"count":      len(notes),
		"notes":      notes,
	}

	WriteJSON(w, http.StatusOK, response)
}

// HandleWebSocket upgrades the connection and registers the client with the
// broadcast hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// Helper functions
func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100 // Default limit
	offset := 0  // Default offset

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}
