package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fumbl3b/harryAi/internal/chat"
	apperrors "github.com/fumbl3b/harryAi/internal/errors"
	"github.com/fumbl3b/harryAi/internal/models"
	"go.uber.org/zap"
)

const defaultTranscriptLimit = 50

// Conversation is the process-wide chat the message endpoints drive.
type Conversation interface {
	Dispatch(text string) error
	Snapshot() chat.Snapshot
	ClearChat()
}

// Transcript lists recorded turns.
type Transcript interface {
	ListTurns(ctx context.Context, limit int) ([]models.TurnRecord, error)
}

type readiness interface {
	Ready() error
}

type Handler struct {
	conv       Conversation
	client     chat.Completer
	transcript Transcript
	logger     *zap.Logger
}

// NewHandler wires the HTTP surface. transcript may be nil, in which case
// the transcript endpoint answers 404.
func NewHandler(conv Conversation, client chat.Completer, transcript Transcript, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		conv:       conv,
		client:     client,
		transcript: transcript,
		logger:     logger,
	}
}

type ChatRequest struct {
	Messages []models.Message `json:"messages"`
}

type ChatResponse struct {
	Message models.Message `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", h.HandleChat)
	mux.HandleFunc("/api/message", h.HandleMessage)
	mux.HandleFunc("/api/messages", h.HandleMessages)
	mux.HandleFunc("/api/transcript", h.HandleTranscript)
}

// HandleChat completes a caller-supplied history without touching the
// process conversation.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !h.preflight(w, r, http.MethodPost) {
		return
	}

	if rc, ok := h.client.(readiness); ok {
		if err := rc.Ready(); err != nil {
			h.logger.Error("No API key configured", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Server configuration error: Missing API key",
				"The API key is not set in environment variables")
			return
		}
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	payload, dropped, err := models.Sanitize(req.Messages)
	if err != nil {
		if req.Messages == nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body: messages array is required", "")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid request body", apperrors.Detail(err))
		return
	}
	if dropped > 0 {
		h.logger.Warn("Removed invalid messages from history", zap.Int("dropped", dropped))
	}

	h.logger.Debug("Completing conversation", zap.Int("messages", len(payload)))
	reply, err := h.client.Complete(r.Context(), payload)
	if err != nil {
		h.logger.Error("Error calling OpenAI API", zap.Error(err))
		var cfgErr *apperrors.ConfigError
		if errors.As(err, &cfgErr) {
			h.writeError(w, http.StatusInternalServerError, "Server configuration error: Missing API key",
				apperrors.Detail(err))
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Error calling OpenAI API", apperrors.Detail(err))
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{Message: reply})
}

// HandleMessage starts a turn in the process conversation. The reply is
// revealed in the background; poll /api/messages to follow it.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if !h.preflight(w, r, http.MethodPost) {
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	err := h.conv.Dispatch(req.Content)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, h.conv.Snapshot())
	case errors.Is(err, apperrors.ErrInvalidMessage):
		h.writeError(w, http.StatusBadRequest, "Invalid request body", apperrors.Detail(err))
	case errors.Is(err, chat.ErrTurnInProgress):
		h.writeError(w, http.StatusConflict, "A response is already in progress", "")
	default:
		h.logger.Error("Failed to dispatch message", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "Conversation unavailable", err.Error())
	}
}

// HandleMessages returns (GET) or clears (DELETE) the process conversation.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if !h.preflight(w, r, http.MethodGet, http.MethodDelete) {
		return
	}

	if r.Method == http.MethodDelete {
		h.conv.ClearChat()
		h.logger.Info("Conversation cleared")
	}
	h.writeJSON(w, http.StatusOK, h.conv.Snapshot())
}

func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if !h.preflight(w, r, http.MethodGet) {
		return
	}
	if h.transcript == nil {
		h.writeError(w, http.StatusNotFound, "Transcript not enabled", "")
		return
	}

	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit", raw)
			return
		}
		limit = n
	}

	turns, err := h.transcript.ListTurns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list turns", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	h.writeJSON(w, http.StatusOK, turns)
}

// preflight sets CORS headers, answers OPTIONS and rejects methods not in
// allowed. It reports whether the handler should continue.
func (h *Handler) preflight(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	methods := "OPTIONS"
	for _, m := range allowed {
		methods = m + ", " + methods
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg, details string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
