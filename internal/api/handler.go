package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MidamSri/Midams-Playground/internal/chat"
	"github.com/MidamSri/Midams-Playground/internal/models"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	chats  *chat.Service
	turns  *chat.Orchestrator
	db     Pinger
	logger *zap.Logger
}

func NewHandler(chats *chat.Service, turns *chat.Orchestrator, db Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		chats:  chats,
		turns:  turns,
		db:     db,
		logger: logger,
	}
}

type NewChatRequest struct {
	UserID string `json:"user_id"`
}

type NewChatResponse struct {
	ChatID string `json:"chat_id"`
}

type ChatRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
	Model  string `json:"model"`
}

type HistoryMessage struct {
	Sender    models.Role `json:"sender"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

type HistoryResponse struct {
	ChatName string           `json:"chat_name"`
	Messages []HistoryMessage `json:"messages"`
}

type ChatSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) NewChat(w http.ResponseWriter, r *http.Request) {
	var req NewChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.chats.CreateChat(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, NewChatResponse{ChatID: created.ID})
}

// Chat streams the reply to one user message as plain text. Errors found
// before the first fragment get a JSON error response; after that the stream
// just ends.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	sink := newStreamSink(w)
	res, err := h.turns.HandleTurn(r.Context(), chat.TurnRequest{
		ChatID: req.ChatID,
		Text:   req.Text,
		Model:  req.Model,
	}, sink)
	if err != nil {
		if sink.started {
			h.logger.Error("turn failed after streaming started", zap.Error(err))
			return
		}
		h.writeError(w, r, err)
		return
	}

	// An empty reply still answers with an empty stream.
	sink.start()

	if res.FinalizeErr != nil {
		h.logger.Error("reply streamed but not stored",
			zap.String("chat_id", req.ChatID),
			zap.Error(res.FinalizeErr),
		)
	}
}

func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.chats.History(r.Context(), r.PathValue("chat_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := HistoryResponse{
		ChatName: history.ChatName,
		Messages: make([]HistoryMessage, 0, len(history.Turns)),
	}
	for _, turn := range history.Turns {
		resp.Messages = append(resp.Messages, HistoryMessage{
			Sender:    turn.Role,
			Message:   turn.Message,
			Timestamp: turn.Timestamp,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) UserChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.ListChats(r.Context(), r.PathValue("user_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		resp = append(resp, ChatSummary{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chats.DeleteChat(r.Context(), r.PathValue("chat_id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrChatNotFound):
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrShuttingDown):
		h.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
