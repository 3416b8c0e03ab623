package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers the chat routes and wraps them in the middleware chain:
// recover, request log, metrics, CORS.
func NewRouter(h *Handler, logger *zap.Logger, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /new_chat", h.NewChat)
	mux.HandleFunc("POST /chat", h.Chat)
	mux.HandleFunc("GET /chat_history/{chat_id}", h.ChatHistory)
	mux.HandleFunc("GET /user_chats/{user_id}", h.UserChats)
	mux.HandleFunc("DELETE /delete_chat/{chat_id}", h.DeleteChat)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = withCORS(corsOrigins, handler)
	handler = withMetrics(handler)
	handler = withLogging(logger, handler)
	handler = withRecover(logger, handler)
	return handler
}
