package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type WebSocketHandler struct {
	logger           *slog.Logger
	hub              *UpdateHub
	websocketManager *Manager
}

func NewWebSocketHandler(
	logger *slog.Logger,
	hub *UpdateHub,
	websocketManager *Manager,
) *WebSocketHandler {
	return &WebSocketHandler{
		logger:           logger,
		hub:              hub,
		websocketManager: websocketManager,
	}
}

func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/updates", h.HandleConnection)
}

// HandleConnection streams updates, optionally filtered by ?account_id=.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")

	conn, err := h.websocketManager.Upgrade(w, r)
	if err != nil {
		h.logger.Error("Error upgrading connection", "error", err)
		return
	}

	h.logger.Info("New WebSocket connection", "account_id", accountID)

	client := h.hub.register(accountID)
	h.hub.serve(conn, client)

	h.logger.Info("WebSocket connection closed", "account_id", accountID)
}
