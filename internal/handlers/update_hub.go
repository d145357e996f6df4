package handlers

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

const clientBufferSize = 64

var _ ports.UpdatePublisher = (*UpdateHub)(nil)

type hubClient struct {
	accountID string // empty receives every account
	send      chan []byte
}

// UpdateHub is the update subscriber of the transaction service. It fans
// every update out to the connected websocket clients; clients that can't
// keep up are dropped.
type UpdateHub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

func NewUpdateHub(logger *slog.Logger) *UpdateHub {
	return &UpdateHub{
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
	}
}

func (h *UpdateHub) Publish(update entities.Update) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("Error encoding update", "type", update.UpdateType(), "error", err)
		return
	}

	accountID := updateAccountID(update)

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.accountID != "" && client.accountID != accountID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("Dropping slow websocket client", "account_id", client.accountID)
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// Clients returns the number of connected clients.
func (h *UpdateHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *UpdateHub) register(accountID string) *hubClient {
	client := &hubClient{
		accountID: accountID,
		send:      make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	return client
}

func (h *UpdateHub) unregister(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// serve pumps updates to conn until either side goes away.
func (h *UpdateHub) serve(conn *websocket.Conn, client *hubClient) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.unregister(client)
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case payload, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("WebSocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func updateAccountID(update entities.Update) string {
	switch u := update.(type) {
	case entities.NewLocalTransactionUpdate:
		return u.AccountID
	case entities.TxCompleteUpdate:
		return u.AccountID
	}
	return ""
}
