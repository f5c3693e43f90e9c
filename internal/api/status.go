package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatter/internal/chat"
	"chatter/internal/models"

	"github.com/gorilla/mux"
)

type statusResponse struct {
	Status           string `json:"status"`
	ConnectedClients int    `json:"connectedClients"`
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (h *Handler) ChatStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:           "online",
		ConnectedClients: h.Realtime.ClientCount(),
	})
}

func (h *Handler) UserConnected(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"connected": h.Realtime.IsUserConnected(mux.Vars(r)["userId"]),
	})
}

// Broadcast pushes a server notice to every connection on this instance and,
// with a relay configured, every other one.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, fmt.Errorf("%w: message is required", chat.ErrValidation))
		return
	}

	h.Realtime.BroadcastAll(models.EventServerMessage, models.ServerMessageData{
		Sender:    "Server",
		Content:   req.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"recipients": h.Realtime.ClientCount(),
	})
}
