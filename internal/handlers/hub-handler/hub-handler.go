package hub_handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/handlers"
	"github.com/digitalequity/seasure-sp2/internal/websocket"
)

type HubHandler struct {
	Hub *websocket.Hub
}

func NewHubHandler(hub *websocket.Hub) *HubHandler {
	return &HubHandler{
		Hub: hub,
	}
}

func (h *HubHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "chat-service",
	})
}

func (h *HubHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	stats := h.Hub.GetHubStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(handlers.CreateResponse("get websocket stats", stats, handlers.RequestID(r)))
	return nil
}

// HandleGetUserStatus reports whether a user is connected to a room right
// now. Presence is connection-scoped, not account-scoped.
func (h *HubHandler) HandleGetUserStatus(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID := chi.URLParam(r, "userId")
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		return app_error.NewAppError(http.StatusBadRequest, "room_id query param is required", "room_id")
	}

	resp := map[string]any{
		"user_id": userID,
		"room_id": roomID,
		"online":  h.Hub.IsUserOnlineInRoom(roomID, userID),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(handlers.CreateResponse("get user status", resp, handlers.RequestID(r)))
	return nil
}
