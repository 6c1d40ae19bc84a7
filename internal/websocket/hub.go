package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// A silent connection older than this is assumed dead. The pong handler
// refreshes lastSeen, so healthy idle clients never trip it.
const inactiveThreshold = 2 * time.Minute

// Hub tracks live connections per room. Message delivery itself rides the
// session subscriptions; the hub carries connection-scoped traffic only:
// presence, typing and stats.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	connections atomic.Int64
	framesSent  atomic.Int64
	startedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

type HubStats struct {
	TotalRooms       int       `json:"total_rooms"`
	TotalClients     int       `json:"total_clients"`
	TotalConnections int64     `json:"total_connections"`
	FramesSent       int64     `json:"frames_sent"`
	StartedAt        time.Time `json:"started_at"`
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		rooms:     make(map[string]map[*Client]struct{}),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.reapLoop()
	return h
}

// Register adds a client to its room, starts its pumps and announces the
// user to the rest of the room.
func (h *Hub) Register(roomID string, client *Client) {
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	roomSize := len(h.rooms[roomID])
	h.mu.Unlock()

	h.connections.Add(1)
	client.Start()
	h.broadcastStatus(roomID, client.UserID, "online")

	log.Info().Str("roomID", roomID).Str("userID", client.UserID).Int("roomSize", roomSize).Msg("ws: client joined room")
}

// Unregister drops a client. The offline announcement only goes out when
// this was the user's last connection in the room.
func (h *Hub) Unregister(roomID string, client *Client) {
	h.mu.Lock()
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	if !h.IsUserOnlineInRoom(roomID, client.UserID) {
		h.broadcastStatus(roomID, client.UserID, "offline")
	}

	log.Info().Str("roomID", roomID).Str("userID", client.UserID).Msg("ws: client left room")
}

// BroadcastToRoomExcept fans a frame out to every active client in the
// room but the originator.
func (h *Hub) BroadcastToRoomExcept(roomID string, message OutgoingMessage, except *Client) {
	h.broadcast(roomID, message, func(c *Client) bool { return c == except })
}

func (h *Hub) broadcastStatus(roomID, userID, status string) {
	msg := OutgoingMessage{
		Type:      "user_status",
		Data:      map[string]any{"user_id": userID, "status": status},
		Timestamp: time.Now().Unix(),
	}
	// All of the user's own connections are skipped, not just the one that
	// triggered the change.
	h.broadcast(roomID, msg, func(c *Client) bool { return c.UserID == userID })
}

func (h *Hub) broadcast(roomID string, message OutgoingMessage, skip func(*Client) bool) {
	message.RoomID = roomID

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		if skip != nil && skip(client) {
			continue
		}
		if client.IsClientActive() {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.Deliver(message)
	}
	h.framesSent.Add(int64(len(targets)))
}

// IsUserOnlineInRoom reports whether the user has any live connection in
// the room.
func (h *Hub) IsUserOnlineInRoom(roomID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[roomID] {
		if client.UserID == userID && client.IsClientActive() {
			return true
		}
	}
	return false
}

func (h *Hub) GetHubStats() HubStats {
	h.mu.RLock()
	totalRooms := len(h.rooms)
	totalClients := 0
	for _, clients := range h.rooms {
		totalClients += len(clients)
	}
	h.mu.RUnlock()

	return HubStats{
		TotalRooms:       totalRooms,
		TotalClients:     totalClients,
		TotalConnections: h.connections.Load(),
		FramesSent:       h.framesSent.Load(),
		StartedAt:        h.startedAt,
	}
}

// reapLoop closes connections that went silent past the pong window.
func (h *Hub) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			for _, client := range h.snapshotClients() {
				if !client.IsClientActive() || time.Since(client.GetLastSeen()) > inactiveThreshold {
					log.Info().Str("roomID", client.RoomID).Str("userID", client.UserID).Msg("ws: reaping inactive client")
					client.Close()
				}
			}
		}
	}
}

func (h *Hub) snapshotClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var all []*Client
	for _, clients := range h.rooms {
		for client := range clients {
			all = append(all, client)
		}
	}
	return all
}

// Close stops the reaper and tears down every tracked connection.
func (h *Hub) Close() {
	h.cancel()
	clients := h.snapshotClients()
	for _, client := range clients {
		client.Close()
	}
	log.Info().Int("clients", len(clients)).Msg("ws: hub shut down")
}
