package websocket

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/chat"
	"github.com/digitalequity/seasure-sp2/internal/dtos/chat_dto"
	"github.com/digitalequity/seasure-sp2/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the web client's domains are pinned down
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionFactory mints a fresh session per connection. Sessions are
// single-use; a reconnect gets a new one.
type SessionFactory func() *chat.Session

// Gateway upgrades HTTP requests to live chat connections.
type Gateway struct {
	hub      *Hub
	sessions SessionFactory
}

func NewGateway(hub *Hub, sessions SessionFactory) *Gateway {
	return &Gateway{hub: hub, sessions: sessions}
}

type snapshotData struct {
	Room     *chat_dto.RoomResponse     `json:"room,omitempty"`
	Messages []chat_dto.MessageResponse `json:"messages"`
	HasMore  bool                       `json:"has_more"`
	Degraded bool                       `json:"degraded,omitempty"`
}

// HandleWS upgrades the connection and binds it to a session for the room
// in the URL. The first frame the client receives is a full snapshot.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		http.Error(w, "roomId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}

	session := g.sessions()
	client := newClient(uuid.NewString(), id.ID, id.Name, roomID, conn, g.hub, session)

	onUpdate := func(u chat.Update) {
		data := snapshotData{
			Messages: chat_dto.FromMessages(u.Messages),
			HasMore:  u.HasMore,
			Degraded: u.Degraded,
		}
		if u.Room != nil {
			room := chat_dto.FromRoom(u.Room, id.ID)
			data.Room = &room
		}
		client.Deliver(OutgoingMessage{
			Type:      "snapshot",
			RoomID:    u.RoomID,
			Data:      data,
			Timestamp: time.Now().Unix(),
		})
	}

	// The session outlives this request, so it cannot hang off r.Context().
	if appErr := session.Open(client.ctx, roomID, id.ID, id.Name, onUpdate); appErr != nil {
		log.Warn().Err(appErr).Str("roomID", roomID).Str("userID", id.ID).Msg("ws: session open rejected")
		session.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, appErr.Message),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	g.hub.Register(roomID, client)
}
