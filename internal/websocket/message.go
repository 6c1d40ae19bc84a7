package websocket

// IncomingMessage is one client frame. Type selects the action; the other
// fields are read per type.
type IncomingMessage struct {
	Type    string `json:"type"` // "send", "typing", "mark_read", "load_more"
	Content string `json:"content,omitempty"`
	ReplyTo string `json:"replyTo,omitempty"`
}

type OutgoingMessage struct {
	Type      string `json:"type"` // "snapshot", "user_status", "typing", "error"
	RoomID    string `json:"roomId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
