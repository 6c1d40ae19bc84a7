package queue

import (
	"encoding/json"
	"time"
)

const (
	// JobTypeMessageNotify fans a push notification out to message
	// recipients via the notification gateway.
	JobTypeMessageNotify = "message_notify"
	// JobTypeUnreadRetry replays an unread-counter increment that failed
	// after the message write already succeeded.
	JobTypeUnreadRetry = "unread_retry"
)

type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Priority  int             `json:"priority"`
	Retry     int             `json:"retry"`
	MaxRetry  int             `json:"max_retry"`
	ErrorMsg  string          `json:"error_msg,omitempty"`
	CreatedAt int64           `json:"created_at"`
	ExpireAt  int64           `json:"expired_at"`
}

// MessageNotifyPayload describes one message announcement to push out.
type MessageNotifyPayload struct {
	RoomID     string    `json:"room_id"`
	RoomName   string    `json:"room_name"`
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Preview    string    `json:"preview"`
	Recipients []string  `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

// UnreadRetryPayload identifies one failed unread increment to replay.
type UnreadRetryPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

func MustMarshal(payload any) json.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}
