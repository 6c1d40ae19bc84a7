package entity

import (
	"strings"
	"time"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// MessageTypeForMime maps an attachment mime type to the message type the
// original client infers: image/* renders inline, everything else is a file.
func MessageTypeForMime(mimeType string) MessageType {
	if strings.HasPrefix(mimeType, "image/") {
		return MessageTypeImage
	}
	return MessageTypeFile
}

// Message is immutable after creation except for readBy, which only grows:
// entries are added on first read and never removed or overwritten.
// Messages in a room are totally ordered by createdAt, ties broken by id.
type Message struct {
	ID          string               `bson:"_id,omitempty"`
	ChatRoomID  string               `bson:"chatRoomId"`
	SenderID    string               `bson:"senderId"`
	SenderName  string               `bson:"senderName"` // frozen at send time
	Content     string               `bson:"content"`
	Type        MessageType          `bson:"type"`
	Attachments []Attachment         `bson:"attachments,omitempty"`
	IsRead      bool                 `bson:"isRead"`
	ReadBy      map[string]time.Time `bson:"readBy"`
	ReplyTo     string               `bson:"replyTo,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt"`
}

// Attachment is owned by exactly one message.
type Attachment struct {
	ID       string `bson:"id"`
	URL      string `bson:"url"`
	Name     string `bson:"name"`
	MimeType string `bson:"mimeType"`
	Size     int64  `bson:"size"`
}

func (m *Message) Preview() *MessagePreview {
	content := m.Content
	if content == "" && len(m.Attachments) > 0 {
		content = m.Attachments[0].Name
	}
	return &MessagePreview{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    content,
		Type:       string(m.Type),
		SentAt:     m.CreatedAt,
	}
}

// Before reports whether m sorts before other in the room's total order.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
