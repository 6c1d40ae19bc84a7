package chat_dto

import (
	"time"

	"github.com/digitalequity/seasure-sp2/internal/entity"
)

type RoomResponse struct {
	RoomID       string                  `json:"room_id"`
	SubjectType  string                  `json:"subject_type"`
	SubjectID    string                  `json:"subject_id"`
	DisplayName  string                  `json:"display_name"`
	Participants []string                `json:"participants"`
	LastMessage  *MessagePreviewResponse `json:"last_message,omitempty"`
	UnreadCount  int64                   `json:"unread_count"`
	IsActive     bool                    `json:"is_active"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

type MessagePreviewResponse struct {
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	SentAt     time.Time `json:"sent_at"`
}

type MessageResponse struct {
	MessageID   string               `json:"message_id"`
	RoomID      string               `json:"room_id"`
	SenderID    string               `json:"sender_id"`
	SenderName  string               `json:"sender_name"`
	Content     string               `json:"content"`
	Type        string               `json:"type"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
	ReadBy      map[string]time.Time `json:"read_by,omitempty"`
	ReplyTo     string               `json:"reply_to,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

type AttachmentResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type MessagePageResponse struct {
	Messages   []MessageResponse `json:"messages"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// FromRoom projects a room document to its API shape. The unread counter is
// the viewer's, not the whole map.
func FromRoom(room *entity.ChatRoom, viewerID string) RoomResponse {
	resp := RoomResponse{
		RoomID:       room.ID,
		SubjectType:  string(room.SubjectType),
		SubjectID:    room.SubjectID,
		DisplayName:  room.DisplayName,
		Participants: room.Participants,
		UnreadCount:  room.UnreadCount[viewerID],
		IsActive:     room.IsActive,
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
	if room.LastMessage != nil {
		resp.LastMessage = &MessagePreviewResponse{
			MessageID:  room.LastMessage.MessageID,
			SenderID:   room.LastMessage.SenderID,
			SenderName: room.LastMessage.SenderName,
			Content:    room.LastMessage.Content,
			Type:       room.LastMessage.Type,
			SentAt:     room.LastMessage.SentAt,
		}
	}
	return resp
}

func FromMessage(msg *entity.Message) MessageResponse {
	resp := MessageResponse{
		MessageID:  msg.ID,
		RoomID:     msg.ChatRoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Type:       string(msg.Type),
		ReadBy:     msg.ReadBy,
		ReplyTo:    msg.ReplyTo,
		CreatedAt:  msg.CreatedAt,
	}
	for _, att := range msg.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentResponse{
			ID:       att.ID,
			URL:      att.URL,
			Name:     att.Name,
			MimeType: att.MimeType,
			Size:     att.Size,
		})
	}
	return resp
}

func FromMessages(msgs []entity.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, FromMessage(&msgs[i]))
	}
	return out
}
