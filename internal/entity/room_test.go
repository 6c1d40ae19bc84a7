package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoomID(t *testing.T) {
	a := RoomID(SubjectTypeBoat, "boat-7")
	b := RoomID(SubjectTypeBoat, "boat-7")
	assert.Equal(t, a, b, "room ids are a pure function of the subject")

	assert.NotEqual(t, a, RoomID(SubjectTypeBoat, "boat-8"))
	assert.NotEqual(t, a, RoomID(SubjectTypeSupport, "boat-7"))
}

func TestHasParticipant(t *testing.T) {
	room := ChatRoom{Participants: []string{"u1", "u2"}}
	assert.True(t, room.HasParticipant("u1"))
	assert.False(t, room.HasParticipant("u3"))
}

func TestMessageTypeForMime(t *testing.T) {
	assert.Equal(t, MessageTypeImage, MessageTypeForMime("image/png"))
	assert.Equal(t, MessageTypeImage, MessageTypeForMime("image/jpeg"))
	assert.Equal(t, MessageTypeFile, MessageTypeForMime("application/pdf"))
	assert.Equal(t, MessageTypeFile, MessageTypeForMime(""))
}

func TestMessageOrdering(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Message{ID: "a", CreatedAt: t0}
	b := Message{ID: "b", CreatedAt: t0.Add(time.Second)}
	tie := Message{ID: "b", CreatedAt: t0}

	assert.True(t, a.Before(&b))
	assert.False(t, b.Before(&a))
	assert.True(t, a.Before(&tie), "equal timestamps fall back to id order")
}

func TestPreview(t *testing.T) {
	msg := Message{
		ID:         "m1",
		SenderID:   "u1",
		SenderName: "Alice",
		Type:       MessageTypeImage,
		Attachments: []Attachment{
			{Name: "engine.jpg"},
		},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	p := msg.Preview()
	assert.Equal(t, "m1", p.MessageID)
	assert.Equal(t, "engine.jpg", p.Content, "attachment-only messages preview the file name")
	assert.Equal(t, string(MessageTypeImage), p.Type)
}
