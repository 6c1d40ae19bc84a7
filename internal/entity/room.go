package entity

import (
	"time"

	"github.com/google/uuid"
)

type SubjectType string

const (
	SubjectTypeBoat    SubjectType = "boat"
	SubjectTypeSupport SubjectType = "support"
	SubjectTypeRequest SubjectType = "request"
)

// roomNamespace seeds the deterministic room id so that two concurrent
// creators for the same subject always race on the same document id.
var roomNamespace = uuid.MustParse("8f9c0d6e-1b4a-4a5e-9a52-6d4f3c2b1a00")

// RoomID returns the deterministic id of the room for a subject.
func RoomID(subjectType SubjectType, subjectID string) string {
	return uuid.NewSHA1(roomNamespace, []byte(string(subjectType)+":"+subjectID)).String()
}

// ChatRoom is one persistent conversation about a single subject (a boat,
// a service request, or a support topic). unreadCount keys are always a
// subset of participants.
type ChatRoom struct {
	ID           string           `bson:"_id,omitempty"`
	SubjectType  SubjectType      `bson:"subjectType"`
	SubjectID    string           `bson:"subjectId"`
	DisplayName  string           `bson:"displayName"`
	Participants []string         `bson:"participants"`
	LastMessage  *MessagePreview  `bson:"lastMessage,omitempty"`
	UnreadCount  map[string]int64 `bson:"unreadCount"`
	IsActive     bool             `bson:"isActive"`
	CreatedAt    time.Time        `bson:"createdAt"`
	UpdatedAt    time.Time        `bson:"updatedAt"`
}

// MessagePreview is the denormalized lastMessage snapshot cached on the
// room document. It is a cache and may lag the messages collection.
type MessagePreview struct {
	MessageID  string    `bson:"messageId"`
	SenderID   string    `bson:"senderId"`
	SenderName string    `bson:"senderName"`
	Content    string    `bson:"content"`
	Type       string    `bson:"type"`
	SentAt     time.Time `bson:"sentAt"`
}

func (r *ChatRoom) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
