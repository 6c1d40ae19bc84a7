package chat

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/blob"
	"github.com/digitalequity/seasure-sp2/internal/entity"
	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/store"
)

const (
	defaultPageSize = 50
	searchLimit     = 100
)

// RetryFunc re-schedules a failed unread-counter increment. Wired to the
// job queue in production; nil means failures are only logged.
type RetryFunc func(roomID, userID string)

// Pipeline is the ordering and delivery engine: it persists outgoing
// messages, fans unread increments out to recipients, serves the paginated
// read path and exposes the live full-window subscription.
type Pipeline struct {
	rooms    store.Collection[entity.ChatRoom]
	messages store.Collection[entity.Message]
	blobs    blob.Store
	tracker  *Tracker

	// RetryUnread is invoked for every unread increment that failed after
	// the message write already succeeded.
	RetryUnread RetryFunc
}

func NewPipeline(rooms store.Collection[entity.ChatRoom], messages store.Collection[entity.Message], blobs blob.Store, tracker *Tracker) *Pipeline {
	return &Pipeline{rooms: rooms, messages: messages, blobs: blobs, tracker: tracker}
}

// MessagePage is one window of the backward-scrolling read path, in
// reverse-chronological retrieval order. NextCursor is empty when the page
// came back short, a heuristic exhaustion signal, so a final full page may
// cost one extra empty fetch.
type MessagePage struct {
	Messages   []entity.Message
	NextCursor string
}

// FileUpload is an attachment submission.
type FileUpload struct {
	Name       string
	MimeType   string
	Size       int64
	Content    io.Reader
	OnProgress blob.ProgressFunc
}

// Send validates, timestamps and durably persists one message, then updates
// the recipients' unread counters and the room's lastMessage cache. The
// counter and cache writes ride behind the message write deliberately: a
// failed increment is retried independently and never rolls the message
// back, because an undercounted badge is acceptable and a lost message is
// not.
func (p *Pipeline) Send(ctx context.Context, roomID, senderID, senderName, content string, attachments []entity.Attachment, replyTo string) (*entity.Message, *app_error.AppError) {
	if content == "" && len(attachments) == 0 {
		return nil, app_error.New(app_error.KindInvalidMessage, "message needs content or an attachment", "content")
	}

	room, err := p.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, storeErr(err, "failed to fetch chat room")
	}
	if !room.HasParticipant(senderID) {
		return nil, app_error.New(app_error.KindPermissionDenied, "sender is not a participant of this room", "senderId")
	}

	now := time.Now().UTC()
	msg := &entity.Message{
		ChatRoomID:  roomID,
		SenderID:    senderID,
		SenderName:  senderName,
		Content:     content,
		Type:        messageType(attachments),
		Attachments: attachments,
		IsRead:      false,
		ReadBy:      map[string]time.Time{senderID: now},
		ReplyTo:     replyTo,
		CreatedAt:   now,
	}

	id, err := p.messages.Create(ctx, msg)
	if err != nil {
		return nil, storeErr(err, "failed to persist message")
	}
	msg.ID = id

	p.fanOut(ctx, room, msg)
	return msg, nil
}

// SendFile uploads the attachment first and only then creates the message,
// so a failed upload never leaves a partial message. The reverse failure
// (upload succeeded, message write failed) leaves an unreferenced object
// behind; there is no compensating cleanup.
func (p *Pipeline) SendFile(ctx context.Context, roomID, senderID, senderName string, file FileUpload) (*entity.Message, *app_error.AppError) {
	room, err := p.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, storeErr(err, "failed to fetch chat room")
	}
	if !room.HasParticipant(senderID) {
		return nil, app_error.New(app_error.KindPermissionDenied, "sender is not a participant of this room", "senderId")
	}

	attID := uuid.NewString()
	path := fmt.Sprintf("chat/%s/%s_%s", roomID, attID, file.Name)
	url, err := p.blobs.Upload(ctx, path, file.Content, file.Size, file.OnProgress)
	if err != nil {
		return nil, app_error.New(app_error.KindFileUploadFailed, fmt.Sprintf("attachment upload failed: %v", err), "file")
	}

	att := entity.Attachment{
		ID:       attID,
		URL:      url,
		Name:     file.Name,
		MimeType: file.MimeType,
		Size:     file.Size,
	}
	return p.Send(ctx, roomID, senderID, senderName, "", []entity.Attachment{att}, "")
}

// FetchPage returns up to pageSize messages older than cursor (the newest
// page when cursor is empty), newest first. Callers re-order for display.
func (p *Pipeline) FetchPage(ctx context.Context, roomID string, pageSize int, cursor string) (*MessagePage, *app_error.AppError) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	page, err := p.messages.Query(ctx, store.Query{
		Filters: []store.Filter{store.Eq("chatRoomId", roomID)},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   pageSize,
		Cursor:  cursor,
	})
	if err != nil {
		return nil, storeErr(err, "failed to fetch message page")
	}
	if page.Items == nil {
		page.Items = []entity.Message{}
	}

	next := ""
	if len(page.Items) == pageSize {
		next = page.NextCursor
	}
	return &MessagePage{Messages: page.Items, NextCursor: next}, nil
}

// Subscribe opens the live full-window feed for a room: the callback gets
// the complete ordered message set immediately and again on every change.
func (p *Pipeline) Subscribe(ctx context.Context, roomID string, onUpdate func([]entity.Message)) (store.CancelFunc, *app_error.AppError) {
	cancel, err := p.messages.SubscribeQuery(ctx, []store.Filter{store.Eq("chatRoomId", roomID)}, "createdAt", onUpdate)
	if err != nil {
		return nil, storeErr(err, "failed to open message subscription")
	}
	return cancel, nil
}

// Search does a case-insensitive substring match over message content in
// one room. Always returns a non-nil slice.
func (p *Pipeline) Search(ctx context.Context, roomID, term string) ([]entity.Message, *app_error.AppError) {
	if term == "" {
		return []entity.Message{}, nil
	}
	page, err := p.messages.Query(ctx, store.Query{
		Filters: []store.Filter{
			store.Eq("chatRoomId", roomID),
			store.Contains("content", term),
		},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   searchLimit,
	})
	if err != nil {
		return nil, storeErr(err, "failed to search messages")
	}
	if page.Items == nil {
		return []entity.Message{}, nil
	}
	return page.Items, nil
}

// fanOut bumps every recipient's unread counter and refreshes the room's
// lastMessage cache. Failures are logged and handed to RetryUnread; the
// message is already durable at this point.
func (p *Pipeline) fanOut(ctx context.Context, room *entity.ChatRoom, msg *entity.Message) {
	for _, participant := range room.Participants {
		if participant == msg.SenderID {
			continue
		}
		if appErr := p.tracker.IncrementUnread(ctx, room.ID, participant); appErr != nil {
			log.Error().Err(appErr).Str("roomID", room.ID).Str("userID", participant).Msg("chat: unread increment failed, scheduling retry")
			if p.RetryUnread != nil {
				p.RetryUnread(room.ID, participant)
			}
		}
	}

	fields := store.Fields{
		"lastMessage": msg.Preview(),
		"updatedAt":   msg.CreatedAt,
	}
	if err := p.rooms.Update(ctx, room.ID, fields); err != nil {
		// The cache may lag; readers fall back to the messages collection.
		log.Error().Err(err).Str("roomID", room.ID).Msg("chat: lastMessage cache update failed")
	}
}

func messageType(attachments []entity.Attachment) entity.MessageType {
	if len(attachments) == 0 {
		return entity.MessageTypeText
	}
	return entity.MessageTypeForMime(attachments[0].MimeType)
}
