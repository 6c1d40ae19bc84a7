package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/entity"
	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/store"
)

// Tracker maintains per-user unread counters on rooms and per-message read
// receipts. Counters live in a single field each ("unreadCount.<userId>"),
// so concurrent senders and readers never contend on a shared document
// rewrite. Increments and resets are per-field store operations.
type Tracker struct {
	rooms    store.Collection[entity.ChatRoom]
	messages store.Collection[entity.Message]
}

func NewTracker(rooms store.Collection[entity.ChatRoom], messages store.Collection[entity.Message]) *Tracker {
	return &Tracker{rooms: rooms, messages: messages}
}

// IncrementUnread bumps the user's unread counter on the room by one.
func (t *Tracker) IncrementUnread(ctx context.Context, roomID, userID string) *app_error.AppError {
	if err := t.rooms.Increment(ctx, roomID, "unreadCount."+userID, 1); err != nil {
		return storeErr(err, "failed to increment unread counter")
	}
	return nil
}

// ResetUnread zeroes the user's unread counter on the room.
func (t *Tracker) ResetUnread(ctx context.Context, roomID, userID string) *app_error.AppError {
	if err := t.rooms.Update(ctx, roomID, store.Fields{"unreadCount." + userID: int64(0)}); err != nil {
		return storeErr(err, "failed to reset unread counter")
	}
	return nil
}

// MarkRead records that userID has seen the room: their unread counter goes
// to zero and every message they have not read yet gets a readBy entry
// stamped with the current time. readBy entries are only ever added, never
// overwritten, so repeated calls settle into a no-op.
func (t *Tracker) MarkRead(ctx context.Context, roomID, userID string) *app_error.AppError {
	room, err := t.rooms.Get(ctx, roomID)
	if err != nil {
		return storeErr(err, "failed to fetch chat room")
	}

	if room.UnreadCount[userID] != 0 {
		if appErr := t.ResetUnread(ctx, roomID, userID); appErr != nil {
			return appErr
		}
	}

	now := time.Now().UTC()
	cursor := ""
	var stampErr error
	for {
		page, err := t.messages.Query(ctx, store.Query{
			Filters: []store.Filter{store.Eq("chatRoomId", roomID)},
			OrderBy: "createdAt",
			Desc:    true,
			Limit:   markReadBatchSize,
			Cursor:  cursor,
		})
		if err != nil {
			return storeErr(err, "failed to scan messages for read receipts")
		}
		for i := range page.Items {
			msg := &page.Items[i]
			if _, seen := msg.ReadBy[userID]; seen {
				continue
			}
			fields := store.Fields{"readBy." + userID: now}
			if msg.SenderID != userID {
				fields["isRead"] = true
			}
			if err := t.messages.Update(ctx, msg.ID, fields); err != nil {
				log.Error().Err(err).Str("roomID", roomID).Str("messageID", msg.ID).Str("userID", userID).Msg("chat: failed to stamp read receipt")
				if stampErr == nil {
					stampErr = err
				}
			}
		}
		if len(page.Items) < markReadBatchSize {
			// The whole room was walked; nil means every visible message
			// now carries the caller's receipt.
			if stampErr != nil {
				return storeErr(stampErr, "failed to stamp read receipts")
			}
			return nil
		}
		cursor = page.NextCursor
	}
}

const markReadBatchSize = 200
