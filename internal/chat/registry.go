// Package chat is the messaging core: room registry, message pipeline,
// unread/read-receipt tracker and the per-client session facade. It is
// written entirely against the store and blob adapter contracts; Mongo, GCS
// and the in-memory doubles are interchangeable underneath.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/entity"
	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/store"
)

const defaultRoomListLimit = 50

// Registry resolves and creates chat rooms, one per subject.
type Registry struct {
	rooms store.Collection[entity.ChatRoom]
}

func NewRegistry(rooms store.Collection[entity.ChatRoom]) *Registry {
	return &Registry{rooms: rooms}
}

// GetOrCreate returns the room for (subjectType, subjectID), creating it if
// none exists. Idempotent and race-safe: the room id is derived from the
// subject, so concurrent creators collide on CreateWithID and the losers
// receive the winner's room. An existing room is returned unchanged;
// participants are never merged here, AddParticipant is the explicit way in.
func (r *Registry) GetOrCreate(ctx context.Context, subjectType entity.SubjectType, subjectID, displayName string, participants []string) (*entity.ChatRoom, *app_error.AppError) {
	id := entity.RoomID(subjectType, subjectID)

	room, err := r.rooms.Get(ctx, id)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeErr(err, "failed to look up chat room")
	}

	now := time.Now().UTC()
	fresh := &entity.ChatRoom{
		SubjectType:  subjectType,
		SubjectID:    subjectID,
		DisplayName:  displayName,
		Participants: dedupe(participants),
		UnreadCount:  make(map[string]int64),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, p := range fresh.Participants {
		fresh.UnreadCount[p] = 0
	}

	switch err := r.rooms.CreateWithID(ctx, id, fresh); {
	case err == nil:
		fresh.ID = id
		log.Info().Str("roomID", id).Str("subjectType", string(subjectType)).Str("subjectID", subjectID).Msg("chat: room created")
		return fresh, nil
	case errors.Is(err, store.ErrExists):
		// Lost the race; the winner's room is authoritative.
		winner, getErr := r.rooms.Get(ctx, id)
		if getErr != nil {
			return nil, storeErr(getErr, "failed to fetch winning chat room")
		}
		return winner, nil
	default:
		return nil, storeErr(err, "failed to create chat room")
	}
}

// Get resolves a room by id.
func (r *Registry) Get(ctx context.Context, roomID string) (*entity.ChatRoom, *app_error.AppError) {
	room, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, storeErr(err, "failed to fetch chat room")
	}
	return room, nil
}

// ListForUser returns the active rooms the user participates in, most
// recently updated first.
func (r *Registry) ListForUser(ctx context.Context, userID string, limit int) ([]entity.ChatRoom, *app_error.AppError) {
	if limit <= 0 {
		limit = defaultRoomListLimit
	}
	page, err := r.rooms.Query(ctx, store.Query{
		Filters: []store.Filter{
			store.ArrayContains("participants", userID),
			store.Eq("isActive", true),
		},
		OrderBy: "updatedAt",
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, storeErr(err, "failed to list chat rooms")
	}
	if page.Items == nil {
		page.Items = []entity.ChatRoom{}
	}
	return page.Items, nil
}

// AddParticipant adds userID to the room and zeroes their unread counter.
// No-op when they already participate.
func (r *Registry) AddParticipant(ctx context.Context, roomID, userID string) *app_error.AppError {
	room, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return storeErr(err, "failed to fetch chat room")
	}
	if room.HasParticipant(userID) {
		return nil
	}
	fields := store.Fields{
		"participants":           append(room.Participants, userID),
		"unreadCount." + userID: int64(0),
		"updatedAt":              time.Now().UTC(),
	}
	if err := r.rooms.Update(ctx, roomID, fields); err != nil {
		return storeErr(err, "failed to add participant")
	}
	return nil
}

// Archive soft-deletes the room. Messages stay untouched.
func (r *Registry) Archive(ctx context.Context, roomID string) *app_error.AppError {
	if _, err := r.rooms.Get(ctx, roomID); err != nil {
		return storeErr(err, "failed to fetch chat room")
	}
	fields := store.Fields{
		"isActive":  false,
		"updatedAt": time.Now().UTC(),
	}
	if err := r.rooms.Update(ctx, roomID, fields); err != nil {
		return storeErr(err, "failed to archive chat room")
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// storeErr maps adapter failures onto the error taxonomy: a missing
// document is NotFound, everything else is a transient store failure.
func storeErr(err error, msg string) *app_error.AppError {
	if errors.Is(err, store.ErrNotFound) {
		return app_error.New(app_error.KindNotFound, msg+": not found", "")
	}
	return app_error.New(app_error.KindStoreUnavailable, fmt.Sprintf("%s: %v", msg, err), "")
}
