package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalequity/seasure-sp2/internal/chat"
	"github.com/digitalequity/seasure-sp2/internal/entity"
	"github.com/digitalequity/seasure-sp2/internal/push"
	"github.com/digitalequity/seasure-sp2/internal/queue"
	"github.com/digitalequity/seasure-sp2/internal/store/memstore"
)

func TestHandleUnreadRetry(t *testing.T) {
	ctx := context.Background()
	rooms := memstore.NewCollection[entity.ChatRoom]()
	messages := memstore.NewCollection[entity.Message]()
	require.NoError(t, rooms.CreateWithID(ctx, "room-1", &entity.ChatRoom{
		Participants: []string{"u1", "u2"},
		UnreadCount:  map[string]int64{"u1": 0, "u2": 0},
		IsActive:     true,
	}))

	h := NewJobHandler(push.NewClient(""), chat.NewTracker(rooms, messages))

	payload, _ := json.Marshal(queue.UnreadRetryPayload{RoomID: "room-1", UserID: "u2"})
	job := queue.Job{ID: "j1", Type: queue.JobTypeUnreadRetry, Payload: payload}

	require.NoError(t, h.Handle(ctx, job))

	got, err := rooms.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UnreadCount["u2"])
}

func TestHandleUnreadRetry_MissingRoom(t *testing.T) {
	rooms := memstore.NewCollection[entity.ChatRoom]()
	messages := memstore.NewCollection[entity.Message]()
	h := NewJobHandler(push.NewClient(""), chat.NewTracker(rooms, messages))

	payload, _ := json.Marshal(queue.UnreadRetryPayload{RoomID: "gone", UserID: "u2"})
	err := h.Handle(context.Background(), queue.Job{Type: queue.JobTypeUnreadRetry, Payload: payload})
	assert.Error(t, err, "a missing room bubbles up so the retry machinery can decide")
}

func TestHandleMessageNotify_PushDisabled(t *testing.T) {
	h := NewJobHandler(push.NewClient(""), nil)

	payload, _ := json.Marshal(queue.MessageNotifyPayload{
		RoomID:     "room-1",
		Recipients: []string{"u1", "u2"},
	})
	err := h.Handle(context.Background(), queue.Job{Type: queue.JobTypeMessageNotify, Payload: payload})
	assert.NoError(t, err, "no gateway configured means nothing to do, not a failure")
}

func TestHandleUnknownType(t *testing.T) {
	h := NewJobHandler(push.NewClient(""), nil)
	err := h.Handle(context.Background(), queue.Job{Type: "mystery"})
	assert.ErrorContains(t, err, "unknown job type")
}
