package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalequity/seasure-sp2/internal/entity"
	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/store"
)

func queryAll(roomID string) store.Query {
	return store.Query{
		Filters: []store.Filter{store.Eq("chatRoomId", roomID)},
		OrderBy: "createdAt",
	}
}

func TestSend_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	_, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "", nil, "")
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindInvalidMessage, appErr.Kind)

	_, appErr = env.pipeline.Send(ctx, room.ID, "mallory", "Mallory", "hi", nil, "")
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindPermissionDenied, appErr.Kind)

	_, appErr = env.pipeline.Send(ctx, "missing", "alice", "Alice", "hi", nil, "")
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindNotFound, appErr.Kind)
}

func TestSend_PersistsAndFansOut(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob", "carol")

	msg, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "engine is fixed", nil, "")
	require.Nil(t, appErr)
	require.NotEmpty(t, msg.ID)
	assert.Equal(t, entity.MessageTypeText, msg.Type)

	stored, err := env.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "engine is fixed", stored.Content)
	_, senderStamped := stored.ReadBy["alice"]
	assert.True(t, senderStamped, "sender has read their own message at send time")

	got, err := env.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UnreadCount["bob"])
	assert.Equal(t, int64(1), got.UnreadCount["carol"])
	assert.Equal(t, int64(0), got.UnreadCount["alice"])
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, msg.ID, got.LastMessage.MessageID)
	assert.Equal(t, "engine is fixed", got.LastMessage.Content)
}

// flakyRooms injects increment failures to exercise the retry path.
type flakyRooms struct {
	store.Collection[entity.ChatRoom]
	failIncrement bool
}

func (f *flakyRooms) Increment(ctx context.Context, id string, fieldPath string, delta int64) error {
	if f.failIncrement {
		return errors.New("injected increment failure")
	}
	return f.Collection.Increment(ctx, id, fieldPath, delta)
}

func TestSend_UnreadFailureSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	flaky := &flakyRooms{Collection: env.rooms, failIncrement: true}
	tracker := NewTracker(flaky, env.messages)
	pipeline := NewPipeline(env.rooms, env.messages, env.blobs, tracker)

	var mu sync.Mutex
	var retried [][2]string
	pipeline.RetryUnread = func(roomID, userID string) {
		mu.Lock()
		retried = append(retried, [2]string{roomID, userID})
		mu.Unlock()
	}

	msg, appErr := pipeline.Send(ctx, room.ID, "alice", "Alice", "hello", nil, "")
	require.Nil(t, appErr, "a failed counter must not fail the send")
	require.NotEmpty(t, msg.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, retried, 1)
	assert.Equal(t, room.ID, retried[0][0])
	assert.Equal(t, "bob", retried[0][1])
}

func TestFetchPage_WalksBackwards(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	var ids []string
	for i := 0; i < 5; i++ {
		msg, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "m", nil, "")
		require.Nil(t, appErr)
		ids = append(ids, msg.ID)
		time.Sleep(2 * time.Millisecond)
	}

	page, appErr := env.pipeline.FetchPage(ctx, room.ID, 2, "")
	require.Nil(t, appErr)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, ids[4], page.Messages[0].ID, "newest first")
	assert.Equal(t, ids[3], page.Messages[1].ID)
	require.NotEmpty(t, page.NextCursor)

	page, appErr = env.pipeline.FetchPage(ctx, room.ID, 2, page.NextCursor)
	require.Nil(t, appErr)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, ids[2], page.Messages[0].ID)
	assert.Equal(t, ids[1], page.Messages[1].ID)

	// The final short page signals exhaustion with an empty cursor.
	page, appErr = env.pipeline.FetchPage(ctx, room.ID, 2, page.NextCursor)
	require.Nil(t, appErr)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, ids[0], page.Messages[0].ID)
	assert.Empty(t, page.NextCursor)
}

func TestSendFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	msg, appErr := env.pipeline.SendFile(ctx, room.ID, "alice", "Alice", FileUpload{
		Name:     "engine.jpg",
		MimeType: "image/jpeg",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	require.Nil(t, appErr)
	assert.Equal(t, entity.MessageTypeImage, msg.Type)
	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "engine.jpg", att.Name)
	assert.Contains(t, att.URL, room.ID, "object path is scoped to the room")
	assert.Equal(t, 1, env.blobs.Len())

	// Non-image mime types become plain file messages.
	msg, appErr = env.pipeline.SendFile(ctx, room.ID, "alice", "Alice", FileUpload{
		Name:     "invoice.pdf",
		MimeType: "application/pdf",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	require.Nil(t, appErr)
	assert.Equal(t, entity.MessageTypeFile, msg.Type)
}

func TestSendFile_UploadFailureLeavesNoMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	env.blobs.FailUploads = true
	_, appErr := env.pipeline.SendFile(ctx, room.ID, "alice", "Alice", FileUpload{
		Name:     "engine.jpg",
		MimeType: "image/jpeg",
		Size:     4,
		Content:  strings.NewReader("data"),
	})
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindFileUploadFailed, appErr.Kind)

	page, err := env.messages.Query(ctx, queryAll(room.ID))
	require.NoError(t, err)
	assert.Empty(t, page.Items, "a failed upload must not leave a partial message")

	got, err := env.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UnreadCount["bob"])
}

func TestSendFile_ChecksMembershipBeforeUpload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	_, appErr := env.pipeline.SendFile(ctx, room.ID, "mallory", "Mallory", FileUpload{
		Name:     "x.bin",
		MimeType: "application/octet-stream",
		Size:     1,
		Content:  strings.NewReader("x"),
	})
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindPermissionDenied, appErr.Kind)
	assert.Equal(t, 0, env.blobs.Len(), "rejected senders must not reach storage")
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	_, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "The Engine needs oil", nil, "")
	require.Nil(t, appErr)
	_, appErr = env.pipeline.Send(ctx, room.ID, "bob", "Bob", "sails are fine", nil, "")
	require.Nil(t, appErr)

	hits, appErr := env.pipeline.Search(ctx, room.ID, "engine")
	require.Nil(t, appErr)
	require.Len(t, hits, 1)
	assert.Equal(t, "The Engine needs oil", hits[0].Content)

	hits, appErr = env.pipeline.Search(ctx, room.ID, "")
	require.Nil(t, appErr)
	assert.NotNil(t, hits)
	assert.Empty(t, hits, "empty term matches nothing, not everything")
}

func TestSubscribe_FullWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	_, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "first", nil, "")
	require.Nil(t, appErr)

	snapshots := make(chan []entity.Message, 8)
	cancel, appErr := env.pipeline.Subscribe(ctx, room.ID, func(msgs []entity.Message) {
		snapshots <- msgs
	})
	require.Nil(t, appErr)
	defer cancel()

	first := <-snapshots
	require.Len(t, first, 1, "subscription delivers the current window immediately")

	time.Sleep(2 * time.Millisecond)
	_, appErr = env.pipeline.Send(ctx, room.ID, "bob", "Bob", "second", nil, "")
	require.Nil(t, appErr)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			if len(snap) == 2 {
				assert.Equal(t, "first", snap[0].Content)
				assert.Equal(t, "second", snap[1].Content)
				return
			}
		case <-deadline:
			t.Fatal("never observed the second message")
		}
	}
}
