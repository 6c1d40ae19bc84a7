package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalequity/seasure-sp2/internal/blob/memblob"
	"github.com/digitalequity/seasure-sp2/internal/entity"
	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/store"
	"github.com/digitalequity/seasure-sp2/internal/store/memstore"
)

type testEnv struct {
	rooms    *memstore.Collection[entity.ChatRoom]
	messages *memstore.Collection[entity.Message]
	blobs    *memblob.Store
	registry *Registry
	tracker  *Tracker
	pipeline *Pipeline
}

func newTestEnv() *testEnv {
	rooms := memstore.NewCollection[entity.ChatRoom]()
	messages := memstore.NewCollection[entity.Message]()
	blobs := memblob.New()
	tracker := NewTracker(rooms, messages)
	return &testEnv{
		rooms:    rooms,
		messages: messages,
		blobs:    blobs,
		registry: NewRegistry(rooms),
		tracker:  tracker,
		pipeline: NewPipeline(rooms, messages, blobs, tracker),
	}
}

func (e *testEnv) room(t *testing.T, participants ...string) *entity.ChatRoom {
	t.Helper()
	room, appErr := e.registry.GetOrCreate(context.Background(), entity.SubjectTypeBoat, "boat-1", "SY Meltemi", participants)
	require.Nil(t, appErr)
	return room
}

func TestUnreadLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	// Alice sends three messages; Bob's counter climbs, Alice's stays put.
	for i := 0; i < 3; i++ {
		_, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "message", nil, "")
		require.Nil(t, appErr)
		time.Sleep(2 * time.Millisecond)
	}

	got, err := env.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.UnreadCount["bob"])
	assert.Equal(t, int64(0), got.UnreadCount["alice"])

	// Bob reads the room: counter zeroed, every message stamped.
	require.Nil(t, env.tracker.MarkRead(ctx, room.ID, "bob"))

	got, err = env.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UnreadCount["bob"])

	page, err := env.messages.Query(ctx, queryAll(room.ID))
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	for _, msg := range page.Items {
		_, byBob := msg.ReadBy["bob"]
		_, byAlice := msg.ReadBy["alice"]
		assert.True(t, byBob, "bob's receipt must be stamped")
		assert.True(t, byAlice, "sender receipt is stamped at send time")
		assert.True(t, msg.IsRead)
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	_, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "hello", nil, "")
	require.Nil(t, appErr)

	require.Nil(t, env.tracker.MarkRead(ctx, room.ID, "bob"))

	page, err := env.messages.Query(ctx, queryAll(room.ID))
	require.NoError(t, err)
	firstStamp := page.Items[0].ReadBy["bob"]

	// A second pass must not move existing receipts.
	time.Sleep(2 * time.Millisecond)
	require.Nil(t, env.tracker.MarkRead(ctx, room.ID, "bob"))

	page, err = env.messages.Query(ctx, queryAll(room.ID))
	require.NoError(t, err)
	assert.True(t, firstStamp.Equal(page.Items[0].ReadBy["bob"]), "receipts are add-only")
}

func TestIncrementAndReset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	require.Nil(t, env.tracker.IncrementUnread(ctx, room.ID, "bob"))
	require.Nil(t, env.tracker.IncrementUnread(ctx, room.ID, "bob"))

	got, err := env.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UnreadCount["bob"])

	require.Nil(t, env.tracker.ResetUnread(ctx, room.ID, "bob"))
	got, err = env.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UnreadCount["bob"])
}

func TestTracker_MissingRoom(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	appErr := env.tracker.IncrementUnread(ctx, "missing", "bob")
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindNotFound, appErr.Kind)

	appErr = env.tracker.MarkRead(ctx, "missing", "bob")
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindNotFound, appErr.Kind)
}

// stubbornMessages fails receipt writes while reads keep working.
type stubbornMessages struct {
	store.Collection[entity.Message]
	failUpdate bool
}

func (s *stubbornMessages) Update(ctx context.Context, id string, fields store.Fields) error {
	if s.failUpdate {
		return errors.New("injected update failure")
	}
	return s.Collection.Update(ctx, id, fields)
}

func TestMarkRead_StampFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	room := env.room(t, "alice", "bob")

	_, appErr := env.pipeline.Send(ctx, room.ID, "alice", "Alice", "hello", nil, "")
	require.Nil(t, appErr)

	stubborn := &stubbornMessages{Collection: env.messages, failUpdate: true}
	tracker := NewTracker(env.rooms, stubborn)

	// A nil MarkRead promises every visible message carries the receipt,
	// so a dropped stamp must come back as an error.
	appErr = tracker.MarkRead(ctx, room.ID, "bob")
	require.NotNil(t, appErr)
	assert.Equal(t, app_error.KindStoreUnavailable, appErr.Kind)

	stubborn.failUpdate = false
	require.Nil(t, tracker.MarkRead(ctx, room.ID, "bob"))
	msgs, err := env.messages.Query(ctx, queryAll(room.ID))
	require.NoError(t, err)
	require.Len(t, msgs.Items, 1)
	assert.Contains(t, msgs.Items[0].ReadBy, "bob")
}
