package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalequity/seasure-sp2/internal/store"
)

type note struct {
	ID        string           `bson:"_id,omitempty"`
	Author    string           `bson:"author"`
	Body      string           `bson:"body"`
	Tags      []string         `bson:"tags,omitempty"`
	Counters  map[string]int64 `bson:"counters,omitempty"`
	CreatedAt time.Time        `bson:"createdAt"`
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()

	doc := &note{Author: "u1", Body: "hello", CreatedAt: at(0)}
	id, err := col.Create(ctx, doc)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, doc.ID, "Create should write the generated id back")

	got, err := col.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)

	// The returned document is a copy, not an alias of stored state.
	got.Body = "mutated"
	again, err := col.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Body)
}

func TestCreateWithID_Conflict(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()

	require.NoError(t, col.CreateWithID(ctx, "n1", &note{Body: "first", CreatedAt: at(0)}))

	err := col.CreateWithID(ctx, "n1", &note{Body: "second", CreatedAt: at(1)})
	assert.ErrorIs(t, err, store.ErrExists)

	got, err := col.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Body, "loser must not overwrite the winner")
}

func TestGet_NotFound(t *testing.T) {
	col := NewCollection[note]()
	_, err := col.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdate_DottedPaths(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()
	require.NoError(t, col.CreateWithID(ctx, "n1", &note{Body: "hello", CreatedAt: at(0)}))

	err := col.Update(ctx, "n1", store.Fields{
		"body":        "edited",
		"counters.u2": int64(7),
	})
	require.NoError(t, err)

	got, err := col.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Body)
	assert.Equal(t, int64(7), got.Counters["u2"], "dotted path should allocate the nil map")

	assert.ErrorIs(t, col.Update(ctx, "missing", store.Fields{"body": "x"}), store.ErrNotFound)
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()
	require.NoError(t, col.CreateWithID(ctx, "n1", &note{CreatedAt: at(0)}))

	// A counter that was never written starts at zero.
	require.NoError(t, col.Increment(ctx, "n1", "counters.u1", 1))
	require.NoError(t, col.Increment(ctx, "n1", "counters.u1", 2))

	got, err := col.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Counters["u1"])
}

func TestQuery_FilterOps(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()
	require.NoError(t, col.CreateWithID(ctx, "a", &note{Author: "u1", Body: "The Engine Room", Tags: []string{"u1", "u2"}, CreatedAt: at(1)}))
	require.NoError(t, col.CreateWithID(ctx, "b", &note{Author: "u2", Body: "galley notes", Tags: []string{"u2"}, CreatedAt: at(2)}))

	page, err := col.Query(ctx, store.Query{
		Filters: []store.Filter{store.Eq("author", "u1")},
		OrderBy: "createdAt",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)

	page, err = col.Query(ctx, store.Query{
		Filters: []store.Filter{store.ArrayContains("tags", "u2")},
		OrderBy: "createdAt",
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	// Substring match is case-insensitive.
	page, err = col.Query(ctx, store.Query{
		Filters: []store.Filter{store.Contains("body", "engine")},
		OrderBy: "createdAt",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)
}

func TestQuery_DescendingPagination(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, col.CreateWithID(ctx, id, &note{Body: id, CreatedAt: at(i)}))
	}

	var seen []string
	cursor := ""
	for {
		page, err := col.Query(ctx, store.Query{
			OrderBy: "createdAt",
			Desc:    true,
			Limit:   2,
			Cursor:  cursor,
		})
		require.NoError(t, err)
		if len(page.Items) == 0 {
			break
		}
		for _, it := range page.Items {
			seen = append(seen, it.ID)
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, seen, "pages must walk newest to oldest with no gaps or repeats")
}

func TestQuery_CursorStableUnderInserts(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()
	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		require.NoError(t, col.CreateWithID(ctx, id, &note{CreatedAt: at(i)}))
	}

	page, err := col.Query(ctx, store.Query{OrderBy: "createdAt", Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	// New documents at the head must not shift the next window.
	require.NoError(t, col.CreateWithID(ctx, "z", &note{CreatedAt: at(10)}))

	next, err := col.Query(ctx, store.Query{OrderBy: "createdAt", Desc: true, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 2)
	assert.Equal(t, "b", next.Items[0].ID)
	assert.Equal(t, "a", next.Items[1].ID)
}

func TestQuery_MalformedCursor(t *testing.T) {
	col := NewCollection[note]()
	_, err := col.Query(context.Background(), store.Query{OrderBy: "createdAt", Cursor: "not-a-cursor!!!"})
	assert.Error(t, err)
}

func TestSubscribeQuery(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()
	require.NoError(t, col.CreateWithID(ctx, "a", &note{Author: "u1", CreatedAt: at(0)}))

	snapshots := make(chan []note, 8)
	cancel, err := col.SubscribeQuery(ctx, []store.Filter{store.Eq("author", "u1")}, "createdAt", func(items []note) {
		snapshots <- items
	})
	require.NoError(t, err)

	// Initial snapshot arrives without any write.
	first := <-snapshots
	require.Len(t, first, 1)

	require.NoError(t, col.CreateWithID(ctx, "b", &note{Author: "u1", CreatedAt: at(1)}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			if len(snap) == 2 {
				assert.Equal(t, "a", snap[0].ID)
				assert.Equal(t, "b", snap[1].ID)
				goto done
			}
		case <-deadline:
			t.Fatal("never observed the second document")
		}
	}
done:

	cancel()
	require.NoError(t, col.CreateWithID(ctx, "c", &note{Author: "u1", CreatedAt: at(2)}))
	select {
	case snap := <-snapshots:
		t.Fatalf("callback fired after cancel: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeDoc(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[note]()

	docs := make(chan *note, 8)
	cancel, err := col.SubscribeDoc(ctx, "n1", func(d *note) {
		docs <- d
	})
	require.NoError(t, err)
	defer cancel()

	// Missing document delivers nil.
	assert.Nil(t, <-docs)

	require.NoError(t, col.CreateWithID(ctx, "n1", &note{Body: "hello", CreatedAt: at(0)}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case d := <-docs:
			if d != nil && d.Body == "hello" {
				return
			}
		case <-deadline:
			t.Fatal("never observed the created document")
		}
	}
}
