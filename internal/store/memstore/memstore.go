// Package memstore is the in-memory record store used by tests and -dev
// runs. It implements the same contract as mongostore, including dotted
// field paths, atomic per-field increments, stable cursors and full-window
// subscriptions.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/digitalequity/seasure-sp2/internal/store"
)

type Collection[T any] struct {
	mu      sync.RWMutex
	docs    map[string]*T
	subs    map[int64]*subscription[T]
	nextSub int64
}

func NewCollection[T any]() *Collection[T] {
	return &Collection[T]{
		docs: make(map[string]*T),
		subs: make(map[int64]*subscription[T]),
	}
}

// clone deep-copies a document through a bson round trip so stored state is
// never aliased by callers.
func clone[T any](doc *T) *T {
	raw, err := bson.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("memstore: clone marshal: %v", err))
	}
	out := new(T)
	if err := bson.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memstore: clone unmarshal: %v", err))
	}
	return out
}

func docID[T any](doc *T) string {
	id, ok := getPath(doc, "_id")
	if !ok {
		return ""
	}
	s, _ := id.(string)
	return s
}

func (c *Collection[T]) Create(ctx context.Context, doc *T) (string, error) {
	id := uuid.NewString()
	if err := c.CreateWithID(ctx, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Collection[T]) CreateWithID(ctx context.Context, id string, doc *T) error {
	stored := clone(doc)
	if err := setPath(stored, "_id", id); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.docs[id]; exists {
		c.mu.Unlock()
		return store.ErrExists
	}
	c.docs[id] = stored
	c.mu.Unlock()

	_ = setPath(doc, "_id", id)
	c.notifyAll()
	return nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	c.mu.RLock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.RUnlock()
		return nil, store.ErrNotFound
	}
	out := clone(doc)
	c.mu.RUnlock()
	return out, nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, fields store.Fields) error {
	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	for path, val := range fields {
		if err := ensureSetPath(doc, path, val); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()
	c.notifyAll()
	return nil
}

func (c *Collection[T]) Increment(ctx context.Context, id string, fieldPath string, delta int64) error {
	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return store.ErrNotFound
	}
	if err := incPath(doc, fieldPath, delta); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.notifyAll()
	return nil
}

func (c *Collection[T]) Query(ctx context.Context, q store.Query) (store.Page[T], error) {
	if q.OrderBy == "" {
		return store.Page[T]{}, fmt.Errorf("memstore: query requires an order field")
	}
	var cur *store.Cursor
	if q.Cursor != "" {
		decoded, err := store.DecodeCursor(q.Cursor)
		if err != nil {
			return store.Page[T]{}, err
		}
		cur = &decoded
	}

	matched := c.snapshot(q.Filters, q.OrderBy, q.Desc)

	items := make([]T, 0, q.Limit)
	var lastAt time.Time
	var lastID string
	for _, doc := range matched {
		at, id := orderKey(doc, q.OrderBy)
		if cur != nil && !beyondCursor(at, id, *cur, q.Desc) {
			continue
		}
		items = append(items, *doc)
		lastAt, lastID = at, id
		if q.Limit > 0 && len(items) == q.Limit {
			break
		}
	}

	page := store.Page[T]{Items: items}
	if len(items) > 0 {
		page.NextCursor = store.Cursor{At: lastAt, ID: lastID}.Encode()
	}
	return page, nil
}

// beyondCursor reports whether (at, id) lies strictly past the cursor in
// scan direction.
func beyondCursor(at time.Time, id string, cur store.Cursor, desc bool) bool {
	if at.Equal(cur.At) {
		if desc {
			return id < cur.ID
		}
		return id > cur.ID
	}
	if desc {
		return at.Before(cur.At)
	}
	return at.After(cur.At)
}

func orderKey[T any](doc *T, orderBy string) (time.Time, string) {
	var at time.Time
	if v, ok := getPath(doc, orderBy); ok {
		if t, ok := v.(time.Time); ok {
			at = t
		}
	}
	return at, docID(doc)
}

// snapshot returns cloned matches sorted by (orderBy, id).
func (c *Collection[T]) snapshot(filters []store.Filter, orderBy string, desc bool) []*T {
	c.mu.RLock()
	matched := make([]*T, 0, len(c.docs))
	for _, doc := range c.docs {
		if matches(doc, filters) {
			matched = append(matched, clone(doc))
		}
	}
	c.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ai, idi := orderKey(matched[i], orderBy)
		aj, idj := orderKey(matched[j], orderBy)
		var less bool
		if ai.Equal(aj) {
			less = idi < idj
		} else {
			less = ai.Before(aj)
		}
		if desc {
			return !less
		}
		return less
	})
	return matched
}

func matches[T any](doc *T, filters []store.Filter) bool {
	for _, f := range filters {
		got, ok := getPath(doc, f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case store.OpEq:
			if !reflect.DeepEqual(got, f.Value) {
				return false
			}
		case store.OpLt, store.OpGt:
			cmp, ok := compareOrdered(got, f.Value)
			if !ok {
				return false
			}
			if f.Op == store.OpLt && cmp >= 0 {
				return false
			}
			if f.Op == store.OpGt && cmp <= 0 {
				return false
			}
		case store.OpContains:
			s, sok := got.(string)
			sub, vok := f.Value.(string)
			if !sok || !vok || !strings.Contains(strings.ToLower(s), strings.ToLower(sub)) {
				return false
			}
		case store.OpArrayContains:
			v := reflect.ValueOf(got)
			if v.Kind() != reflect.Slice {
				return false
			}
			found := false
			for i := 0; i < v.Len(); i++ {
				if reflect.DeepEqual(v.Index(i).Interface(), f.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func compareOrdered(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		}
		return 0, true
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.CanInt() && bv.CanInt() {
		switch {
		case av.Int() < bv.Int():
			return -1, true
		case av.Int() > bv.Int():
			return 1, true
		}
		return 0, true
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}
