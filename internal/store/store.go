// Package store defines the record-store adapter the chat core is written
// against: typed CRUD, cursor-paginated queries, per-field atomic updates and
// live full-window subscriptions over a document collection. Production runs
// on MongoDB (mongostore); tests and -dev mode run on memstore.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("store: document not found")
	ErrExists   = errors.New("store: document already exists")
)

// Op is the closed set of filter operators.
type Op string

const (
	OpEq       Op = "=="
	OpLt       Op = "<"
	OpGt       Op = ">"
	OpContains Op = "contains"
	// OpArrayContains matches documents whose array field holds the value.
	OpArrayContains Op = "array-contains"
)

// Filter is a single typed filter descriptor: field path, operator, value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

func Contains(field string, value string) Filter {
	return Filter{Field: field, Op: OpContains, Value: value}
}

func ArrayContains(field string, value any) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

// Query describes one paginated fetch. OrderBy must name a time-valued
// field; ties are broken by document id, so the (OrderBy, id) pair gives a
// total order that stays stable under concurrent writes.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	// Cursor resumes a previous page; opaque to callers.
	Cursor string
}

// Page is one window of query results. NextCursor is set whenever Items is
// non-empty; whether another fetch is worthwhile is the caller's call.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Fields is a partial update keyed by dotted field paths
// ("unreadCount.u1", "lastMessage").
type Fields map[string]any

// CancelFunc tears down a subscription. After it returns, the callback is
// guaranteed not to be invoked again.
type CancelFunc func()

// Collection is a typed handle on one document collection.
type Collection[T any] interface {
	// Create inserts doc with a generated id and returns it.
	Create(ctx context.Context, doc *T) (string, error)
	// CreateWithID atomically inserts doc if and only if no document with
	// this id exists; returns ErrExists otherwise.
	CreateWithID(ctx context.Context, id string, doc *T) error
	Get(ctx context.Context, id string) (*T, error)
	Update(ctx context.Context, id string, fields Fields) error
	// Increment atomically adds delta to the numeric field at fieldPath.
	Increment(ctx context.Context, id string, fieldPath string, delta int64) error
	Query(ctx context.Context, q Query) (Page[T], error)
	// SubscribeDoc delivers the current document immediately, then again on
	// every change; nil when the document does not exist.
	SubscribeDoc(ctx context.Context, id string, cb func(*T)) (CancelFunc, error)
	// SubscribeQuery delivers the complete ordered result set (ascending by
	// orderBy, ties by id) immediately and then on every change. Not a
	// delta feed: subscribers reconcile by wholesale replacement.
	SubscribeQuery(ctx context.Context, filters []Filter, orderBy string, cb func([]T)) (CancelFunc, error)
}
