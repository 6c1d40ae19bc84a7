package mongostore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/digitalequity/seasure-sp2/internal/store"
)

const (
	resubscribeDelay = 2 * time.Second
	pollInterval     = 2 * time.Second
)

// emitter serializes callback delivery so a cancelled subscription can never
// observe a late invocation: cancel takes the same mutex the delivery path
// holds while running the callback.
type emitter struct {
	mu     sync.Mutex
	closed bool
}

func (e *emitter) emit(fn func()) {
	e.mu.Lock()
	if !e.closed {
		fn()
	}
	e.mu.Unlock()
}

func (e *emitter) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (c *Collection[T]) SubscribeQuery(ctx context.Context, filters []store.Filter, orderBy string, cb func([]T)) (store.CancelFunc, error) {
	filter, err := filtersOnly(filters)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	em := &emitter{}

	deliver := func() {
		items, err := c.window(sctx, filter, orderBy)
		if err != nil {
			if sctx.Err() == nil {
				log.Error().Err(err).Str("collection", c.coll.Name()).Msg("store: subscription requery failed")
			}
			return
		}
		em.emit(func() { cb(items) })
	}

	deliver()
	go c.watch(sctx, deliver)

	return func() {
		cancel()
		em.close()
	}, nil
}

func (c *Collection[T]) SubscribeDoc(ctx context.Context, id string, cb func(*T)) (store.CancelFunc, error) {
	sctx, cancel := context.WithCancel(ctx)
	em := &emitter{}

	deliver := func() {
		doc, err := c.Get(sctx, id)
		if err != nil && err != store.ErrNotFound {
			if sctx.Err() == nil {
				log.Error().Err(err).Str("collection", c.coll.Name()).Msg("store: doc subscription refetch failed")
			}
			return
		}
		em.emit(func() { cb(doc) })
	}

	deliver()
	go c.watch(sctx, deliver)

	return func() {
		cancel()
		em.close()
	}, nil
}

// watch re-runs deliver on every change in the collection. Change events are
// only used as a dirty signal; the full window is requeried each time, which
// keeps the "subscriber sees a consistent total order" contract trivially
// true. Falls back to polling when change streams are unavailable
// (standalone mongod).
func (c *Collection[T]) watch(ctx context.Context, deliver func()) {
	for {
		if ctx.Err() != nil {
			return
		}
		cs, err := c.coll.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			log.Warn().Err(err).Str("collection", c.coll.Name()).Msg("store: change stream unavailable, polling")
			c.poll(ctx, deliver)
			return
		}

		for cs.Next(ctx) {
			deliver()
		}
		streamErr := cs.Err()
		_ = cs.Close(context.Background())

		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(streamErr).Str("collection", c.coll.Name()).Msg("store: change stream dropped, resubscribing")
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (c *Collection[T]) poll(ctx context.Context, deliver func()) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deliver()
		}
	}
}

// window fetches the complete ascending result set for a subscription.
func (c *Collection[T]) window(ctx context.Context, filter bson.M, orderBy string) ([]T, error) {
	cur, err := c.coll.Find(ctx, filter, findSortAsc(orderBy))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := make([]T, 0)
	for cur.Next(ctx) {
		var item T
		if err := bson.Unmarshal(cur.Current, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, cur.Err()
}
