package memstore

import (
	"context"
	"sync"

	"github.com/digitalequity/seasure-sp2/internal/store"
)

type subKind int

const (
	subQuery subKind = iota
	subDoc
)

type subscription[T any] struct {
	kind    subKind
	filters []store.Filter
	orderBy string
	docID   string
	queryCB func([]T)
	docCB   func(*T)

	// notify is a coalescing dirty signal: cheap to set on every commit,
	// drained by the delivery goroutine.
	notify chan struct{}
	done   chan struct{}

	// mu is held while the callback runs, so cancel (which takes mu) cannot
	// return before an in-flight delivery has finished.
	mu     sync.Mutex
	closed bool
}

func (c *Collection[T]) SubscribeQuery(ctx context.Context, filters []store.Filter, orderBy string, cb func([]T)) (store.CancelFunc, error) {
	sub := &subscription[T]{
		kind:    subQuery,
		filters: filters,
		orderBy: orderBy,
		queryCB: cb,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	return c.start(ctx, sub), nil
}

func (c *Collection[T]) SubscribeDoc(ctx context.Context, id string, cb func(*T)) (store.CancelFunc, error) {
	sub := &subscription[T]{
		kind:   subDoc,
		docID:  id,
		docCB:  cb,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	return c.start(ctx, sub), nil
}

func (c *Collection[T]) start(ctx context.Context, sub *subscription[T]) store.CancelFunc {
	c.mu.Lock()
	c.nextSub++
	key := c.nextSub
	c.subs[key] = sub
	c.mu.Unlock()

	// First delivery happens before Subscribe returns.
	c.deliver(sub)

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				return
			case <-sub.notify:
				c.deliver(sub)
			}
		}
	}()

	return func() {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.done)
		}
		sub.mu.Unlock()

		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
	}
}

func (c *Collection[T]) deliver(sub *subscription[T]) {
	switch sub.kind {
	case subQuery:
		docs := c.snapshot(sub.filters, sub.orderBy, false)
		items := make([]T, 0, len(docs))
		for _, d := range docs {
			items = append(items, *d)
		}
		sub.mu.Lock()
		if !sub.closed {
			sub.queryCB(items)
		}
		sub.mu.Unlock()
	case subDoc:
		c.mu.RLock()
		var current *T
		if doc, ok := c.docs[sub.docID]; ok {
			current = clone(doc)
		}
		c.mu.RUnlock()
		sub.mu.Lock()
		if !sub.closed {
			sub.docCB(current)
		}
		sub.mu.Unlock()
	}
}

func (c *Collection[T]) notifyAll() {
	c.mu.RLock()
	for _, sub := range c.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	c.mu.RUnlock()
}
