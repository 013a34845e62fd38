// Package live implements live query bindings over the document store:
// a binding holds the current decoded result set of one subscription,
// re-subscribes when its query changes, and republishes every new
// snapshot to interested readers.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/quicktab/self-order-api/internal/store"
)

// emptyFilterValue reports whether a filter value is absent in the
// sense that makes the query unconstrained (identity not resolved yet).
func emptyFilterValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	}
	return false
}

// Collection binds a filtered collection to a decoded slice of T.
// At most one subscription is live at a time; Loading starts true and
// clears on the first snapshot, on short-circuit, and on error.
type Collection[T any] struct {
	st  store.Store
	log *slog.Logger

	mu      sync.Mutex
	data    []T
	loading bool
	sub     store.Subscription
	gen     int
	closed  bool
	updates chan []T
}

func NewCollection[T any](ctx context.Context, st store.Store, log *slog.Logger, path string, filters ...store.Filter) *Collection[T] {
	b := &Collection[T]{
		st:      st,
		log:     log,
		loading: true,
		updates: make(chan []T, 1),
	}
	b.SetQuery(ctx, path, filters...)
	return b
}

// SetQuery tears down the previous subscription and opens a new one.
// An empty path, or any filter with an empty value, short-circuits to
// an empty result with loading cleared and no subscription opened.
func (b *Collection[T]) SetQuery(ctx context.Context, path string, filters ...store.Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.sub != nil {
		b.sub.Cancel()
		b.sub = nil
	}
	b.gen++

	shortCircuit := path == ""
	for _, f := range filters {
		if emptyFilterValue(f.Value) {
			shortCircuit = true
		}
	}
	if shortCircuit {
		b.data = nil
		b.loading = false
		b.publishLocked()
		return
	}

	sub, err := b.st.SubscribeCollection(ctx, path, filters...)
	if err != nil {
		b.log.Error("subscribe collection", "path", path, "error", err)
		b.data = nil
		b.loading = false
		b.publishLocked()
		return
	}
	b.sub = sub
	b.loading = true
	go b.consume(sub, b.gen, path)
}

func (b *Collection[T]) consume(sub store.Subscription, gen int, path string) {
	for snap := range sub.Updates() {
		b.mu.Lock()
		if b.closed || gen != b.gen {
			b.mu.Unlock()
			return
		}
		if snap.Err != nil {
			b.log.Error("collection snapshot", "path", path, "error", snap.Err)
			b.data = nil
			b.loading = false
			sub.Cancel()
			b.sub = nil
			b.publishLocked()
			b.mu.Unlock()
			return
		}
		entities, err := store.DecodeAll[T](snap.Docs)
		if err != nil {
			b.log.Error("decode collection snapshot", "path", path, "error", err)
			entities = nil
		}
		b.data = entities
		b.loading = false
		b.publishLocked()
		b.mu.Unlock()
	}
}

// publishLocked pushes the current data to the updates channel,
// replacing an unread stale value.
func (b *Collection[T]) publishLocked() {
	select {
	case <-b.updates:
	default:
	}
	select {
	case b.updates <- b.data:
	default:
	}
}

func (b *Collection[T]) Data() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *Collection[T]) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// Updates yields each new result set; at most one unread snapshot is
// retained. The channel closes on Close.
func (b *Collection[T]) Updates() <-chan []T { return b.updates }

func (b *Collection[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.sub != nil {
		b.sub.Cancel()
		b.sub = nil
	}
	close(b.updates)
}
