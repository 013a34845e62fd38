package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/quicktab/self-order-api/internal/store"
)

// Document binds a single document to a decoded *T. An absent document
// yields nil, not an error.
type Document[T any] struct {
	st  store.Store
	log *slog.Logger

	mu      sync.Mutex
	data    *T
	loading bool
	sub     store.Subscription
	gen     int
	closed  bool
	updates chan *T
}

func NewDocument[T any](ctx context.Context, st store.Store, log *slog.Logger, path, id string) *Document[T] {
	b := &Document[T]{
		st:      st,
		log:     log,
		loading: true,
		updates: make(chan *T, 1),
	}
	b.SetDoc(ctx, path, id)
	return b
}

// SetDoc re-points the binding; empty path or id short-circuits to nil
// with loading cleared.
func (b *Document[T]) SetDoc(ctx context.Context, path, id string) {
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

	if path == "" || id == "" {
		b.data = nil
		b.loading = false
		b.publishLocked()
		return
	}

	sub, err := b.st.SubscribeDocument(ctx, path, id)
	if err != nil {
		b.log.Error("subscribe document", "path", path, "id", id, "error", err)
		b.data = nil
		b.loading = false
		b.publishLocked()
		return
	}
	b.sub = sub
	b.loading = true
	go b.consume(sub, b.gen, path)
}

func (b *Document[T]) consume(sub store.Subscription, gen int, path string) {
	for snap := range sub.Updates() {
		b.mu.Lock()
		if b.closed || gen != b.gen {
			b.mu.Unlock()
			return
		}
		if snap.Err != nil {
			b.log.Error("document snapshot", "path", path, "error", snap.Err)
			b.data = nil
			b.loading = false
			sub.Cancel()
			b.sub = nil
			b.publishLocked()
			b.mu.Unlock()
			return
		}
		if len(snap.Docs) == 0 {
			b.data = nil
		} else if v, err := store.Decode[T](snap.Docs[0]); err != nil {
			b.log.Error("decode document snapshot", "path", path, "error", err)
			b.data = nil
		} else {
			b.data = &v
		}
		b.loading = false
		b.publishLocked()
		b.mu.Unlock()
	}
}

func (b *Document[T]) publishLocked() {
	select {
	case <-b.updates:
	default:
	}
	select {
	case b.updates <- b.data:
	default:
	}
}

func (b *Document[T]) Data() *T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *Document[T]) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

func (b *Document[T]) Updates() <-chan *T { return b.updates }

func (b *Document[T]) Close() {
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
