// Package memstore is an in-memory document store. It backs the unit
// tests and the "memory" store driver for local development; semantics
// mirror pgstore, including live subscriptions.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/quicktab/self-order-api/internal/store"
)

type Memstore struct {
	mu    sync.Mutex
	colls map[string]map[string][]byte
	subs  map[int]*subscription
	next  int
}

func New() *Memstore {
	return &Memstore{
		colls: make(map[string]map[string][]byte),
		subs:  make(map[int]*subscription),
	}
}

func (m *Memstore) Get(_ context.Context, path, id string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.colls[path][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	data, err := store.MergeID(raw, id)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

func (m *Memstore) Query(_ context.Context, path string, filters ...store.Filter) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryLocked(path, filters)
}

func (m *Memstore) Set(_ context.Context, path, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(path, id, raw)
	m.notifyLocked(path)
	return nil
}

func (m *Memstore) Update(_ context.Context, path, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateLocked(path, id, fields); err != nil {
		return err
	}
	m.notifyLocked(path)
	return nil
}

func (m *Memstore) Delete(_ context.Context, path, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.colls[path], id)
	m.notifyLocked(path)
	return nil
}

func (m *Memstore) BatchDelete(_ context.Context, path string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.colls[path], id)
	}
	m.notifyLocked(path)
	return nil
}

// RunTransaction holds the store lock for the whole function, so reads
// see a stable state and writes land atomically. Writes are staged and
// only applied when fn returns nil.
func (m *Memstore) RunTransaction(_ context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	touched := make(map[string]bool)
	for _, w := range tx.writes {
		touched[w.path] = true
		switch w.kind {
		case opSet:
			m.setLocked(w.path, w.id, w.raw)
		case opUpdate:
			if err := m.updateLocked(w.path, w.id, w.fields); err != nil {
				return err
			}
		case opDelete:
			delete(m.colls[w.path], w.id)
		}
	}
	for path := range touched {
		m.notifyLocked(path)
	}
	return nil
}

func (m *Memstore) SubscribeCollection(ctx context.Context, path string, filters ...store.Filter) (store.Subscription, error) {
	return m.subscribe(ctx, path, filters, "")
}

func (m *Memstore) SubscribeDocument(ctx context.Context, path, id string) (store.Subscription, error) {
	if id == "" {
		return nil, fmt.Errorf("memstore: empty document id")
	}
	return m.subscribe(ctx, path, nil, id)
}

func (m *Memstore) subscribe(ctx context.Context, path string, filters []store.Filter, docID string) (store.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &subscription{
		m:       m,
		path:    path,
		filters: filters,
		docID:   docID,
		ch:      make(chan store.Snapshot, 1),
	}
	m.next++
	s.id = m.next
	m.subs[s.id] = s
	s.push(m.snapshotLocked(s))

	go func() {
		<-ctx.Done()
		s.Cancel()
	}()
	return s, nil
}

func (m *Memstore) setLocked(path, id string, raw []byte) {
	if m.colls[path] == nil {
		m.colls[path] = make(map[string][]byte)
	}
	m.colls[path][id] = raw
}

func (m *Memstore) updateLocked(path, id string, fields map[string]any) error {
	raw, ok := m.colls[path][id]
	if !ok {
		return store.ErrNotFound
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	m.colls[path][id] = out
	return nil
}

func (m *Memstore) queryLocked(path string, filters []store.Filter) ([]store.Document, error) {
	var docs []store.Document
	for id, raw := range m.colls[path] {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		ok, err := store.Match(decoded, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, err := store.MergeID(raw, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	return docs, nil
}

func (m *Memstore) snapshotLocked(s *subscription) store.Snapshot {
	if s.docID != "" {
		raw, ok := m.colls[s.path][s.docID]
		if !ok {
			return store.Snapshot{}
		}
		data, err := store.MergeID(raw, s.docID)
		if err != nil {
			return store.Snapshot{Err: err}
		}
		return store.Snapshot{Docs: []store.Document{{ID: s.docID, Data: data}}}
	}
	docs, err := m.queryLocked(s.path, s.filters)
	return store.Snapshot{Docs: docs, Err: err}
}

func (m *Memstore) notifyLocked(path string) {
	for _, s := range m.subs {
		if s.path == path {
			s.push(m.snapshotLocked(s))
		}
	}
}

type subscription struct {
	m       *Memstore
	id      int
	path    string
	filters []store.Filter
	docID   string
	ch      chan store.Snapshot
	once    sync.Once
}

func (s *subscription) Updates() <-chan store.Snapshot { return s.ch }

// push coalesces: an unread stale snapshot is replaced by the newest.
func (s *subscription) push(snap store.Snapshot) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.subs, s.id)
		close(s.ch)
		s.m.mu.Unlock()
	})
}

const opSet, opUpdate, opDelete = 0, 1, 2

type write struct {
	kind   int
	path   string
	id     string
	raw    []byte
	fields map[string]any
}

// memTx reads committed state plus its own staged writes.
type memTx struct {
	m      *Memstore
	writes []write
}

func (t *memTx) Query(path string, filters ...store.Filter) ([]store.Document, error) {
	docs, err := t.m.queryLocked(path, filters)
	if err != nil {
		return nil, err
	}
	for _, w := range t.writes {
		if w.path != path {
			continue
		}
		docs = applyStaged(docs, w)
	}
	return docs, nil
}

func applyStaged(docs []store.Document, w write) []store.Document {
	out := docs[:0]
	for _, d := range docs {
		if d.ID != w.id {
			out = append(out, d)
			continue
		}
		if w.kind == opUpdate {
			var decoded map[string]any
			if json.Unmarshal(d.Data, &decoded) == nil {
				for k, v := range w.fields {
					decoded[k] = v
				}
				if data, err := json.Marshal(decoded); err == nil {
					out = append(out, store.Document{ID: d.ID, Data: data})
				}
			}
		}
	}
	if w.kind == opSet {
		if data, err := store.MergeID(w.raw, w.id); err == nil {
			out = append(out, store.Document{ID: w.id, Data: data})
		}
	}
	return out
}

func (t *memTx) Set(path, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	t.writes = append(t.writes, write{kind: opSet, path: path, id: id, raw: raw})
	return nil
}

func (t *memTx) Update(path, id string, fields map[string]any) error {
	t.writes = append(t.writes, write{kind: opUpdate, path: path, id: id, fields: fields})
	return nil
}

func (t *memTx) Delete(path, id string) error {
	t.writes = append(t.writes, write{kind: opDelete, path: path, id: id})
	return nil
}
