// Package pgstore is the Postgres document-store driver. Documents live
// in a single jsonb table; change notifications fan out over Redis
// pub/sub channels (one per collection) and subscribers re-query on
// each notification.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quicktab/self-order-api/internal/store"
)

const channelPrefix = "doc:"

type Pgstore struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func New(pool *pgxpool.Pool, redisClient *redis.Client) *Pgstore {
	return &Pgstore{pool: pool, redis: redisClient}
}

func (p *Pgstore) Get(ctx context.Context, path, id string) (store.Document, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`, path, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}
	merged, err := store.MergeID(data, id)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: merged}, nil
}

func (p *Pgstore) Query(ctx context.Context, path string, filters ...store.Filter) ([]store.Document, error) {
	sql, args, err := buildQuery(path, filters)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	return scanDocs(rows)
}

func buildQuery(path string, filters []store.Filter) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT doc_id, data FROM documents WHERE collection = $1`)
	args := []any{path}
	for _, f := range filters {
		switch f.Op {
		case "==":
			args = append(args, fmt.Sprint(f.Value))
			fmt.Fprintf(&sb, ` AND data->>%s = $%d`, quoteLiteral(f.Field), len(args))
		case "in":
			vals, ok := f.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("%w: in wants []string", store.ErrBadFilter)
			}
			args = append(args, vals)
			fmt.Fprintf(&sb, ` AND data->>%s = ANY($%d)`, quoteLiteral(f.Field), len(args))
		default:
			return "", nil, fmt.Errorf("%w: %q", store.ErrBadFilter, f.Op)
		}
	}
	return sb.String(), args, nil
}

// quoteLiteral single-quotes a jsonb key. Field names come from code,
// not user input, but quoting keeps them inert either way.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func scanDocs(rows pgx.Rows) ([]store.Document, error) {
	var docs []store.Document
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		merged, err := store.MergeID(data, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: id, Data: merged})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (p *Pgstore) Set(ctx context.Context, path, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO documents (collection, doc_id, data, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (collection, doc_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		path, id, raw,
	)
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	p.notify(ctx, path)
	return nil
}

func (p *Pgstore) Update(ctx context.Context, path, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	ct, err := p.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND doc_id = $2`,
		path, id, patch,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	p.notify(ctx, path)
	return nil
}

func (p *Pgstore) Delete(ctx context.Context, path, id string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`, path, id,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	p.notify(ctx, path)
	return nil
}

func (p *Pgstore) BatchDelete(ctx context.Context, path string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`, path, id)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("batch delete: %w", err)
	}
	p.notify(ctx, path)
	return nil
}

// RunTransaction runs fn inside a pgx transaction. Transactional reads
// take a collection-level advisory lock, so the check-and-increment
// cart add cannot race itself even when no line exists yet.
func (p *Pgstore) RunTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	pgtx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx)

	t := &pgTx{ctx: ctx, tx: pgtx, touched: make(map[string]bool), locked: make(map[string]bool)}
	if err := fn(t); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	for path := range t.touched {
		p.notify(ctx, path)
	}
	return nil
}

func (p *Pgstore) notify(ctx context.Context, path string) {
	// Fire and forget: the periodic resync in subscribe bounds how long
	// a missed notification can leave subscribers stale.
	_ = p.redis.Publish(ctx, channelPrefix+path, "").Err()
}

func (p *Pgstore) SubscribeCollection(ctx context.Context, path string, filters ...store.Filter) (store.Subscription, error) {
	query := func(ctx context.Context) store.Snapshot {
		docs, err := p.Query(ctx, path, filters...)
		return store.Snapshot{Docs: docs, Err: err}
	}
	return p.subscribe(ctx, path, query)
}

func (p *Pgstore) SubscribeDocument(ctx context.Context, path, id string) (store.Subscription, error) {
	query := func(ctx context.Context) store.Snapshot {
		doc, err := p.Get(ctx, path, id)
		if errors.Is(err, store.ErrNotFound) {
			return store.Snapshot{}
		}
		if err != nil {
			return store.Snapshot{Err: err}
		}
		return store.Snapshot{Docs: []store.Document{doc}}
	}
	return p.subscribe(ctx, path, query)
}

// resyncInterval bounds staleness after a lost pub/sub notification:
// subscribers re-query on this cadence even without a change signal.
var resyncInterval = 30 * time.Second

func (p *Pgstore) subscribe(ctx context.Context, path string, query func(context.Context) store.Snapshot) (store.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := p.redis.Subscribe(subCtx, channelPrefix+path)
	s := &subscription{
		pubsub: pubsub,
		cancel: cancel,
		ch:     make(chan store.Snapshot, 1),
	}

	go func() {
		defer close(s.ch)
		defer pubsub.Close()

		ticker := time.NewTicker(resyncInterval)
		defer ticker.Stop()

		snap := query(subCtx)
		s.push(snap)
		if snap.Err != nil {
			return
		}
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				snap := query(subCtx)
				s.push(snap)
				if snap.Err != nil {
					return
				}
			case <-ticker.C:
				snap := query(subCtx)
				s.push(snap)
				if snap.Err != nil {
					return
				}
			}
		}
	}()
	return s, nil
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	ch     chan store.Snapshot
	once   sync.Once
}

func (s *subscription) Updates() <-chan store.Snapshot { return s.ch }

// push coalesces: an unread stale snapshot is replaced by the newest.
func (s *subscription) push(snap store.Snapshot) {
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
}

func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}
