package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quicktab/self-order-api/internal/store"
)

type pgTx struct {
	ctx     context.Context
	tx      pgx.Tx
	touched map[string]bool
	locked  map[string]bool
}

// Query locks the whole collection before reading. FOR UPDATE alone
// only locks rows that exist, so two check-and-insert transactions that
// both read zero rows would both insert; the advisory lock serializes
// them. Held until commit or rollback.
func (t *pgTx) Query(path string, filters ...store.Filter) ([]store.Document, error) {
	if !t.locked[path] {
		if _, err := t.tx.Exec(t.ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, path); err != nil {
			return nil, fmt.Errorf("lock collection: %w", err)
		}
		t.locked[path] = true
	}
	sql, args, err := buildQuery(path, filters)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(t.ctx, sql+` FOR UPDATE`, args...)
	if err != nil {
		return nil, fmt.Errorf("tx query documents: %w", err)
	}
	defer rows.Close()
	return scanDocs(rows)
}

func (t *pgTx) Set(path, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = t.tx.Exec(t.ctx,
		`INSERT INTO documents (collection, doc_id, data, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (collection, doc_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		path, id, raw,
	)
	if err != nil {
		return fmt.Errorf("tx set document: %w", err)
	}
	t.touched[path] = true
	return nil
}

func (t *pgTx) Update(path, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	ct, err := t.tx.Exec(t.ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND doc_id = $2`,
		path, id, patch,
	)
	if err != nil {
		return fmt.Errorf("tx update document: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	t.touched[path] = true
	return nil
}

func (t *pgTx) Delete(path, id string) error {
	_, err := t.tx.Exec(t.ctx,
		`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`, path, id,
	)
	if err != nil {
		return fmt.Errorf("tx delete document: %w", err)
	}
	t.touched[path] = true
	return nil
}
