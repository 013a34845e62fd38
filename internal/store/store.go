// Package store defines the document-store capability the rest of the
// service is written against. Collections are flat string paths
// ("users/abc/cart"), documents are JSON objects keyed by a string id.
// On every read the store merges the document id into the payload under
// "id", so entities decode straight into their model structs.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrBadFilter   = errors.New("unsupported filter operator")
	ErrTxConflict  = errors.New("transaction conflict")
	ErrSubCanceled = errors.New("subscription canceled")
)

// Filter is an equality or membership constraint on a top-level
// document field. Op is "==" or "in"; for "in" Value must be a
// []string.
type Filter struct {
	Field string
	Op    string
	Value any
}

func Where(field, op string, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Document is a raw store record: the JSON payload with "id" merged in.
type Document struct {
	ID   string
	Data []byte
}

// Snapshot is one push from a subscription: the full current result
// set, or a terminal error.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Subscription delivers snapshots until Cancel. The first snapshot is
// the current state; Updates is closed after Cancel or a terminal
// error.
type Subscription interface {
	Updates() <-chan Snapshot
	Cancel()
}

// Tx is the view a transaction function operates on. Reads observe a
// consistent state and writes are applied atomically on commit.
type Tx interface {
	Query(path string, filters ...Filter) ([]Document, error)
	Set(path, id string, doc any) error
	Update(path, id string, fields map[string]any) error
	Delete(path, id string) error
}

type Store interface {
	// Get returns ErrNotFound for an absent document.
	Get(ctx context.Context, path, id string) (Document, error)
	Query(ctx context.Context, path string, filters ...Filter) ([]Document, error)

	Set(ctx context.Context, path, id string, doc any) error
	Update(ctx context.Context, path, id string, fields map[string]any) error
	Delete(ctx context.Context, path, id string) error
	BatchDelete(ctx context.Context, path string, ids []string) error

	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	SubscribeCollection(ctx context.Context, path string, filters ...Filter) (Subscription, error)
	SubscribeDocument(ctx context.Context, path, id string) (Subscription, error)
}
