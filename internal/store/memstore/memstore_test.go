package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktab/self-order-api/internal/store"
)

type widget struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

func decodeWidget(t *testing.T, doc store.Document) widget {
	t.Helper()
	w, err := store.Decode[widget](doc)
	require.NoError(t, err)
	return w
}

func TestMemstore_SetGet(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear", Color: "red"}))

	doc, err := m.Get(ctx, "widgets", "w1")
	require.NoError(t, err)
	got := decodeWidget(t, doc)
	assert.Equal(t, "w1", got.ID)
	assert.Equal(t, "gear", got.Name)

	_, err = m.Get(ctx, "widgets", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = m.Get(ctx, "nope", "w1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemstore_Set_Overwrites(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear", Color: "red"}))
	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "cog"}))

	doc, err := m.Get(ctx, "widgets", "w1")
	require.NoError(t, err)
	got := decodeWidget(t, doc)
	assert.Equal(t, "cog", got.Name)
	// Set replaces the whole document, unlike Update.
	assert.Empty(t, got.Color)
}

func TestMemstore_Update(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear", Color: "red", Count: 2}))
	require.NoError(t, m.Update(ctx, "widgets", "w1", map[string]any{"color": "blue"}))

	doc, err := m.Get(ctx, "widgets", "w1")
	require.NoError(t, err)
	got := decodeWidget(t, doc)
	assert.Equal(t, "blue", got.Color)
	assert.Equal(t, "gear", got.Name)
	assert.Equal(t, 2, got.Count)

	err = m.Update(ctx, "widgets", "missing", map[string]any{"color": "blue"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemstore_Delete(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear"}))
	require.NoError(t, m.Delete(ctx, "widgets", "w1"))
	_, err := m.Get(ctx, "widgets", "w1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting a missing document is a no-op.
	require.NoError(t, m.Delete(ctx, "widgets", "w1"))
}

func TestMemstore_BatchDelete(t *testing.T) {
	m := New()
	ctx := context.Background()

	for _, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, m.Set(ctx, "widgets", id, widget{Name: id}))
	}
	require.NoError(t, m.BatchDelete(ctx, "widgets", []string{"w1", "w3"}))

	docs, err := m.Query(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "w2", docs[0].ID)
}

func TestMemstore_Query_Filters(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear", Color: "red"}))
	require.NoError(t, m.Set(ctx, "widgets", "w2", widget{Name: "cog", Color: "blue"}))
	require.NoError(t, m.Set(ctx, "widgets", "w3", widget{Name: "bolt", Color: "red"}))

	docs, err := m.Query(ctx, "widgets", store.Where("color", "==", "red"))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = m.Query(ctx, "widgets", store.Where("name", "in", []string{"cog", "bolt"}))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = m.Query(ctx, "widgets",
		store.Where("color", "==", "red"),
		store.Where("name", "==", "gear"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "w1", docs[0].ID)

	docs, err = m.Query(ctx, "widgets", store.Where("color", "==", "green"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = m.Query(ctx, "widgets", store.Where("color", "~=", "red"))
	assert.ErrorIs(t, err, store.ErrBadFilter)
}

func TestMemstore_Query_CollectionsAreIsolated(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear"}))
	require.NoError(t, m.Set(ctx, "gadgets", "g1", widget{Name: "gear"}))

	docs, err := m.Query(ctx, "widgets")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMemstore_Transaction_ReadYourWrites(t *testing.T) {
	m := New()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear", Count: 1}))

	err := m.RunTransaction(ctx, func(tx store.Tx) error {
		docs, err := tx.Query("widgets", store.Where("name", "==", "gear"))
		if err != nil {
			return err
		}
		if len(docs) != 1 {
			return errors.New("expected one doc")
		}
		if err := tx.Update("widgets", "w1", map[string]any{"count": 2}); err != nil {
			return err
		}
		// The staged update is visible to a later read in the same tx.
		docs, err = tx.Query("widgets", store.Where("name", "==", "gear"))
		if err != nil {
			return err
		}
		var w widget
		if err := json.Unmarshal(docs[0].Data, &w); err != nil {
			return err
		}
		if w.Count != 2 {
			return errors.New("staged write not visible")
		}
		return nil
	})
	require.NoError(t, err)

	doc, err := m.Get(ctx, "widgets", "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, decodeWidget(t, doc).Count)
}

func TestMemstore_Transaction_StagedSetVisible(t *testing.T) {
	m := New()
	ctx := context.Background()

	err := m.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set("widgets", "w1", widget{Name: "gear"}); err != nil {
			return err
		}
		docs, err := tx.Query("widgets")
		if err != nil {
			return err
		}
		if len(docs) != 1 {
			return errors.New("staged set not visible")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestMemstore_Transaction_ErrorDiscardsWrites(t *testing.T) {
	m := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set("widgets", "w1", widget{Name: "gear"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = m.Get(ctx, "widgets", "w1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemstore_SubscribeCollection(t *testing.T) {
	m := New()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear", Color: "red"}))

	sub, err := m.SubscribeCollection(ctx, "widgets", store.Where("color", "==", "red"))
	require.NoError(t, err)
	defer sub.Cancel()

	snap := <-sub.Updates()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Docs, 1)

	require.NoError(t, m.Set(ctx, "widgets", "w2", widget{Name: "bolt", Color: "red"}))
	snap = <-sub.Updates()
	require.NoError(t, snap.Err)
	assert.Len(t, snap.Docs, 2)

	// Non-matching writes still trigger a refresh of the same result.
	require.NoError(t, m.Set(ctx, "widgets", "w3", widget{Name: "cog", Color: "blue"}))
	snap = <-sub.Updates()
	require.NoError(t, snap.Err)
	assert.Len(t, snap.Docs, 2)
}

func TestMemstore_SubscribeDocument(t *testing.T) {
	m := New()
	ctx := context.Background()

	sub, err := m.SubscribeDocument(ctx, "widgets", "w1")
	require.NoError(t, err)
	defer sub.Cancel()

	snap := <-sub.Updates()
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Docs)

	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear"}))
	snap = <-sub.Updates()
	require.Len(t, snap.Docs, 1)

	require.NoError(t, m.Delete(ctx, "widgets", "w1"))
	snap = <-sub.Updates()
	assert.Empty(t, snap.Docs)

	_, err = m.SubscribeDocument(ctx, "widgets", "")
	assert.Error(t, err)
}

func TestMemstore_Subscription_Cancel(t *testing.T) {
	m := New()
	ctx := context.Background()

	sub, err := m.SubscribeCollection(ctx, "widgets")
	require.NoError(t, err)

	<-sub.Updates()
	sub.Cancel()
	sub.Cancel() // idempotent

	_, open := <-sub.Updates()
	assert.False(t, open)

	// Writes after cancel must not panic on the closed channel.
	require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Name: "gear"}))
}

func TestMemstore_Subscription_ContextCancel(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := m.SubscribeCollection(ctx, "widgets")
	require.NoError(t, err)

	<-sub.Updates()
	cancel()

	select {
	case _, open := <-sub.Updates():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not torn down on context cancel")
	}
}

func TestMemstore_Subscription_Coalesces(t *testing.T) {
	m := New()
	ctx := context.Background()

	sub, err := m.SubscribeCollection(ctx, "widgets")
	require.NoError(t, err)
	defer sub.Cancel()

	// Burst of writes with no reader in between: only the freshest
	// snapshot is retained.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Set(ctx, "widgets", "w1", widget{Count: i}))
	}

	snap := <-sub.Updates()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, 4, decodeWidget(t, snap.Docs[0]).Count)
}
