package provider

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateStore_UpsertAndGet(t *testing.T) {
	store := NewMemoryStateStore(0, nil)
	ctx := context.Background()

	created, err := store.Upsert(ctx, PaymentState{
		PaymentIntentID: "pi_1",
		Provider:        "stripe",
		Status:          StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, created.RetryCount)
	assert.False(t, created.CreatedAt.IsZero())

	loaded, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "stripe", loaded.Provider)
	assert.Equal(t, StatusPending, loaded.Status)
}

func TestMemoryStateStore_UpsertExistingIncrementsRetry(t *testing.T) {
	store := NewMemoryStateStore(0, nil)
	ctx := context.Background()

	_, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "stripe", Status: StatusPending})
	require.NoError(t, err)

	updated, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "paypal", Status: StatusSucceeded})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, "paypal", updated.Provider)
	assert.Equal(t, StatusSucceeded, updated.Status)

	// still one record
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStateStore_GetMissingReturnsNil(t *testing.T) {
	store := NewMemoryStateStore(0, nil)

	state, err := store.Get(context.Background(), "pi_unknown")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestMemoryStateStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStateStore(3, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := store.Upsert(ctx, PaymentState{
			PaymentIntentID: fmt.Sprintf("pi_%d", i),
			Provider:        "stripe",
			Status:          StatusPending,
		})
		require.NoError(t, err)
	}

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	evicted, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	assert.Nil(t, evicted)

	kept, err := store.Get(ctx, "pi_4")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestMemoryStateStore_Delete(t *testing.T) {
	store := NewMemoryStateStore(0, nil)
	ctx := context.Background()

	_, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "stripe", Status: StatusPending})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "pi_1"))
	state, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	assert.Nil(t, state)

	// deleting a missing id is not an error
	assert.NoError(t, store.Delete(ctx, "pi_1"))
}

func TestMemoryStateStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStateStore(0, nil)
	ctx := context.Background()

	_, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "stripe", Status: StatusPending})
	require.NoError(t, err)

	first, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	first.Provider = "mutated"

	second, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "stripe", second.Provider)
}

func newSQLiteStore(t *testing.T, clock Clock) *SQLiteStateStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// one connection so every query sees the same in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStateStore(db, clock)
	require.NoError(t, err)
	return store
}

func TestSQLiteStateStore_UpsertAndGet(t *testing.T) {
	store := newSQLiteStore(t, nil)
	ctx := context.Background()

	created, err := store.Upsert(ctx, PaymentState{
		PaymentIntentID: "pi_1",
		Provider:        "stripe",
		Status:          StatusPending,
		Metadata:        map[string]string{"order_id": "ord_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, created.RetryCount)
	assert.Equal(t, "ord_1", created.Metadata["order_id"])

	loaded, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StatusPending, loaded.Status)
}

func TestSQLiteStateStore_UpsertExistingIncrementsRetry(t *testing.T) {
	store := newSQLiteStore(t, nil)
	ctx := context.Background()

	_, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "stripe", Status: StatusPending})
	require.NoError(t, err)

	updated, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "paypal", Status: StatusSucceeded})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, "paypal", updated.Provider)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStateStore_UpdateKeepsMetadataWhenOmitted(t *testing.T) {
	store := newSQLiteStore(t, nil)
	ctx := context.Background()

	_, err := store.Upsert(ctx, PaymentState{
		PaymentIntentID: "pi_1",
		Provider:        "stripe",
		Status:          StatusPending,
		Metadata:        map[string]string{"order_id": "ord_1"},
	})
	require.NoError(t, err)

	updated, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "stripe", Status: StatusSucceeded})
	require.NoError(t, err)
	assert.Equal(t, "ord_1", updated.Metadata["order_id"])
}

func TestSQLiteStateStore_GetMissingReturnsNil(t *testing.T) {
	store := newSQLiteStore(t, nil)

	state, err := store.Get(context.Background(), "pi_unknown")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSQLiteStateStore_Delete(t *testing.T) {
	store := newSQLiteStore(t, nil)
	ctx := context.Background()

	_, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_1", Provider: "stripe", Status: StatusPending})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "pi_1"))
	state, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSQLiteStateStore_PruneOlderThan(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newSQLiteStore(t, clock)
	ctx := context.Background()

	_, err := store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_old", Provider: "stripe", Status: StatusSucceeded})
	require.NoError(t, err)

	clock.advance(48 * time.Hour)
	_, err = store.Upsert(ctx, PaymentState{PaymentIntentID: "pi_new", Provider: "stripe", Status: StatusSucceeded})
	require.NoError(t, err)

	pruned, err := store.PruneOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	old, err := store.Get(ctx, "pi_old")
	require.NoError(t, err)
	assert.Nil(t, old)

	recent, err := store.Get(ctx, "pi_new")
	require.NoError(t, err)
	assert.NotNil(t, recent)
}
