package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func TestRecordAndGetTransaction(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	created, err := store.RecordTransaction(ctx, RecordTransactionParams{
		TxID:               "tx1",
		FromAddress:        strPtr("1Sender"),
		ToAddress:          strPtr("1Receiver"),
		Amount:             50_000_000,
		State:              "CONFIRMED",
		BlockHash:          strPtr("blockhash1"),
		BlockHeight:        i64Ptr(800_000),
		RequiredConfidence: 0.99,
	})
	require.NoError(t, err)
	assert.Equal(t, "tx1", created.TxID)
	assert.Equal(t, "1Sender", *created.FromAddress)
	assert.Equal(t, int64(800_000), *created.BlockHeight)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.GetTransaction(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, created.TxID, got.TxID)
	assert.Equal(t, int64(50_000_000), got.Amount)
	assert.Equal(t, "CONFIRMED", got.State)
}

func TestRecordTransactionOverwritesState(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	_, err := store.RecordTransaction(ctx, RecordTransactionParams{
		TxID: "tx1", State: "CONFIRMED", Amount: 100,
	})
	require.NoError(t, err)

	// A reorg can demote a confirmed transaction; the record follows.
	updated, err := store.RecordTransaction(ctx, RecordTransactionParams{
		TxID: "tx1", State: "PENDING", Amount: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", updated.State)
	assert.Nil(t, updated.BlockHash)

	count, err := store.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetTransactionNotFound(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	_, err := store.GetTransaction(context.Background(), "missing")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestListTransactions(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	for _, p := range []RecordTransactionParams{
		{TxID: "tx1", State: "CONFIRMED", Amount: 1},
		{TxID: "tx2", State: "PENDING", Amount: 2},
		{TxID: "tx3", State: "CONFIRMED", Amount: 3},
	} {
		_, err := store.RecordTransaction(ctx, p)
		require.NoError(t, err)
	}

	all, err := store.ListTransactions(ctx, ListTransactionsParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	confirmed, err := store.ListTransactions(ctx, ListTransactionsParams{State: "CONFIRMED", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)

	paged, err := store.ListTransactions(ctx, ListTransactionsParams{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestDeleteTransactionsOlderThan(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	_, err := store.RecordTransaction(ctx, RecordTransactionParams{TxID: "tx1", State: "CONFIRMED"})
	require.NoError(t, err)

	deleted, err := store.DeleteTransactionsOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	deleted, err = store.DeleteTransactionsOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestWatchLifecycle(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	created, err := store.CreateWatch(ctx, CreateWatchParams{
		SenderFilter:       "1Sender",
		RequiredConfidence: 0.95,
	})
	require.NoError(t, err)
	assert.Equal(t, WatchStatusActive, created.Status)
	assert.Equal(t, "1Sender", created.SenderFilter)

	got, err := store.GetWatch(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	active, err := store.ListActiveWatches(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	stopped, err := store.UpdateWatchStatus(ctx, created.ID, WatchStatusStopped)
	require.NoError(t, err)
	assert.Equal(t, WatchStatusStopped, stopped.Status)

	active, err = store.ListActiveWatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.ListWatches(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteWatch(ctx, created.ID))
	_, err = store.GetWatch(ctx, created.ID)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}
