package bitcoin

import (
	"io"
	"log/slog"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubBlockFanout(t *testing.T) {
	hub := newTestHub(t)

	var got []BlockEvent
	token := hub.SubscribeBlocks(func(ev BlockEvent) { got = append(got, ev) })
	require.Equal(t, 1, hub.BlockListenerCount())

	hub.PublishBlock(BlockEvent{Hash: "h1", Height: 100})
	hub.PublishBlock(BlockEvent{Hash: "h2", Height: 101})
	require.Len(t, got, 2)
	assert.Equal(t, int64(101), got[1].Height)

	hub.UnsubscribeBlocks(token)
	require.Equal(t, 0, hub.BlockListenerCount())

	hub.PublishBlock(BlockEvent{Hash: "h3", Height: 102})
	assert.Len(t, got, 2)
}

func TestHubEachSubscriptionGetsOwnListener(t *testing.T) {
	hub := newTestHub(t)

	first, second := 0, 0
	hub.SubscribeBlocks(func(BlockEvent) { first++ })
	hub.SubscribeBlocks(func(BlockEvent) { second++ })
	require.Equal(t, 2, hub.BlockListenerCount())

	hub.PublishBlock(BlockEvent{Height: 1})
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := newTestHub(t)

	token := hub.SubscribeBlocks(func(BlockEvent) {})
	hub.UnsubscribeBlocks(token)
	hub.UnsubscribeBlocks(token)
	hub.UnsubscribeBlocks(99999)
	assert.Equal(t, 0, hub.BlockListenerCount())

	wtok := hub.SubscribeWalletTxs(func(*btcjson.GetTransactionResult) {})
	hub.UnsubscribeWalletTxs(wtok)
	hub.UnsubscribeWalletTxs(wtok)
	assert.Equal(t, 0, hub.WalletListenerCount())
}

func TestHubHandlerMayUnsubscribeDuringDelivery(t *testing.T) {
	hub := newTestHub(t)

	calls := 0
	var token uint64
	token = hub.SubscribeBlocks(func(BlockEvent) {
		calls++
		hub.UnsubscribeBlocks(token)
	})

	// Must not deadlock, and the listener is gone for later events.
	hub.PublishBlock(BlockEvent{Height: 1})
	hub.PublishBlock(BlockEvent{Height: 2})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, hub.BlockListenerCount())
}

func TestHubWalletFanout(t *testing.T) {
	hub := newTestHub(t)

	var got []*btcjson.GetTransactionResult
	hub.SubscribeWalletTxs(func(d *btcjson.GetTransactionResult) { got = append(got, d) })

	hub.PublishWalletTx(&btcjson.GetTransactionResult{TxID: "t1"})
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TxID)
}
