package bitcoin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
)

// genesisAddress is a well-formed mainnet P2PKH address.
const genesisAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

// fixedDepth pins the confidence-to-depth mapping so scenarios stay
// deterministic regardless of the adversary model.
type fixedDepth struct {
	depth int64
	err   error
}

func (f fixedDepth) Depth(float64) (int64, error) { return f.depth, f.err }

func newTestAdapter(t *testing.T, depth int64) (*Adapter, *MockNodeClient, *Hub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(nil, logger)
	node := NewMockNodeClient()
	adapter := NewAdapter(node, hub, fixedDepth{depth: depth}, &chaincfg.MainNetParams, nil, logger)
	return adapter, node, hub
}

// submitResult carries a blocking operation's outcome across goroutines.
type submitResult struct {
	tx  *chain.Transaction
	err error
}

// waitBlockListener waits until the adapter has registered its block
// listener, so the test can start publishing events.
func waitBlockListener(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.BlockListenerCount() == n },
		2*time.Second, time.Millisecond)
}

func recvResult(t *testing.T, ch <-chan submitResult) submitResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for operation result")
	}
	return submitResult{}
}

func TestSubmitDepthZeroSkipsSubscription(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 0)
	node.SetSendToAddress("tx1")
	node.SetTransaction("tx1", 0, -0.5, genesisAddress)

	tx, err := adapter.Submit(context.Background(), genesisAddress, 50_000_000, 0)
	require.NoError(t, err)

	assert.Equal(t, chain.StateConfirmed, tx.State)
	assert.Equal(t, "tx1", tx.Hash)
	assert.Equal(t, int64(50_000_000), tx.Value)
	assert.Equal(t, genesisAddress, tx.To)
	// Accept-at-first-sight never registers a listener and fetches once.
	assert.Equal(t, 0, hub.BlockListenerCount())
	assert.Equal(t, 1, node.GetTransactionCallCount())
}

func TestSubmitMalformedAddressFailsSynchronously(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 2)

	tx, err := adapter.Submit(context.Background(), "definitely-not-an-address", 1000, 0.99)
	require.Error(t, err)
	assert.True(t, chain.IsInvalidTransaction(err))
	assert.Nil(t, tx)
	// The failure surfaces before anything touched the node or the hub.
	assert.Equal(t, 0, node.SendToAddressCallCount())
	assert.Equal(t, 0, hub.BlockListenerCount())
}

func TestSubmitRejectsNonPositiveAmount(t *testing.T) {
	adapter, _, _ := newTestAdapter(t, 0)

	_, err := adapter.Submit(context.Background(), genesisAddress, 0, 0)
	require.Error(t, err)
	assert.True(t, chain.IsParameter(err))

	_, err = adapter.Submit(context.Background(), genesisAddress, -5, 0)
	require.Error(t, err)
	assert.True(t, chain.IsParameter(err))
}

func TestSubmitWaitsForConfirmationDepth(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 2)
	node.SetSendToAddress("tx1")
	node.SetTransaction("tx1", 0, -1.0, genesisAddress)

	results := make(chan submitResult, 1)
	go func() {
		tx, err := adapter.Submit(context.Background(), genesisAddress, 100_000_000, 0.99)
		results <- submitResult{tx: tx, err: err}
	}()
	waitBlockListener(t, hub, 1)

	// Zero confirmations is pending, which a submit does not report.
	hub.PublishBlock(BlockEvent{Hash: "b1", Height: 100})
	require.Equal(t, 1, hub.BlockListenerCount())

	// One confirmation is below the requested depth.
	node.SetConfirmations("tx1", 1)
	hub.PublishBlock(BlockEvent{Hash: "b2", Height: 101})
	require.Equal(t, 1, hub.BlockListenerCount())

	node.SetConfirmations("tx1", 2)
	hub.PublishBlock(BlockEvent{Hash: "b3", Height: 102})

	res := recvResult(t, results)
	require.NoError(t, res.err)
	assert.Equal(t, chain.StateConfirmed, res.tx.State)
	require.NotNil(t, res.tx.Block)
	assert.Equal(t, "b3", res.tx.Block.Hash)
	assert.Equal(t, int64(102), res.tx.Block.Height)
	assert.Equal(t, 0, hub.BlockListenerCount())
}

func TestSubmitResolvesFirstSender(t *testing.T) {
	adapter, node, _ := newTestAdapter(t, 0)
	node.SetSendToAddress("tx1")
	node.SetTransaction("tx1", 0, -1.0, genesisAddress)
	node.SetSpender("tx1", "prev1", "1SenderAddressXXXXXXXXXXXXXXXXXXXX")

	tx, err := adapter.Submit(context.Background(), genesisAddress, 100_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, "1SenderAddressXXXXXXXXXXXXXXXXXXXX", tx.From)
}

func TestSubmitSurvivesSenderResolutionFailure(t *testing.T) {
	adapter, node, _ := newTestAdapter(t, 0)
	node.SetSendToAddress("tx1")
	node.SetTransaction("tx1", 0, -1.0, genesisAddress)
	node.SetRawTransactionError(errors.New("pruned node, raw tx unavailable"))

	tx, err := adapter.Submit(context.Background(), genesisAddress, 100_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, chain.StateConfirmed, tx.State)
	assert.Empty(t, tx.From)
}

func TestEnsureStateDepthZero(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 0)
	node.SetTransaction("known", 0, 1.0, genesisAddress)

	state, err := adapter.EnsureState(context.Background(), "known", 0)
	require.NoError(t, err)
	assert.Equal(t, chain.StateConfirmed, state)

	state, err = adapter.EnsureState(context.Background(), "unknown", 0)
	require.NoError(t, err)
	assert.Equal(t, chain.StateNotFound, state)

	assert.Equal(t, 0, hub.BlockListenerCount())
}

func TestEnsureStateReportsVanishedTransaction(t *testing.T) {
	adapter, _, hub := newTestAdapter(t, 2)

	results := make(chan submitResult, 1)
	go func() {
		state, err := adapter.EnsureState(context.Background(), "gone", 0.99)
		results <- submitResult{tx: &chain.Transaction{State: state}, err: err}
	}()
	waitBlockListener(t, hub, 1)

	hub.PublishBlock(BlockEvent{Hash: "b1", Height: 100})

	res := recvResult(t, results)
	require.NoError(t, res.err)
	assert.Equal(t, chain.StateNotFound, res.tx.State)
	assert.Equal(t, 0, hub.BlockListenerCount())
}

func TestEnsureStateCompletesOnceUnderEventBursts(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 1)
	node.SetTransaction("tx1", 1, 1.0, genesisAddress)

	results := make(chan submitResult, 8)
	go func() {
		state, err := adapter.EnsureState(context.Background(), "tx1", 0.9)
		results <- submitResult{tx: &chain.Transaction{State: state}, err: err}
	}()
	waitBlockListener(t, hub, 1)

	// The first block completes the subscription and deregisters the
	// listener; the burst afterwards must neither re-complete nor re-query.
	for i := 0; i < 5; i++ {
		hub.PublishBlock(BlockEvent{Hash: "b", Height: int64(100 + i)})
	}

	res := recvResult(t, results)
	require.NoError(t, res.err)
	assert.Equal(t, chain.StateConfirmed, res.tx.State)
	assert.Equal(t, 0, hub.BlockListenerCount())
	assert.Equal(t, 1, node.GetTransactionCallCount())

	select {
	case extra := <-results:
		t.Fatalf("operation produced a second result: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEnsureStateNodeFaultCompletesExceptionally(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 1)
	node.SetGetTransactionError(errors.New("connection refused"))

	results := make(chan submitResult, 1)
	go func() {
		_, err := adapter.EnsureState(context.Background(), "tx1", 0.9)
		results <- submitResult{err: err}
	}()
	waitBlockListener(t, hub, 1)

	hub.PublishBlock(BlockEvent{Hash: "b1", Height: 100})

	res := recvResult(t, results)
	require.Error(t, res.err)
	assert.True(t, chain.IsNodeUnreachable(res.err))
	assert.Equal(t, 0, hub.BlockListenerCount())
}

func TestEnsureStateCancellation(t *testing.T) {
	adapter, _, hub := newTestAdapter(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan submitResult, 1)
	go func() {
		_, err := adapter.EnsureState(ctx, "tx1", 0.99)
		results <- submitResult{err: err}
	}()
	waitBlockListener(t, hub, 1)

	cancel()

	res := recvResult(t, results)
	require.ErrorIs(t, res.err, context.Canceled)
	// Cancellation runs the same deregistration path as completion.
	waitBlockListener(t, hub, 0)
}

func TestDetectOrphanedIgnoresDeepConfirmations(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 0)
	node.SetTransaction("tx1", 5, 1.0, genesisAddress)

	results := make(chan submitResult, 1)
	go func() {
		state, err := adapter.DetectOrphaned(context.Background(), "tx1")
		results <- submitResult{tx: &chain.Transaction{State: state}, err: err}
	}()
	waitBlockListener(t, hub, 1)

	// A deeply confirmed transaction never satisfies orphan detection.
	hub.PublishBlock(BlockEvent{Hash: "b1", Height: 100})
	hub.PublishBlock(BlockEvent{Hash: "b2", Height: 101})
	require.Equal(t, 1, hub.BlockListenerCount())

	// Reorged out: the transaction fell back to the mempool.
	node.SetConfirmations("tx1", 0)
	hub.PublishBlock(BlockEvent{Hash: "b3", Height: 102})

	res := recvResult(t, results)
	require.NoError(t, res.err)
	assert.Equal(t, chain.StatePending, res.tx.State)
	assert.Equal(t, 0, hub.BlockListenerCount())
}

func TestDetectOrphanedReportsVanishedTransaction(t *testing.T) {
	adapter, node, hub := newTestAdapter(t, 0)
	node.SetTransaction("tx1", 3, 1.0, genesisAddress)

	results := make(chan submitResult, 1)
	go func() {
		state, err := adapter.DetectOrphaned(context.Background(), "tx1")
		results <- submitResult{tx: &chain.Transaction{State: state}, err: err}
	}()
	waitBlockListener(t, hub, 1)

	node.RemoveTransaction("tx1")
	hub.PublishBlock(BlockEvent{Hash: "b1", Height: 100})

	res := recvResult(t, results)
	require.NoError(t, res.err)
	assert.Equal(t, chain.StateNotFound, res.tx.State)
}

func TestTestConnection(t *testing.T) {
	adapter, node, _ := newTestAdapter(t, 0)

	version, err := adapter.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/Satoshi:25.0.0/", version)

	node.SetNodeVersionError(errors.New("dial tcp: connection refused"))
	_, err = adapter.TestConnection(context.Background())
	require.Error(t, err)
	assert.True(t, chain.IsNodeUnreachable(err))
}

func TestContractOperationsNotSupported(t *testing.T) {
	adapter, _, _ := newTestAdapter(t, 0)
	ctx := context.Background()

	_, err := adapter.InvokeContract(ctx, "addr", "transfer", nil, 0.9)
	assert.True(t, chain.IsNotSupported(err))

	_, err = adapter.SubscribeContractEvent(ctx, "addr", "Transfer", "")
	assert.True(t, chain.IsNotSupported(err))

	_, err = adapter.QueryContractEvents(ctx, "addr", "Transfer", "")
	assert.True(t, chain.IsNotSupported(err))
}
