package bitcoin

import (
	"log/slog"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/dabberpk/BlockchainAccessLayer/service/metrics"
)

// BlockEvent describes a block newly connected to the best chain. It is
// built from the node notification payload each time, never cached.
type BlockEvent struct {
	Hash   string
	Height int64
}

// BlockHandler is invoked for every connected block. Handlers run on the
// event-delivery goroutine and must not block beyond the node queries
// needed to classify the event.
type BlockHandler func(BlockEvent)

// WalletTxHandler is invoked with the wallet's view of a transaction that
// appeared or changed.
type WalletTxHandler func(*btcjson.GetTransactionResult)

// Hub fans node events out to per-subscription listeners. Each subscription
// registers exactly one listener and owns its handler's state exclusively;
// the hub never coalesces or shares listeners between subscriptions.
//
// Unsubscribe is idempotent: removing an unknown or already-removed token
// is a no-op, so completion hooks can fire on every resolution path without
// coordination.
type Hub struct {
	mu              sync.Mutex
	nextToken       uint64
	blockListeners  map[uint64]BlockHandler
	walletListeners map[uint64]WalletTxHandler
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewHub creates an empty listener hub. If m is nil, no metrics are recorded.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		blockListeners:  make(map[uint64]BlockHandler),
		walletListeners: make(map[uint64]WalletTxHandler),
		metrics:         m,
		logger:          logger,
	}
}

// SubscribeBlocks registers a block listener and returns its token.
func (h *Hub) SubscribeBlocks(fn BlockHandler) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextToken++
	h.blockListeners[h.nextToken] = fn
	return h.nextToken
}

// UnsubscribeBlocks removes a block listener. Safe to call more than once.
func (h *Hub) UnsubscribeBlocks(token uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.blockListeners, token)
}

// SubscribeWalletTxs registers a wallet-change listener and returns its token.
func (h *Hub) SubscribeWalletTxs(fn WalletTxHandler) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextToken++
	h.walletListeners[h.nextToken] = fn
	return h.nextToken
}

// UnsubscribeWalletTxs removes a wallet-change listener. Safe to call more
// than once.
func (h *Hub) UnsubscribeWalletTxs(token uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.walletListeners, token)
}

// PublishBlock delivers a block event to every registered block listener.
// The listener set is snapshotted first so a handler completing its
// subscription (and unsubscribing) mid-delivery cannot deadlock.
func (h *Hub) PublishBlock(ev BlockEvent) {
	h.mu.Lock()
	handlers := make([]BlockHandler, 0, len(h.blockListeners))
	for _, fn := range h.blockListeners {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordEventPublished("block")
	}
	h.logger.Debug("block connected", "hash", ev.Hash, "height", ev.Height, "listeners", len(handlers))

	for _, fn := range handlers {
		fn(ev)
	}
}

// PublishWalletTx delivers a wallet transaction sighting to every registered
// wallet listener.
func (h *Hub) PublishWalletTx(details *btcjson.GetTransactionResult) {
	h.mu.Lock()
	handlers := make([]WalletTxHandler, 0, len(h.walletListeners))
	for _, fn := range h.walletListeners {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordEventPublished("wallet_tx")
	}
	h.logger.Debug("wallet transaction sighted",
		"txid", details.TxID,
		"confirmations", details.Confirmations,
		"listeners", len(handlers),
	)

	for _, fn := range handlers {
		fn(details)
	}
}

// BlockListenerCount returns the number of registered block listeners.
func (h *Hub) BlockListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blockListeners)
}

// WalletListenerCount returns the number of registered wallet listeners.
func (h *Hub) WalletListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.walletListeners)
}
