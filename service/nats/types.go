package nats

import (
	"time"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
)

// TransactionEvent represents a transaction state event published to NATS.
// This is published to the subject "txns.{txid}" in JetStream.
type TransactionEvent struct {
	// Transaction identifiers
	TxID string `json:"txid"`

	// Addresses. FromAddress is omitted when provenance resolution did
	// not produce a sender.
	FromAddress string `json:"from_address,omitempty"`
	ToAddress   string `json:"to_address,omitempty"`

	// Transaction details
	Amount int64  `json:"amount"`
	State  string `json:"state"`

	// Containing block, when the transaction was reported with one.
	BlockHash   string `json:"block_hash,omitempty"`
	BlockHeight int64  `json:"block_height,omitempty"`

	// WatchID identifies the incoming-transfer watch that produced the
	// event, zero for events from one-shot operations.
	WatchID int64 `json:"watch_id,omitempty"`

	// Error carries the failure message for exceptionally completed
	// subscriptions.
	Error string `json:"error,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromChainTransaction converts a monitored transaction to a
// TransactionEvent for publishing.
func FromChainTransaction(tx *chain.Transaction) *TransactionEvent {
	event := &TransactionEvent{
		TxID:        tx.Hash,
		FromAddress: tx.From,
		ToAddress:   tx.To,
		Amount:      tx.Value,
		State:       string(tx.State),
		PublishedAt: time.Now().UTC(),
	}
	if tx.Block != nil {
		event.BlockHash = tx.Block.Hash
		event.BlockHeight = tx.Block.Height
	}
	return event
}
