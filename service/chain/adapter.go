package chain

import "context"

// Adapter is the capability set a ledger family exposes to the access layer.
// One implementation exists per ledger family, selected at construction
// time. Operations that a family cannot support must fail fast with a
// NotSupportedError instead of silently no-oping.
//
// Blocking operations honor ctx: cancelling it abandons the underlying
// subscription and deregisters its listeners.
type Adapter interface {
	// Submit sends value to the destination address and blocks until the
	// resulting transaction reaches the requested confidence, is found to
	// be invalid, or ctx is cancelled. Amount is in the smallest ledger
	// unit.
	Submit(ctx context.Context, toAddress string, amount int64, requiredConfidence float64) (*Transaction, error)

	// WatchIncoming streams incoming value transfers as they reach the
	// requested confidence. senderFilter, when non-empty, drops
	// transactions whose resolved first sender does not match. The stream
	// is long-lived; cancelling ctx deregisters the wallet listener and
	// closes the channel.
	WatchIncoming(ctx context.Context, senderFilter string, requiredConfidence float64) (<-chan WatchEvent, error)

	// EnsureState blocks until the transaction reaches the requested
	// confidence or is found missing, and returns the detected state.
	EnsureState(ctx context.Context, txID string, requiredConfidence float64) (TransactionState, error)

	// DetectOrphaned blocks until the transaction is seen without a
	// containing block (PENDING) or disappears entirely (NOT_FOUND). It
	// never resolves CONFIRMED.
	DetectOrphaned(ctx context.Context, txID string) (TransactionState, error)

	// InvokeContract invokes a smart contract function. Non-programmable
	// ledger families return a NotSupportedError synchronously.
	InvokeContract(ctx context.Context, contractPath, function string, inputs []Parameter, requiredConfidence float64) (*Transaction, error)

	// SubscribeContractEvent subscribes to occurrences of an on-chain
	// event. Non-programmable ledger families return a NotSupportedError.
	SubscribeContractEvent(ctx context.Context, contractAddress, eventIdentifier, filter string) (<-chan ContractEvent, error)

	// QueryContractEvents queries past occurrences of an on-chain event.
	// Non-programmable ledger families return a NotSupportedError.
	QueryContractEvents(ctx context.Context, contractAddress, eventIdentifier, filter string) ([]ContractEvent, error)

	// TestConnection probes the node and returns its version string.
	TestConnection(ctx context.Context) (string, error)
}
