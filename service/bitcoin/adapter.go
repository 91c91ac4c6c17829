package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
	"github.com/dabberpk/BlockchainAccessLayer/service/confidence"
	"github.com/dabberpk/BlockchainAccessLayer/service/metrics"
)

// watchBuffer bounds how many resolved incoming transactions may queue up
// before a slow consumer backpressures the forwarding goroutine.
const watchBuffer = 16

// Adapter implements chain.Adapter for linear proof-of-work ledgers served
// by a bitcoind-compatible wallet node. It holds no per-subscription state
// itself: each operation captures its state in its own handler closures and
// completes through a single-assignment result slot.
type Adapter struct {
	node    NodeClient
	hub     *Hub
	calc    confidence.Calculator
	params  *chaincfg.Params
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ chain.Adapter = (*Adapter)(nil)

// NewAdapter wires the adapter from its collaborators. params selects the
// address encoding rules for the configured network. If m is nil, no
// metrics are recorded.
func NewAdapter(node NodeClient, hub *Hub, calc confidence.Calculator, params *chaincfg.Params, m *metrics.Metrics, logger *slog.Logger) *Adapter {
	return &Adapter{
		node:    node,
		hub:     hub,
		calc:    calc,
		params:  params,
		metrics: m,
		logger:  logger,
	}
}

// subscribeTx opens a block-confirmation subscription for txID. On every
// connected block the tracked transaction is re-fetched and classified; the
// first classification that yields an interesting state (or a failure)
// completes the slot, and the completion hook deregisters the listener on
// every path. This is the only place a confirmation-wait subscription
// completes.
func (a *Adapter) subscribeTx(ctx context.Context, kind, txID string, waitFor int64, interesting ...chain.TransactionState) *resultSlot {
	slot := newResultSlot()

	token := a.hub.SubscribeBlocks(func(ev BlockEvent) {
		details, err := a.node.GetTransaction(ctx, txID)
		c := classify(details, err, waitFor)

		switch c.outcome {
		case outcomeUnresolved:
			return

		case outcomeFailed:
			slot.complete(nil, c.err)

		case outcomeResolved:
			if !stateIn(c.state, interesting) {
				return
			}
			a.logger.Info("tracked transaction reached a reported state",
				"txid", txID,
				"state", c.state,
				"block_height", ev.Height,
			)
			tx := a.buildTransaction(ctx, txID, c.details, &chain.Block{Hash: ev.Hash, Height: ev.Height})
			tx.State = c.state
			slot.complete(tx, nil)
		}
	})

	if a.metrics != nil {
		a.metrics.RecordSubscriptionOpened(kind)
	}
	slot.onComplete(func() {
		a.hub.UnsubscribeBlocks(token)
		if a.metrics != nil {
			a.metrics.RecordSubscriptionCompleted(kind, a.completionOutcome(slot))
		}
	})

	return slot
}

// completionOutcome labels a completed slot for metrics.
func (a *Adapter) completionOutcome(slot *resultSlot) string {
	switch {
	case slot.err == nil && slot.tx != nil:
		return string(slot.tx.State)
	case errors.Is(slot.err, context.Canceled) || errors.Is(slot.err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// buildTransaction assembles the caller-facing transaction from the
// wallet's view. A nil details means the transaction vanished entirely; the
// result then carries only the state the caller sets afterwards. Sender
// resolution failures degrade to an unset From.
func (a *Adapter) buildTransaction(ctx context.Context, txID string, details *btcjson.GetTransactionResult, block *chain.Block) *chain.Transaction {
	if details == nil {
		return &chain.Transaction{}
	}

	tx := &chain.Transaction{
		Hash:  details.TxID,
		Value: satoshisAbs(details.Amount),
		Block: block,
	}
	if len(details.Details) > 0 {
		// A transaction can touch several wallet addresses; the first
		// affected one is reported, matching the wallet's own ordering.
		tx.To = details.Details[0].Address
	}
	tx.From = a.resolveSender(ctx, details.TxID)

	if tx.Hash == "" {
		tx.Hash = txID
	}
	return tx
}

// satoshisAbs converts a wallet BTC amount (negative for outgoing
// transactions) to non-negative satoshis.
func satoshisAbs(btc float64) int64 {
	amount, err := btcutil.NewAmount(math.Abs(btc))
	if err != nil {
		return 0
	}
	return int64(amount)
}

// Submit sends amount satoshis to toAddress and blocks until the resulting
// transaction reaches the requested confidence or fails. Address and amount
// problems surface synchronously, before any subscription exists.
func (a *Adapter) Submit(ctx context.Context, toAddress string, amount int64, requiredConfidence float64) (*chain.Transaction, error) {
	if amount <= 0 {
		return nil, chain.Parameterf("amount must be positive, got %d", amount)
	}

	address, err := btcutil.DecodeAddress(toAddress, a.params)
	if err != nil {
		return nil, &chain.InvalidTransactionError{Err: fmt.Errorf("malformed address %q: %w", toAddress, err)}
	}
	if !address.IsForNet(a.params) {
		return nil, &chain.InvalidTransactionError{Err: fmt.Errorf("address %q is not valid for network %s", toAddress, a.params.Name)}
	}

	waitFor, err := a.calc.Depth(requiredConfidence)
	if err != nil {
		return nil, err
	}

	txID, err := a.node.SendToAddress(ctx, address, btcutil.Amount(amount))
	if err != nil {
		return nil, translateNodeError(err)
	}

	a.logger.Info("transaction submitted",
		"txid", txID,
		"to", toAddress,
		"amount", amount,
		"wait_for", waitFor,
	)

	if waitFor > 0 {
		slot := a.subscribeTx(ctx, "submit", txID, waitFor, chain.StateNotFound, chain.StateConfirmed)
		return slot.await(ctx)
	}

	// Depth zero means accept at first sight: no listener, one fetch.
	details, err := a.node.GetTransaction(ctx, txID)
	if err != nil {
		return nil, translateNodeError(err)
	}
	tx := a.buildTransaction(ctx, txID, details, nil)
	tx.State = chain.StateConfirmed
	return tx, nil
}

// EnsureState blocks until the transaction reaches the requested confidence
// or disappears, and reports the detected state.
func (a *Adapter) EnsureState(ctx context.Context, txID string, requiredConfidence float64) (chain.TransactionState, error) {
	waitFor, err := a.calc.Depth(requiredConfidence)
	if err != nil {
		return "", err
	}

	if waitFor <= 0 {
		// Accept at first sight; a single fetch distinguishes existing
		// from vanished transactions without registering a listener.
		_, err := a.node.GetTransaction(ctx, txID)
		if err != nil {
			if isNoTxInfo(err) {
				return chain.StateNotFound, nil
			}
			return "", translateNodeError(err)
		}
		return chain.StateConfirmed, nil
	}

	slot := a.subscribeTx(ctx, "ensure_state", txID, waitFor, chain.StateNotFound, chain.StateConfirmed)
	tx, err := slot.await(ctx)
	if err != nil {
		return "", err
	}
	return tx.State, nil
}

// DetectOrphaned blocks until the transaction is seen without a containing
// block or vanishes. The -1 sentinel keeps the confirmed-depth check from
// ever matching, so the result is always PENDING or NOT_FOUND.
func (a *Adapter) DetectOrphaned(ctx context.Context, txID string) (chain.TransactionState, error) {
	slot := a.subscribeTx(ctx, "detect_orphaned", txID, -1, chain.StatePending, chain.StateNotFound)
	tx, err := slot.await(ctx)
	if err != nil {
		return "", err
	}
	return tx.State, nil
}

// TestConnection probes the node and returns its version string.
func (a *Adapter) TestConnection(ctx context.Context) (string, error) {
	version, err := a.node.NodeVersion(ctx)
	if err != nil {
		return "", &chain.NodeUnreachableError{Err: err}
	}
	return version, nil
}

// InvokeContract always fails: Bitcoin has no smart contract function
// invocation semantics.
func (a *Adapter) InvokeContract(context.Context, string, string, []chain.Parameter, float64) (*chain.Transaction, error) {
	return nil, &chain.NotSupportedError{Operation: "invoke contract"}
}

// SubscribeContractEvent always fails: Bitcoin emits no contract events.
func (a *Adapter) SubscribeContractEvent(context.Context, string, string, string) (<-chan chain.ContractEvent, error) {
	return nil, &chain.NotSupportedError{Operation: "subscribe to contract events"}
}

// QueryContractEvents always fails: Bitcoin emits no contract events.
func (a *Adapter) QueryContractEvents(context.Context, string, string, string) ([]chain.ContractEvent, error) {
	return nil, &chain.NotSupportedError{Operation: "query contract events"}
}
