package bitcoin

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
)

// outcome tags the result of classifying one node event for a tracked
// transaction.
type outcome int

const (
	// outcomeUnresolved means the event produced no reportable state and
	// the subscription stays open.
	outcomeUnresolved outcome = iota

	// outcomeResolved means a state was detected. Whether it completes the
	// subscription depends on the caller's interesting-state set.
	outcomeResolved

	// outcomeFailed means a node-query fault occurred while classifying;
	// the subscription completes exceptionally.
	outcomeFailed
)

// classification is the tagged result consumed by the single completion
// point of a subscription.
type classification struct {
	outcome outcome
	state   chain.TransactionState
	details *btcjson.GetTransactionResult // nil when the transaction was not found at all
	err     error
}

// classify maps the current wallet view of a tracked transaction onto a
// transaction state. The checks run in fixed priority order: not-found wins
// over pending, pending wins over the confirmed-depth check, because a
// single event can satisfy more than one condition textually and the first
// match must decide.
//
// waitFor is the confirmation depth at which the transaction counts as
// durably committed; the sentinel -1 means the subscription is never
// satisfied by depth (orphan detection cares only about PENDING/NOT_FOUND).
func classify(details *btcjson.GetTransactionResult, fetchErr error, waitFor int64) classification {
	if fetchErr != nil {
		if isNoTxInfo(fetchErr) {
			// The node has no trace of the transaction anymore.
			return classification{outcome: outcomeResolved, state: chain.StateNotFound}
		}
		return classification{outcome: outcomeFailed, err: translateNodeError(fetchErr)}
	}

	if details == nil || details.Confirmations < 0 {
		// Negative confirmations is the node's signal that the transaction
		// conflicts with another one on the best chain.
		return classification{outcome: outcomeResolved, state: chain.StateNotFound, details: details}
	}

	if details.Confirmations == 0 {
		// Not contained in a block: either never mined or orphaned out.
		return classification{outcome: outcomeResolved, state: chain.StatePending, details: details}
	}

	if waitFor >= 0 && details.Confirmations >= waitFor {
		return classification{outcome: outcomeResolved, state: chain.StateConfirmed, details: details}
	}

	return classification{outcome: outcomeUnresolved}
}

// stateIn reports whether s is one of the caller's interesting states.
func stateIn(s chain.TransactionState, interesting []chain.TransactionState) bool {
	for _, candidate := range interesting {
		if s == candidate {
			return true
		}
	}
	return false
}
