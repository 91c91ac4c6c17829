package chain

import "fmt"

// TransactionState describes what the node currently reports about a
// transaction. States are not monotonic: a reorg can move a transaction
// from CONFIRMED or PENDING back to NOT_FOUND, and the adapter reports
// whatever the node says at classification time.
type TransactionState string

const (
	// StateNotFound means the node no longer knows the transaction, or
	// reports it as contradicted by a conflicting transaction.
	StateNotFound TransactionState = "NOT_FOUND"

	// StatePending means the transaction has zero confirmations. This
	// covers both "not yet mined" and "was mined, now orphaned".
	StatePending TransactionState = "PENDING"

	// StateConfirmed means the transaction reached the requested
	// confirmation depth.
	StateConfirmed TransactionState = "CONFIRMED"
)

// Valid reports whether s is one of the known states.
func (s TransactionState) Valid() bool {
	switch s {
	case StateNotFound, StatePending, StateConfirmed:
		return true
	}
	return false
}

// Block is a reference to the block containing a transaction. It is always
// built from the current node event, never cached across events.
type Block struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height"`
}

// Transaction is the value-transfer record handed to callers once a
// subscription resolves. It is immutable after being emitted.
type Transaction struct {
	Hash  string           `json:"hash"`
	From  string           `json:"from,omitempty"` // empty until resolved, or if resolution failed
	To    string           `json:"to,omitempty"`
	Value int64            `json:"value"` // smallest ledger unit, always non-negative
	Block *Block           `json:"block,omitempty"`
	State TransactionState `json:"state"`
}

func (t *Transaction) String() string {
	return fmt.Sprintf("tx %s state=%s value=%d", t.Hash, t.State, t.Value)
}

// WatchEvent is one item on an incoming-transaction watch stream. Exactly
// one of Transaction and Err is set.
type WatchEvent struct {
	Transaction *Transaction
	Err         error
}

// Parameter is a named input or output of a contract function. Bitcoin-family
// adapters reject contract operations, but the types are part of the
// capability surface so programmable-ledger adapters can share the interface.
type Parameter struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ContractEvent is a single on-chain event occurrence returned by
// QueryContractEvents.
type ContractEvent struct {
	Identifier string      `json:"identifier"`
	Parameters []Parameter `json:"parameters"`
	Timestamp  int64       `json:"timestamp"`
}
