package bitcoin

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
)

func details(confirmations int64) *btcjson.GetTransactionResult {
	return &btcjson.GetTransactionResult{TxID: "abc", Confirmations: confirmations}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		details     *btcjson.GetTransactionResult
		fetchErr    error
		waitFor     int64
		wantOutcome outcome
		wantState   chain.TransactionState
	}{
		{
			name:        "unknown transaction resolves to not found",
			fetchErr:    noTxInfoError(),
			waitFor:     2,
			wantOutcome: outcomeResolved,
			wantState:   chain.StateNotFound,
		},
		{
			name:        "nil details resolves to not found",
			details:     nil,
			waitFor:     2,
			wantOutcome: outcomeResolved,
			wantState:   chain.StateNotFound,
		},
		{
			name:        "conflicted transaction resolves to not found",
			details:     details(-1),
			waitFor:     2,
			wantOutcome: outcomeResolved,
			wantState:   chain.StateNotFound,
		},
		{
			name:        "zero confirmations resolves to pending",
			details:     details(0),
			waitFor:     2,
			wantOutcome: outcomeResolved,
			wantState:   chain.StatePending,
		},
		{
			name:        "depth reached resolves to confirmed",
			details:     details(2),
			waitFor:     2,
			wantOutcome: outcomeResolved,
			wantState:   chain.StateConfirmed,
		},
		{
			name:        "depth exceeded resolves to confirmed",
			details:     details(7),
			waitFor:     2,
			wantOutcome: outcomeResolved,
			wantState:   chain.StateConfirmed,
		},
		{
			name:        "depth not reached stays unresolved",
			details:     details(1),
			waitFor:     2,
			wantOutcome: outcomeUnresolved,
		},
		{
			name:        "sentinel never matches confirmed depth",
			details:     details(10_000),
			waitFor:     -1,
			wantOutcome: outcomeUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := classify(tt.details, tt.fetchErr, tt.waitFor)
			require.Equal(t, tt.wantOutcome, c.outcome)
			assert.Equal(t, tt.wantState, c.state)
			assert.NoError(t, c.err)
		})
	}
}

func TestClassifyNodeFault(t *testing.T) {
	c := classify(nil, errors.New("connection refused"), 2)
	require.Equal(t, outcomeFailed, c.outcome)
	assert.True(t, chain.IsNodeUnreachable(c.err))
}

func TestClassifyRPCFault(t *testing.T) {
	rpcErr := &btcjson.RPCError{Code: btcjson.ErrRPCDeserialization, Message: "TX decode failed"}
	c := classify(nil, rpcErr, 2)
	require.Equal(t, outcomeFailed, c.outcome)
	assert.True(t, chain.IsInvalidTransaction(c.err))
}

func TestStateIn(t *testing.T) {
	interesting := []chain.TransactionState{chain.StateNotFound, chain.StateConfirmed}
	assert.True(t, stateIn(chain.StateConfirmed, interesting))
	assert.True(t, stateIn(chain.StateNotFound, interesting))
	assert.False(t, stateIn(chain.StatePending, interesting))
	assert.False(t, stateIn(chain.StatePending, nil))
}
