package bitcoin

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
)

// MockNodeClient is an in-memory NodeClient for tests. Unknown transaction
// ids answer with the node's "no transaction info" RPC error, matching a
// real wallet node.
type MockNodeClient struct {
	mu sync.Mutex

	transactions    map[string]*btcjson.GetTransactionResult
	rawTransactions map[string]*btcjson.TxRawResult

	getTransactionErr error
	rawTransactionErr error
	sendToAddressID   string
	sendToAddressErr  error
	nodeVersion       string
	nodeVersionErr    error

	getTransactionCalls int
	sendToAddressCalls  int
}

// NewMockNodeClient creates an empty mock.
func NewMockNodeClient() *MockNodeClient {
	return &MockNodeClient{
		transactions:    make(map[string]*btcjson.GetTransactionResult),
		rawTransactions: make(map[string]*btcjson.TxRawResult),
		nodeVersion:     "/Satoshi:25.0.0/",
	}
}

// noTxInfoError mimics bitcoind's answer for an unknown wallet transaction.
func noTxInfoError() error {
	return &btcjson.RPCError{
		Code:    btcjson.ErrRPCNoTxInfo,
		Message: "Invalid or non-wallet transaction id",
	}
}

func (m *MockNodeClient) GetTransaction(_ context.Context, txID string) (*btcjson.GetTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getTransactionCalls++
	if m.getTransactionErr != nil {
		return nil, m.getTransactionErr
	}
	res, ok := m.transactions[txID]
	if !ok {
		return nil, noTxInfoError()
	}
	// Copy so tests mutating the stored result between events do not race
	// with handlers holding an earlier view.
	cp := *res
	return &cp, nil
}

func (m *MockNodeClient) GetRawTransactionVerbose(_ context.Context, txID string) (*btcjson.TxRawResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rawTransactionErr != nil {
		return nil, m.rawTransactionErr
	}
	raw, ok := m.rawTransactions[txID]
	if !ok {
		return nil, noTxInfoError()
	}
	return raw, nil
}

func (m *MockNodeClient) SendToAddress(_ context.Context, _ btcutil.Address, _ btcutil.Amount) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendToAddressCalls++
	if m.sendToAddressErr != nil {
		return "", m.sendToAddressErr
	}
	return m.sendToAddressID, nil
}

func (m *MockNodeClient) NodeVersion(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nodeVersionErr != nil {
		return "", m.nodeVersionErr
	}
	return m.nodeVersion, nil
}

// SetTransaction installs or replaces the wallet view of a transaction.
func (m *MockNodeClient) SetTransaction(txID string, confirmations int64, amountBTC float64, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions[txID] = &btcjson.GetTransactionResult{
		TxID:          txID,
		Amount:        amountBTC,
		Confirmations: confirmations,
		Details: []btcjson.GetTransactionDetailsResult{
			{Address: address, Amount: amountBTC},
		},
	}
}

// SetConfirmations updates the confirmation count of a known transaction.
func (m *MockNodeClient) SetConfirmations(txID string, confirmations int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res, ok := m.transactions[txID]; ok {
		res.Confirmations = confirmations
	}
}

// RemoveTransaction makes the transaction unknown to the node again.
func (m *MockNodeClient) RemoveTransaction(txID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transactions, txID)
}

// Transaction returns the stored wallet view, for driving hub publishes.
func (m *MockNodeClient) Transaction(txID string) *btcjson.GetTransactionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.transactions[txID]
	if !ok {
		return nil
	}
	cp := *res
	return &cp
}

// SetRawTransaction installs the decoded raw form of a transaction. Each
// input references a prior transaction id and output index.
func (m *MockNodeClient) SetRawTransaction(txID string, vin []btcjson.Vin, vout []btcjson.Vout) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rawTransactions[txID] = &btcjson.TxRawResult{
		Txid: txID,
		Vin:  vin,
		Vout: vout,
	}
}

// SetSpender wires up the two raw transactions needed for first-sender
// resolution: txID spends output 0 of prevTxID, and prevTxID's output 0
// pays senderAddress.
func (m *MockNodeClient) SetSpender(txID, prevTxID, senderAddress string) {
	m.SetRawTransaction(txID,
		[]btcjson.Vin{{Txid: prevTxID, Vout: 0}},
		nil,
	)
	m.SetRawTransaction(prevTxID,
		nil,
		[]btcjson.Vout{{N: 0, ScriptPubKey: btcjson.ScriptPubKeyResult{Addresses: []string{senderAddress}}}},
	)
}

// SetGetTransactionError forces every GetTransaction call to fail.
func (m *MockNodeClient) SetGetTransactionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getTransactionErr = err
}

// SetRawTransactionError forces every GetRawTransactionVerbose call to fail.
func (m *MockNodeClient) SetRawTransactionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawTransactionErr = err
}

// SetSendToAddress configures the transaction id returned by SendToAddress.
func (m *MockNodeClient) SetSendToAddress(txID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendToAddressID = txID
}

// SetSendToAddressError forces SendToAddress to fail.
func (m *MockNodeClient) SetSendToAddressError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendToAddressErr = err
}

// SetNodeVersionError forces NodeVersion to fail.
func (m *MockNodeClient) SetNodeVersionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeVersionErr = err
}

// GetTransactionCallCount returns how many times GetTransaction ran.
func (m *MockNodeClient) GetTransactionCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTransactionCalls
}

// SendToAddressCallCount returns how many times SendToAddress ran.
func (m *MockNodeClient) SendToAddressCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendToAddressCalls
}
