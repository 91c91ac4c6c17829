package chain

import (
	"context"
	"sync"
)

// MockAdapter is a mock implementation of Adapter for testing.
type MockAdapter struct {
	mu sync.Mutex

	submitTx    *Transaction
	submitErr   error
	states      map[string]TransactionState
	stateErr    error
	orphanState TransactionState
	orphanErr   error
	watchCh     chan WatchEvent
	watchErr    error
	version     string
	versionErr  error

	submitCalls []SubmitCall
	watchCalls  []WatchCall
}

// SubmitCall records the arguments of one Submit invocation.
type SubmitCall struct {
	ToAddress  string
	Amount     int64
	Confidence float64
}

// WatchCall records the arguments of one WatchIncoming invocation.
type WatchCall struct {
	SenderFilter string
	Confidence   float64
}

// NewMockAdapter creates a new MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		states:  make(map[string]TransactionState),
		watchCh: make(chan WatchEvent, 16),
		version: "/Satoshi:25.0.0/",
	}
}

var _ Adapter = (*MockAdapter)(nil)

func (m *MockAdapter) Submit(ctx context.Context, toAddress string, amount int64, requiredConfidence float64) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitCalls = append(m.submitCalls, SubmitCall{
		ToAddress:  toAddress,
		Amount:     amount,
		Confidence: requiredConfidence,
	})
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.submitTx, nil
}

func (m *MockAdapter) WatchIncoming(ctx context.Context, senderFilter string, requiredConfidence float64) (<-chan WatchEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watchCalls = append(m.watchCalls, WatchCall{
		SenderFilter: senderFilter,
		Confidence:   requiredConfidence,
	})
	if m.watchErr != nil {
		return nil, m.watchErr
	}

	out := make(chan WatchEvent)
	src := m.watchCh
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-src:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *MockAdapter) EnsureState(ctx context.Context, txID string, requiredConfidence float64) (TransactionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stateErr != nil {
		return "", m.stateErr
	}
	if state, ok := m.states[txID]; ok {
		return state, nil
	}
	return StateNotFound, nil
}

func (m *MockAdapter) DetectOrphaned(ctx context.Context, txID string) (TransactionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.orphanErr != nil {
		return "", m.orphanErr
	}
	if m.orphanState != "" {
		return m.orphanState, nil
	}
	return StatePending, nil
}

func (m *MockAdapter) InvokeContract(context.Context, string, string, []Parameter, float64) (*Transaction, error) {
	return nil, &NotSupportedError{Operation: "invoke contract"}
}

func (m *MockAdapter) SubscribeContractEvent(context.Context, string, string, string) (<-chan ContractEvent, error) {
	return nil, &NotSupportedError{Operation: "subscribe to contract events"}
}

func (m *MockAdapter) QueryContractEvents(context.Context, string, string, string) ([]ContractEvent, error) {
	return nil, &NotSupportedError{Operation: "query contract events"}
}

func (m *MockAdapter) TestConnection(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.versionErr != nil {
		return "", m.versionErr
	}
	return m.version, nil
}

// SetSubmitResult configures the transaction returned by Submit.
func (m *MockAdapter) SetSubmitResult(tx *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitTx = tx
}

// SetSubmitError makes Submit return an error.
func (m *MockAdapter) SetSubmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

// SetState configures the state reported by EnsureState for a txid.
func (m *MockAdapter) SetState(txID string, state TransactionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[txID] = state
}

// SetStateError makes EnsureState return an error.
func (m *MockAdapter) SetStateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateErr = err
}

// SetOrphanState configures the state reported by DetectOrphaned.
func (m *MockAdapter) SetOrphanState(state TransactionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphanState = state
}

// SetWatchError makes WatchIncoming return an error.
func (m *MockAdapter) SetWatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchErr = err
}

// SetConnectionError makes TestConnection return an error.
func (m *MockAdapter) SetConnectionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versionErr = err
}

// EmitWatchEvent delivers an event to an open watch stream.
func (m *MockAdapter) EmitWatchEvent(ev WatchEvent) {
	m.watchCh <- ev
}

// SubmitCalls returns the recorded Submit invocations.
func (m *MockAdapter) SubmitCalls() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]SubmitCall, len(m.submitCalls))
	copy(calls, m.submitCalls)
	return calls
}

// WatchCalls returns the recorded WatchIncoming invocations.
func (m *MockAdapter) WatchCalls() []WatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]WatchCall, len(m.watchCalls))
	copy(calls, m.watchCalls)
	return calls
}
