package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
	"github.com/dabberpk/BlockchainAccessLayer/service/db"
	"github.com/dabberpk/BlockchainAccessLayer/service/nats"
)

// WatchManager runs the registered incoming-transfer watches. Each watch
// owns one WatchIncoming stream; every transaction it reports is recorded
// in the database and published to NATS.
type WatchManager struct {
	adapter   chain.Adapter
	store     *db.Store
	publisher nats.Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatchManager creates a watch manager. The publisher may be nil, in
// which case reported transactions are only recorded in the database.
func NewWatchManager(adapter chain.Adapter, store *db.Store, publisher nats.Publisher, logger *slog.Logger) *WatchManager {
	return &WatchManager{
		adapter:   adapter,
		store:     store,
		publisher: publisher,
		logger:    logger,
		cancels:   make(map[int64]context.CancelFunc),
	}
}

// ResumeActive starts every watch marked active in the database. Called at
// startup so watches survive restarts.
func (m *WatchManager) ResumeActive(ctx context.Context) error {
	watches, err := m.store.ListActiveWatches(ctx)
	if err != nil {
		return err
	}

	for _, watch := range watches {
		if err := m.Start(watch); err != nil {
			m.logger.Error("failed to resume watch", "watch_id", watch.ID, "error", err)
			continue
		}
	}

	m.logger.Info("resumed active watches", "count", len(watches))
	return nil
}

// Start opens the watch's incoming-transfer stream and consumes it until
// the watch is stopped. Starting an already-running watch is a no-op.
func (m *WatchManager) Start(watch *db.Watch) error {
	m.mu.Lock()
	if _, running := m.cancels[watch.ID]; running {
		m.mu.Unlock()
		return nil
	}

	// The watch lifetime is bound to its own context, not to the request
	// that registered it.
	ctx, cancel := context.WithCancel(context.Background())

	events, err := m.adapter.WatchIncoming(ctx, watch.SenderFilter, watch.RequiredConfidence)
	if err != nil {
		cancel()
		m.mu.Unlock()
		return err
	}

	m.cancels[watch.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("watch started",
		"watch_id", watch.ID,
		"sender_filter", watch.SenderFilter,
		"confidence", watch.RequiredConfidence,
	)

	go m.consume(ctx, watch, events)
	return nil
}

// Stop cancels a running watch. Unknown ids are a no-op.
func (m *WatchManager) Stop(id int64) {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	if ok {
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	if ok {
		cancel()
		m.logger.Info("watch stopped", "watch_id", id)
	}
}

// StopAll cancels every running watch and waits for their consumers to
// drain.
func (m *WatchManager) StopAll() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("all watches stopped")
}

// Running reports whether the watch is currently running.
func (m *WatchManager) Running(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancels[id]
	return ok
}

// consume drains a watch's event stream until it closes.
func (m *WatchManager) consume(ctx context.Context, watch *db.Watch, events <-chan chain.WatchEvent) {
	defer m.wg.Done()

	for ev := range events {
		if ev.Err != nil {
			m.logger.Error("watch reported an error",
				"watch_id", watch.ID,
				"error", ev.Err,
			)
			continue
		}
		m.handleTransaction(ctx, watch, ev.Transaction)
	}

	m.logger.Debug("watch stream closed", "watch_id", watch.ID)
}

// handleTransaction records and publishes one reported transaction.
func (m *WatchManager) handleTransaction(ctx context.Context, watch *db.Watch, tx *chain.Transaction) {
	m.logger.Info("watch reported incoming transaction",
		"watch_id", watch.ID,
		"txid", tx.Hash,
		"amount", tx.Value,
		"state", tx.State,
	)

	params := db.RecordTransactionParams{
		TxID:               tx.Hash,
		Amount:             tx.Value,
		State:              string(tx.State),
		RequiredConfidence: watch.RequiredConfidence,
	}
	if tx.From != "" {
		params.FromAddress = &tx.From
	}
	if tx.To != "" {
		params.ToAddress = &tx.To
	}
	if tx.Block != nil {
		params.BlockHash = &tx.Block.Hash
		params.BlockHeight = &tx.Block.Height
	}

	if _, err := m.store.RecordTransaction(ctx, params); err != nil {
		m.logger.Error("failed to record watched transaction",
			"watch_id", watch.ID,
			"txid", tx.Hash,
			"error", err,
		)
	}

	if m.publisher != nil {
		event := nats.FromChainTransaction(tx)
		event.WatchID = watch.ID
		if err := m.publisher.PublishTransaction(ctx, event); err != nil {
			m.logger.Error("failed to publish watched transaction",
				"watch_id", watch.ID,
				"txid", tx.Hash,
				"error", err,
			)
		}
	}
}
