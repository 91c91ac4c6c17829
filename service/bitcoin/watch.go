package bitcoin

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
)

// WatchIncoming streams incoming value transfers to the wallet. On every
// wallet sighting it keeps only receive-transactions at their first
// zero-confirmation appearance (wallet backends re-notify on each
// subsequent confirmation), applies the optional sender filter via
// provenance resolution, and then either emits the transaction immediately
// (depth zero) or spawns an independent confirmation subscription whose
// eventual result is forwarded onto the stream. Confirmation subscriptions
// never block further wallet notifications.
//
// Cancelling ctx deregisters the wallet listener and closes the stream.
func (a *Adapter) WatchIncoming(ctx context.Context, senderFilter string, requiredConfidence float64) (<-chan chain.WatchEvent, error) {
	waitFor, err := a.calc.Depth(requiredConfidence)
	if err != nil {
		return nil, err
	}

	out := make(chan chain.WatchEvent, watchBuffer)
	results := make(chan chain.WatchEvent, watchBuffer)

	// seen deduplicates wallet deliveries by txid: only the first
	// zero-confirmation sighting counts as new.
	var seenMu sync.Mutex
	seen := make(map[string]struct{})

	emit := func(ev chain.WatchEvent) {
		select {
		case results <- ev:
		case <-ctx.Done():
		}
	}

	token := a.hub.SubscribeWalletTxs(func(details *btcjson.GetTransactionResult) {
		// Wallet events are always relevant to us, but only transactions
		// increasing the balance, at their first sighting, are new.
		if details.Amount < 0 || details.Confirmations != 0 {
			return
		}

		seenMu.Lock()
		_, dup := seen[details.TxID]
		if !dup {
			seen[details.TxID] = struct{}{}
		}
		seenMu.Unlock()
		if dup {
			a.recordWatchEvent("duplicate")
			return
		}

		if senderFilter != "" {
			sender, err := a.firstSender(ctx, details.TxID)
			if err != nil {
				a.logger.Error("failed to screen incoming transaction", "txid", details.TxID, "error", err)
				a.recordWatchEvent("error")
				return
			}
			if sender != senderFilter {
				a.recordWatchEvent("filtered")
				return
			}
		}

		a.logger.Info("new incoming transaction", "txid", details.TxID)

		if waitFor > 0 {
			txID := details.TxID
			go func() {
				slot := a.subscribeTx(ctx, "watch_confirm", txID, waitFor, chain.StateConfirmed)
				tx, err := slot.await(ctx)
				if ctx.Err() != nil {
					return
				}
				a.recordWatchEvent("emitted")
				emit(chain.WatchEvent{Transaction: tx, Err: err})
			}()
			return
		}

		tx := a.buildTransaction(ctx, details.TxID, details, nil)
		tx.State = chain.StateConfirmed
		a.recordWatchEvent("emitted")
		emit(chain.WatchEvent{Transaction: tx})
	})

	// The forwarder owns the caller-facing channel: no other goroutine
	// sends on out, so closing it on cancellation is safe even while late
	// confirmation results are still arriving on results.
	go func() {
		defer close(out)
		defer a.hub.UnsubscribeWalletTxs(token)
		for {
			select {
			case ev := <-results:
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

func (a *Adapter) recordWatchEvent(result string) {
	if a.metrics != nil {
		a.metrics.RecordWatchEvent(result)
	}
}
