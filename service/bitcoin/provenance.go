package bitcoin

import (
	"context"
	"fmt"
)

// firstSender finds the address that owned the output funding the first
// input of the given transaction, by walking back to the referenced prior
// transaction. Coinbase transactions (no real inputs) yield an empty
// address. Requires a tx-indexed node.
//
// Callers treat failures here as a degradation, not an error: the sender
// stays unset and the subscription still resolves.
func (a *Adapter) firstSender(ctx context.Context, txID string) (string, error) {
	raw, err := a.node.GetRawTransactionVerbose(ctx, txID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch transaction %s: %w", txID, err)
	}

	if len(raw.Vin) == 0 || raw.Vin[0].IsCoinBase() {
		return "", nil
	}

	input := raw.Vin[0]
	prev, err := a.node.GetRawTransactionVerbose(ctx, input.Txid)
	if err != nil {
		return "", fmt.Errorf("failed to fetch referenced transaction %s: %w", input.Txid, err)
	}

	if int(input.Vout) >= len(prev.Vout) {
		return "", fmt.Errorf("referenced output %d out of range for transaction %s", input.Vout, input.Txid)
	}

	addresses := prev.Vout[input.Vout].ScriptPubKey.Addresses
	if len(addresses) == 0 {
		return "", fmt.Errorf("referenced output %d of %s carries no address", input.Vout, input.Txid)
	}
	return addresses[0], nil
}

// resolveSender runs firstSender and applies the swallow policy: on failure
// it logs, counts the degradation, and returns an empty address.
func (a *Adapter) resolveSender(ctx context.Context, txID string) string {
	sender, err := a.firstSender(ctx, txID)
	if err != nil {
		a.logger.Error("could not detect the sender of the transaction", "txid", txID, "error", err)
		if a.metrics != nil {
			a.metrics.RecordProvenanceFailure()
		}
		return ""
	}
	return sender
}
