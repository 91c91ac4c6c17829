package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
	"github.com/dabberpk/BlockchainAccessLayer/service/config"
	"github.com/dabberpk/BlockchainAccessLayer/service/db"
	"github.com/dabberpk/BlockchainAccessLayer/service/nats"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for transaction submission
	maxAddressLength   = 100     // bech32 addresses are up to 90 chars, give buffer
)

var (
	// Transaction ids are 32-byte hashes in hex.
	validTxIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// handleSubmitTransaction returns a handler that submits a transaction and
// blocks until it reaches the requested confidence. The publisher may be
// nil, in which case completed results are only recorded in the database.
// POST /api/v1/transactions
func handleSubmitTransaction(adapter chain.Adapter, store *db.Store, publisher nats.Publisher, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			ToAddress  string   `json:"to_address"`
			Amount     int64    `json:"amount"`
			Confidence *float64 `json:"confidence"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode submit request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.ToAddress); err != nil {
			logger.Debug("invalid address", "address", req.ToAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		confidence := cfg.DefaultConfidence
		if req.Confidence != nil {
			confidence = *req.Confidence
		}
		if err := validateConfidence(confidence); err != nil {
			logger.Debug("invalid confidence", "confidence", confidence, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		tx, err := adapter.Submit(r.Context(), req.ToAddress, req.Amount, confidence)
		if err != nil {
			writeChainError(w, logger, "submit failed", err)
			return
		}

		recordResult(r, store, logger, tx, confidence)

		if publisher != nil {
			if err := publisher.PublishTransaction(r.Context(), nats.FromChainTransaction(tx)); err != nil {
				logger.Error("failed to publish transaction result", "txid", tx.Hash, "error", err)
			}
		}

		logger.Info("transaction submitted and reported",
			"txid", tx.Hash,
			"state", tx.State,
		)
		writeJSON(w, chainTransactionToResponse(tx), http.StatusCreated)
	})
}

// handleEnsureTransactionState returns a handler that blocks until the
// transaction reaches the requested confidence or disappears.
// GET /api/v1/transactions/{txid}/state?confidence=0.99
func handleEnsureTransactionState(adapter chain.Adapter, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txID := r.PathValue("txid")
		if err := validateTxID(txID); err != nil {
			logger.Debug("invalid txid", "txid", txID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		confidence := cfg.DefaultConfidence
		if v := r.URL.Query().Get("confidence"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, "invalid confidence parameter: must be a number", http.StatusBadRequest)
				return
			}
			confidence = parsed
		}
		if err := validateConfidence(confidence); err != nil {
			logger.Debug("invalid confidence", "confidence", confidence, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		state, err := adapter.EnsureState(r.Context(), txID, confidence)
		if err != nil {
			writeChainError(w, logger, "state check failed", err)
			return
		}

		logger.Info("transaction state reported", "txid", txID, "state", state)
		writeJSON(w, map[string]interface{}{
			"txid":       txID,
			"state":      state,
			"confidence": confidence,
		}, http.StatusOK)
	})
}

// handleDetectOrphaned returns a handler that blocks until the transaction
// is seen without a containing block or vanishes.
// GET /api/v1/transactions/{txid}/orphaned
func handleDetectOrphaned(adapter chain.Adapter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txID := r.PathValue("txid")
		if err := validateTxID(txID); err != nil {
			logger.Debug("invalid txid", "txid", txID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		state, err := adapter.DetectOrphaned(r.Context(), txID)
		if err != nil {
			writeChainError(w, logger, "orphan detection failed", err)
			return
		}

		logger.Info("orphan detection reported", "txid", txID, "state", state)
		writeJSON(w, map[string]interface{}{
			"txid":  txID,
			"state": state,
		}, http.StatusOK)
	})
}

// handleGetTransaction returns a handler that retrieves a recorded
// transaction result.
// GET /api/v1/transactions/{txid}
func handleGetTransaction(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txID := r.PathValue("txid")
		if err := validateTxID(txID); err != nil {
			logger.Debug("invalid txid", "txid", txID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		tx, err := store.GetTransaction(r.Context(), txID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, "transaction not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get transaction", "txid", txID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, storedTransactionToResponse(tx), http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists recorded transaction
// results.
// GET /api/v1/transactions?state=CONFIRMED&address=X&limit=N&offset=N
func handleListTransactions(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		state := query.Get("state")
		if state != "" && !chain.TransactionState(state).Valid() {
			writeError(w, "invalid state parameter: must be NOT_FOUND, PENDING or CONFIRMED", http.StatusBadRequest)
			return
		}

		address := query.Get("address")
		if address != "" {
			if err := validateAddress(address); err != nil {
				writeError(w, "invalid address parameter: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, err := parseInt32Param(query.Get("limit"), 100, 1, 1000)
		if err != nil {
			writeError(w, "invalid limit parameter: "+err.Error(), http.StatusBadRequest)
			return
		}

		offset, err := parseInt32Param(query.Get("offset"), 0, 0, 1<<30)
		if err != nil {
			writeError(w, "invalid offset parameter: "+err.Error(), http.StatusBadRequest)
			return
		}

		transactions, err := store.ListTransactions(r.Context(), db.ListTransactionsParams{
			State:   state,
			Address: address,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			logger.Error("failed to list transactions", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("transactions listed", "count", len(transactions))

		resp := make([]transactionRecordResponse, len(transactions))
		for i := range transactions {
			resp[i] = storedTransactionToResponse(transactions[i])
		}

		writeJSON(w, map[string]interface{}{
			"transactions": resp,
			"count":        len(resp),
			"limit":        limit,
			"offset":       offset,
		}, http.StatusOK)
	})
}

// handleCreateWatch returns a handler that registers an incoming-transfer
// watch and starts it.
// POST /api/v1/watches
func handleCreateWatch(store *db.Store, watches *WatchManager, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			SenderFilter string   `json:"sender_filter"`
			Confidence   *float64 `json:"confidence"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode watch request", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if req.SenderFilter != "" {
			if err := validateAddress(req.SenderFilter); err != nil {
				logger.Debug("invalid sender filter", "sender", req.SenderFilter, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		confidence := cfg.DefaultConfidence
		if req.Confidence != nil {
			confidence = *req.Confidence
		}
		if err := validateConfidence(confidence); err != nil {
			logger.Debug("invalid confidence", "confidence", confidence, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		watch, err := store.CreateWatch(r.Context(), db.CreateWatchParams{
			SenderFilter:       req.SenderFilter,
			RequiredConfidence: confidence,
		})
		if err != nil {
			logger.Error("failed to create watch", "error", err)
			writeError(w, "failed to register watch", http.StatusInternalServerError)
			return
		}

		if err := watches.Start(watch); err != nil {
			logger.Error("failed to start watch", "watch_id", watch.ID, "error", err)

			// Rollback: delete the watch we just created
			if delErr := store.DeleteWatch(r.Context(), watch.ID); delErr != nil {
				logger.Error("failed to rollback watch creation", "watch_id", watch.ID, "error", delErr)
			}

			writeChainError(w, logger, "failed to start watch", err)
			return
		}

		logger.Info("watch registered",
			"watch_id", watch.ID,
			"sender_filter", watch.SenderFilter,
			"confidence", watch.RequiredConfidence,
		)
		writeJSON(w, watchToResponse(watch), http.StatusCreated)
	})
}

// handleListWatches returns a handler that lists registered watches.
// GET /api/v1/watches
func handleListWatches(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		watches, err := store.ListWatches(r.Context())
		if err != nil {
			logger.Error("failed to list watches", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]watchResponse, len(watches))
		for i := range watches {
			resp[i] = watchToResponse(watches[i])
		}

		writeJSON(w, map[string]interface{}{
			"watches": resp,
		}, http.StatusOK)
	})
}

// handleGetWatch returns a handler that retrieves a watch.
// GET /api/v1/watches/{id}
func handleGetWatch(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, "invalid watch id: must be an integer", http.StatusBadRequest)
			return
		}

		watch, err := store.GetWatch(r.Context(), id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get watch", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, watchToResponse(watch), http.StatusOK)
	})
}

// handleDeleteWatch returns a handler that stops and removes a watch.
// DELETE /api/v1/watches/{id}
func handleDeleteWatch(store *db.Store, watches *WatchManager, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, "invalid watch id: must be an integer", http.StatusBadRequest)
			return
		}

		if _, err := store.GetWatch(r.Context(), id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to check watch existence", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// Stop the running watch first, then remove it from the database.
		watches.Stop(id)

		if err := store.DeleteWatch(r.Context(), id); err != nil {
			logger.Error("failed to delete watch", "watch_id", id, "error", err)
			writeError(w, "failed to unregister watch", http.StatusInternalServerError)
			return
		}

		logger.Info("watch unregistered", "watch_id", id)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleHealth returns a handler that probes the node connection and
// reports its version.
// GET /health
func handleHealth(adapter chain.Adapter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version, err := adapter.TestConnection(r.Context())
		if err != nil {
			logger.Error("node health check failed", "error", err)
			writeJSON(w, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			}, http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, map[string]string{
			"status":       "ok",
			"node_version": version,
		}, http.StatusOK)
	})
}

// recordResult persists a reported transaction, best-effort. The caller
// already has the result; a storage failure must not fail the request.
func recordResult(r *http.Request, store *db.Store, logger *slog.Logger, tx *chain.Transaction, confidence float64) {
	if tx.Hash == "" {
		return
	}

	params := db.RecordTransactionParams{
		TxID:               tx.Hash,
		Amount:             tx.Value,
		State:              string(tx.State),
		RequiredConfidence: confidence,
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

	if _, err := store.RecordTransaction(r.Context(), params); err != nil {
		logger.Error("failed to record transaction result", "txid", tx.Hash, "error", err)
	}
}

// transactionResponse is the JSON response format for a reported transaction.
type transactionResponse struct {
	TxID        string `json:"txid"`
	FromAddress string `json:"from_address,omitempty"`
	ToAddress   string `json:"to_address,omitempty"`
	Amount      int64  `json:"amount"`
	State       string `json:"state"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockHeight int64  `json:"block_height,omitempty"`
}

func chainTransactionToResponse(tx *chain.Transaction) transactionResponse {
	resp := transactionResponse{
		TxID:        tx.Hash,
		FromAddress: tx.From,
		ToAddress:   tx.To,
		Amount:      tx.Value,
		State:       string(tx.State),
	}
	if tx.Block != nil {
		resp.BlockHash = tx.Block.Hash
		resp.BlockHeight = tx.Block.Height
	}
	return resp
}

// transactionRecordResponse is the JSON response format for a stored
// transaction result.
type transactionRecordResponse struct {
	TxID               string    `json:"txid"`
	FromAddress        *string   `json:"from_address,omitempty"`
	ToAddress          *string   `json:"to_address,omitempty"`
	Amount             int64     `json:"amount"`
	State              string    `json:"state"`
	BlockHash          *string   `json:"block_hash,omitempty"`
	BlockHeight        *int64    `json:"block_height,omitempty"`
	RequiredConfidence float64   `json:"required_confidence"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func storedTransactionToResponse(t *db.Transaction) transactionRecordResponse {
	return transactionRecordResponse{
		TxID:               t.TxID,
		FromAddress:        t.FromAddress,
		ToAddress:          t.ToAddress,
		Amount:             t.Amount,
		State:              t.State,
		BlockHash:          t.BlockHash,
		BlockHeight:        t.BlockHeight,
		RequiredConfidence: t.RequiredConfidence,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// watchResponse is the JSON response format for a watch.
type watchResponse struct {
	ID                 int64     `json:"id"`
	SenderFilter       string    `json:"sender_filter,omitempty"`
	RequiredConfidence float64   `json:"required_confidence"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func watchToResponse(w *db.Watch) watchResponse {
	return watchResponse{
		ID:                 w.ID,
		SenderFilter:       w.SenderFilter,
		RequiredConfidence: w.RequiredConfidence,
		Status:             w.Status,
		CreatedAt:          w.CreatedAt,
		UpdatedAt:          w.UpdatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeChainError maps adapter errors onto HTTP status codes.
func writeChainError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	switch {
	case chain.IsParameter(err), chain.IsInvalidTransaction(err):
		logger.Debug(msg, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
	case chain.IsNotSupported(err):
		logger.Debug(msg, "error", err)
		writeError(w, err.Error(), http.StatusNotImplemented)
	case chain.IsNodeUnreachable(err):
		logger.Error(msg, "error", err)
		writeError(w, "blockchain node unreachable", http.StatusBadGateway)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away; nothing useful to write.
		logger.Debug(msg, "error", err)
	default:
		logger.Error(msg, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// validateAddress validates a Bitcoin address for basic shape. Full
// network-aware decoding happens in the adapter.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) || unicode.IsSpace(r) {
			return errorf("invalid characters in address")
		}
		if r > unicode.MaxASCII {
			return errorf("invalid characters in address")
		}
	}

	return nil
}

// validateTxID validates a transaction id.
func validateTxID(txID string) error {
	if txID == "" {
		return errorf("txid is required")
	}

	if !validTxIDRegex.MatchString(txID) {
		return errorf("invalid txid: must be a 64-character hex string")
	}

	return nil
}

// validateConfidence validates a confidence value.
func validateConfidence(confidence float64) error {
	if confidence < 0 || confidence >= 1 {
		return errorf("confidence must be in [0, 1)")
	}
	return nil
}

// parseInt32Param parses an optional integer query parameter with bounds.
func parseInt32Param(value string, def, min, max int32) (int32, error) {
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, errorf("must be an integer")
	}
	if int32(parsed) < min {
		return 0, errorf("must be at least %d", min)
	}
	if int32(parsed) > max {
		return 0, errorf("cannot exceed %d", max)
	}
	return int32(parsed), nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
