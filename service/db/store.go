package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    txid                TEXT PRIMARY KEY,
    from_address        TEXT,
    to_address          TEXT,
    amount              BIGINT NOT NULL DEFAULT 0,
    state               TEXT NOT NULL,
    block_hash          TEXT,
    block_height        BIGINT,
    required_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS transactions_state_idx ON transactions (state);
CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at);

CREATE TABLE IF NOT EXISTS watches (
    id                  BIGSERIAL PRIMARY KEY,
    sender_filter       TEXT NOT NULL DEFAULT '',
    required_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    status              TEXT NOT NULL DEFAULT 'active',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Transaction represents a monitored transaction's final reported state.
type Transaction struct {
	TxID               string
	FromAddress        *string // nil when provenance resolution did not produce a sender
	ToAddress          *string
	Amount             int64
	State              string
	BlockHash          *string // nil for transactions reported without a containing block
	BlockHeight        *int64
	RequiredConfidence float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RecordTransactionParams contains the parameters for recording a
// transaction result. Recording the same txid again overwrites the state:
// a transaction can legitimately move between states across reorgs.
type RecordTransactionParams struct {
	TxID               string
	FromAddress        *string
	ToAddress          *string
	Amount             int64
	State              string
	BlockHash          *string
	BlockHeight        *int64
	RequiredConfidence float64
}

const transactionColumns = `txid, from_address, to_address, amount, state, block_hash, block_height, required_confidence, created_at, updated_at`

// RecordTransaction inserts or updates a transaction result.
func (s *Store) RecordTransaction(ctx context.Context, params RecordTransactionParams) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (txid, from_address, to_address, amount, state, block_hash, block_height, required_confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (txid) DO UPDATE SET
			from_address        = EXCLUDED.from_address,
			to_address          = EXCLUDED.to_address,
			amount              = EXCLUDED.amount,
			state               = EXCLUDED.state,
			block_hash          = EXCLUDED.block_hash,
			block_height        = EXCLUDED.block_height,
			required_confidence = EXCLUDED.required_confidence,
			updated_at          = now()
		RETURNING `+transactionColumns,
		params.TxID,
		pgtextFromStringPtr(params.FromAddress),
		pgtextFromStringPtr(params.ToAddress),
		params.Amount,
		params.State,
		pgtextFromStringPtr(params.BlockHash),
		pgint8FromInt64Ptr(params.BlockHeight),
		params.RequiredConfidence,
	)
	return scanTransaction(row)
}

// GetTransaction retrieves a recorded transaction by id.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE txid = $1`, txID)
	return scanTransaction(row)
}

// ListTransactionsParams contains filter and pagination parameters.
type ListTransactionsParams struct {
	State   string // empty matches all states
	Address string // empty matches all addresses; matches either side
	Limit   int32
	Offset  int32
}

// ListTransactions retrieves recorded transactions, newest first. Empty
// filters match everything; Address matches sender or recipient.
func (s *Store) ListTransactions(ctx context.Context, params ListTransactionsParams) ([]*Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR state = $1)
		  AND ($2 = '' OR from_address = $2 OR to_address = $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`,
		params.State, params.Address, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// CountTransactions counts recorded transactions.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	return count, err
}

// DeleteTransactionsOlderThan deletes transaction records last updated
// before the given time. Returns the number of deleted rows.
func (s *Store) DeleteTransactionsOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transactions WHERE updated_at < $1`,
		pgtype.Timestamptz{Time: before, Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Watch represents a registered incoming-transfer watch.
type Watch struct {
	ID                 int64
	SenderFilter       string // empty accepts every sender
	RequiredConfidence float64
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Watch statuses.
const (
	WatchStatusActive  = "active"
	WatchStatusStopped = "stopped"
)

// CreateWatchParams contains the parameters for registering a watch.
type CreateWatchParams struct {
	SenderFilter       string
	RequiredConfidence float64
}

const watchColumns = `id, sender_filter, required_confidence, status, created_at, updated_at`

// CreateWatch registers a new incoming-transfer watch.
func (s *Store) CreateWatch(ctx context.Context, params CreateWatchParams) (*Watch, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO watches (sender_filter, required_confidence, status)
		VALUES ($1, $2, $3)
		RETURNING `+watchColumns,
		params.SenderFilter, params.RequiredConfidence, WatchStatusActive)
	return scanWatch(row)
}

// GetWatch retrieves a watch by id.
func (s *Store) GetWatch(ctx context.Context, id int64) (*Watch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+watchColumns+` FROM watches WHERE id = $1`, id)
	return scanWatch(row)
}

// ListWatches retrieves all registered watches.
func (s *Store) ListWatches(ctx context.Context) ([]*Watch, error) {
	return s.listWatches(ctx, `SELECT `+watchColumns+` FROM watches ORDER BY id`)
}

// ListActiveWatches retrieves watches that should be running.
func (s *Store) ListActiveWatches(ctx context.Context) ([]*Watch, error) {
	return s.listWatches(ctx,
		`SELECT `+watchColumns+` FROM watches WHERE status = '`+WatchStatusActive+`' ORDER BY id`)
}

func (s *Store) listWatches(ctx context.Context, query string) ([]*Watch, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watches []*Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

// UpdateWatchStatus updates the status of a watch.
func (s *Store) UpdateWatchStatus(ctx context.Context, id int64, status string) (*Watch, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE watches SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+watchColumns,
		id, status)
	return scanWatch(row)
}

// DeleteWatch removes a watch.
func (s *Store) DeleteWatch(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM watches WHERE id = $1`, id)
	return err
}

// Helper functions to convert between pgx types and domain types

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		tx          Transaction
		from        pgtype.Text
		to          pgtype.Text
		blockHash   pgtype.Text
		blockHeight pgtype.Int8
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := row.Scan(&tx.TxID, &from, &to, &tx.Amount, &tx.State,
		&blockHash, &blockHeight, &tx.RequiredConfidence, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	tx.FromAddress = stringPtrFromPgtext(from)
	tx.ToAddress = stringPtrFromPgtext(to)
	tx.BlockHash = stringPtrFromPgtext(blockHash)
	tx.BlockHeight = int64PtrFromPgint8(blockHeight)
	tx.CreatedAt = createdAt.Time
	tx.UpdatedAt = updatedAt.Time
	return &tx, nil
}

func scanWatch(row pgx.Row) (*Watch, error) {
	var (
		w         Watch
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&w.ID, &w.SenderFilter, &w.RequiredConfidence, &w.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	w.CreatedAt = createdAt.Time
	w.UpdatedAt = updatedAt.Time
	return &w, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func pgint8FromInt64Ptr(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func int64PtrFromPgint8(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
