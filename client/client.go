package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Transaction is a transaction result as reported by the server.
type Transaction struct {
	TxID        string `json:"txid"`
	FromAddress string `json:"from_address,omitempty"`
	ToAddress   string `json:"to_address,omitempty"`
	Amount      int64  `json:"amount"`
	State       string `json:"state"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockHeight int64  `json:"block_height,omitempty"`
}

// TransactionRecord is a transaction result stored by the server.
type TransactionRecord struct {
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

// Watch is a registered incoming-transfer watch.
type Watch struct {
	ID                 int64     `json:"id"`
	SenderFilter       string    `json:"sender_filter,omitempty"`
	RequiredConfidence float64   `json:"required_confidence"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StateResult is the outcome of a blocking state check.
type StateResult struct {
	TxID       string  `json:"txid"`
	State      string  `json:"state"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Health is the server's health report.
type Health struct {
	Status      string `json:"status"`
	NodeVersion string `json:"node_version,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Client is the HTTP client for the transaction monitoring service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new service client. Submit, EnsureState and
// DetectOrphaned block server-side until the transaction resolves, so the
// default client carries no timeout; bound them with the context instead.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Submit sends funds to an address and blocks until the transaction
// reaches the requested confidence. A confidence of zero uses the server's
// default unless explicit is set.
func (c *Client) Submit(ctx context.Context, toAddress string, amount int64, confidence float64) (*Transaction, error) {
	reqBody := map[string]interface{}{
		"to_address": toAddress,
		"amount":     amount,
	}
	if confidence > 0 {
		reqBody["confidence"] = confidence
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("transaction submitted", "txid", tx.TxID, "state", tx.State)
	return &tx, nil
}

// EnsureState blocks until the transaction reaches the requested
// confidence or disappears, and returns the observed state.
func (c *Client) EnsureState(ctx context.Context, txID string, confidence float64) (*StateResult, error) {
	u := fmt.Sprintf("%s/api/v1/transactions/%s/state", c.baseURL, url.PathEscape(txID))
	if confidence > 0 {
		u += "?confidence=" + strconv.FormatFloat(confidence, 'f', -1, 64)
	}

	return c.getStateResult(ctx, u)
}

// DetectOrphaned blocks until the transaction is seen without a containing
// block or disappears.
func (c *Client) DetectOrphaned(ctx context.Context, txID string) (*StateResult, error) {
	u := fmt.Sprintf("%s/api/v1/transactions/%s/orphaned", c.baseURL, url.PathEscape(txID))
	return c.getStateResult(ctx, u)
}

func (c *Client) getStateResult(ctx context.Context, u string) (*StateResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result StateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetTransaction retrieves a stored transaction result.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*TransactionRecord, error) {
	u := fmt.Sprintf("%s/api/v1/transactions/%s", c.baseURL, url.PathEscape(txID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var record TransactionRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &record, nil
}

// ListTransactionsParams filters a transaction listing. A zero value lists
// the most recent transactions in every state. Address matches either the
// sender or the recipient.
type ListTransactionsParams struct {
	State   string
	Address string
	Limit   int
	Offset  int
}

// ListTransactions retrieves stored transaction results.
func (c *Client) ListTransactions(ctx context.Context, params ListTransactionsParams) ([]*TransactionRecord, error) {
	q := url.Values{}
	if params.State != "" {
		q.Set("state", params.State)
	}
	if params.Address != "" {
		q.Set("address", params.Address)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	u := c.baseURL + "/api/v1/transactions"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Transactions []*TransactionRecord `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Transactions, nil
}

// CreateWatch registers a watch for incoming transfers. The server starts
// streaming matching transactions immediately and keeps the watch across
// restarts until it is deleted.
func (c *Client) CreateWatch(ctx context.Context, senderFilter string, confidence float64) (*Watch, error) {
	reqBody := map[string]interface{}{}
	if senderFilter != "" {
		reqBody["sender_filter"] = senderFilter
	}
	if confidence > 0 {
		reqBody["confidence"] = confidence
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/watches", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var watch Watch
	if err := json.NewDecoder(resp.Body).Decode(&watch); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("watch created", "watch_id", watch.ID, "sender_filter", senderFilter)
	return &watch, nil
}

// GetWatch retrieves a registered watch.
func (c *Client) GetWatch(ctx context.Context, id int64) (*Watch, error) {
	u := fmt.Sprintf("%s/api/v1/watches/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var watch Watch
	if err := json.NewDecoder(resp.Body).Decode(&watch); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &watch, nil
}

// ListWatches retrieves all registered watches.
func (c *Client) ListWatches(ctx context.Context) ([]*Watch, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/watches", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Watches []*Watch `json:"watches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Watches, nil
}

// DeleteWatch stops and removes a watch.
func (c *Client) DeleteWatch(ctx context.Context, id int64) error {
	u := fmt.Sprintf("%s/api/v1/watches/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("watch deleted", "watch_id", id)
	return nil
}

// Health probes the server and its node connection.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// An unhealthy server still answers with a well-formed report.
	return &health, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
