package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestSubmit_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		err := json.NewDecoder(r.Body).Decode(&body)
		require.NoError(t, err)

		assert.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", body["to_address"])
		assert.Equal(t, float64(1000), body["amount"])
		assert.Equal(t, 0.95, body["confidence"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"txid":         testTxID,
			"to_address":   "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
			"amount":       1000,
			"state":        "CONFIRMED",
			"block_height": 800000,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	tx, err := client.Submit(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", 1000, 0.95)
	require.NoError(t, err)
	assert.Equal(t, testTxID, tx.TxID)
	assert.Equal(t, "CONFIRMED", tx.State)
	assert.Equal(t, int64(800000), tx.BlockHeight)
}

func TestSubmit_OmitsDefaultConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		// The server applies its own default when no confidence is sent.
		_, present := body["confidence"]
		assert.False(t, present)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"txid": testTxID, "state": "CONFIRMED"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Submit(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", 1000, 0)
	assert.NoError(t, err)
}

func TestSubmit_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid transaction: malformed address",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Submit(context.Background(), "not-an-address", 1000, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed address")
}

func TestEnsureState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/transactions/"+testTxID+"/state", r.URL.Path)
		assert.Equal(t, "0.9", r.URL.Query().Get("confidence"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"txid":       testTxID,
			"state":      "PENDING",
			"confidence": 0.9,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.EnsureState(context.Background(), testTxID, 0.9)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.State)
	assert.Equal(t, 0.9, result.Confidence)
}

func TestDetectOrphaned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions/"+testTxID+"/orphaned", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"txid":  testTxID,
			"state": "NOT_FOUND",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.DetectOrphaned(context.Background(), testTxID)
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", result.State)
}

func TestGetTransaction_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "transaction not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetTransaction(context.Background(), testTxID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction not found")
}

func TestListTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CONFIRMED", r.URL.Query().Get("state"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"txid": testTxID, "state": "CONFIRMED", "amount": 1000},
			},
			"count": 1,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	records, err := client.ListTransactions(context.Background(), ListTransactionsParams{
		State: "CONFIRMED",
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testTxID, records[0].TxID)
}

func TestWatchLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/api/v1/watches":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1Sender", body["sender_filter"])

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":                  42,
				"sender_filter":       "1Sender",
				"required_confidence": 0.9,
				"status":              "active",
			})
		case r.Method == "GET" && r.URL.Path == "/api/v1/watches/42":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     42,
				"status": "active",
			})
		case r.Method == "DELETE" && r.URL.Path == "/api/v1/watches/42":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)

	watch, err := client.CreateWatch(context.Background(), "1Sender", 0.9)
	require.NoError(t, err)
	assert.Equal(t, int64(42), watch.ID)
	assert.Equal(t, "active", watch.Status)

	got, err := client.GetWatch(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)

	require.NoError(t, client.DeleteWatch(context.Background(), 42))
}

func TestHealth_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"error":  "connection refused",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "connection refused", health.Error)
}
