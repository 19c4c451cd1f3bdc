package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
)

func TestNewStatementRequest(t *testing.T) {
	period := domain.StatementPeriod{
		Start: time.Date(2025, 9, 16, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC),
	}
	req := NewStatementRequest(1, 4, period)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"banking_user_id": 1,
		"institution_id": 4,
		"period_start": "2025-09-16T00:00:00Z",
		"period_end": "2025-10-16T00:00:00Z"
	}`, string(data))
}

func TestAPIClient_CreateStatement(t *testing.T) {
	var gotHeaders http.Header
	var gotBody StatementRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/statements", r.URL.Path)
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"statement_id": 77, "banking_user_id": 1, "institution_id": 4,
			"period_start": "2025-09-16T00:00:00Z", "period_end": "2025-10-16T00:00:00Z",
			"date_added": "2025-10-17T08:00:00Z"}`)
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL+"/", "key-123", "token-456", srv.Client())
	ctx := WithIdempotencyKey(context.Background(), "batch-key")

	id, err := client.CreateStatement(ctx, StatementRequest{BankingUserID: 1, InstitutionID: 4, PeriodStart: "a", PeriodEnd: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)

	assert.Equal(t, "key-123", gotHeaders.Get("X-API-Key"))
	assert.Equal(t, "Bearer token-456", gotHeaders.Get("Authorization"))
	assert.Equal(t, "batch-key", gotHeaders.Get("Idempotency-Key"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, int64(4), gotBody.InstitutionID)
}

func TestAPIClient_OmitsEmptyCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-API-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Idempotency-Key"))
		io.WriteString(w, `{"statement_id": 1}`)
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, "", "", nil).CreateStatement(context.Background(), StatementRequest{})
	require.NoError(t, err)
}

func TestAPIClient_CreateTransactions(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions/batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `[{"transaction_id": 1, "statement_id": 9, "description": "Coffee", "amount": -450, "transaction_date": "2024-01-05T00:00:00Z"}]`)
	}))
	defer srv.Close()

	txn := domain.Transaction{
		Description:     "Coffee",
		Amount:          -450,
		TransactionDate: "2024-01-05T00:00:00Z",
		ReferenceNumber: "1",
		TypeCode:        domain.TypeDebit,
	}.WithStatement(9)

	err := NewAPIClient(srv.URL, "k", "t", srv.Client()).CreateTransactions(context.Background(), 9, []domain.Transaction{txn})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, float64(9), got[0]["statement_id"])
	assert.Equal(t, "Coffee", got[0]["description"])
	assert.Equal(t, float64(-450), got[0]["amount"])
	assert.Equal(t, "2024-01-05T00:00:00Z", got[0]["transaction_date"])
	assert.Equal(t, "1", got[0]["refnum"])
	assert.Equal(t, float64(10), got[0]["transaction_type_lookup_code"])
}

func TestAPIClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantAPI bool
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, "database down", true, "status 500: database down"},
		{"unauthorized", http.StatusUnauthorized, "", true, "status 401"},
		{"bad json", http.StatusOK, "{not json", false, "failed to parse response"},
		{"missing id", http.StatusOK, `{"banking_user_id": 1}`, false, "no statement_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewAPIClient(srv.URL, "", "", srv.Client()).CreateStatement(context.Background(), StatementRequest{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var apiErr *APIError
			assert.Equal(t, tt.wantAPI, errors.As(err, &apiErr))
			if tt.wantAPI {
				assert.Equal(t, tt.status, apiErr.StatusCode)
			}
		})
	}
}

func TestAPIClient_TruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, strings.Repeat("x", 2000))
	}))
	defer srv.Close()

	err := NewAPIClient(srv.URL, "", "", srv.Client()).CreateTransactions(context.Background(), 1, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestAPIClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"statement_id": 1}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAPIClient(srv.URL, "", "", srv.Client()).CreateStatement(ctx, StatementRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIdempotencyKey(t *testing.T) {
	assert.Empty(t, IdempotencyKey(context.Background()))
	assert.Equal(t, "abc", IdempotencyKey(WithIdempotencyKey(context.Background(), "abc")))
}
