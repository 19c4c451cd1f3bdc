package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
)

const (
	statementsPath   = "/api/statements"
	transactionsPath = "/api/transactions/batch"

	// RequestTimeout bounds a single API call.
	RequestTimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response ends up in the error.
	maxErrorBody = 512
)

// StatementResponse is the service's view of a created statement.
type StatementResponse struct {
	StatementID   int64  `json:"statement_id"`
	BankingUserID int64  `json:"banking_user_id"`
	InstitutionID int64  `json:"institution_id"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
	DateAdded     string `json:"date_added"`
}

// TransactionResponse is one stored transaction echoed back by the batch endpoint.
type TransactionResponse struct {
	TransactionID   int64  `json:"transaction_id"`
	StatementID     int64  `json:"statement_id"`
	Description     string `json:"description"`
	Amount          int64  `json:"amount"`
	TransactionDate string `json:"transaction_date"`
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// APIClient is the HTTP Sink for the statement service.
type APIClient struct {
	baseURL   string
	apiKey    string
	authToken string
	client    *http.Client
}

// NewAPIClient creates a client for baseURL. A nil httpClient gets a
// client with RequestTimeout.
func NewAPIClient(baseURL, apiKey, authToken string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: RequestTimeout}
	}
	return &APIClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		authToken: authToken,
		client:    httpClient,
	}
}

// CreateStatement posts req and returns the new statement id.
func (c *APIClient) CreateStatement(ctx context.Context, req StatementRequest) (int64, error) {
	var resp StatementResponse
	if err := c.post(ctx, statementsPath, req, &resp); err != nil {
		return 0, fmt.Errorf("failed to create statement: %w", err)
	}
	if resp.StatementID == 0 {
		return 0, fmt.Errorf("failed to create statement: response carried no statement_id")
	}
	return resp.StatementID, nil
}

// CreateTransactions posts txns as one batch.
func (c *APIClient) CreateTransactions(ctx context.Context, statementID int64, txns []domain.Transaction) error {
	var resp []TransactionResponse
	if err := c.post(ctx, transactionsPath, txns, &resp); err != nil {
		return fmt.Errorf("failed to create %d transactions for statement %d: %w", len(txns), statementID, err)
	}
	return nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if key := IdempotencyKey(ctx); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &APIError{Method: http.MethodPost, Path: path, StatusCode: resp.StatusCode, Body: snippet}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
