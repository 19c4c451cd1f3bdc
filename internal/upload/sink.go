// Package upload delivers assembled transaction batches to the statement
// service and records what was delivered in the ledgers.
package upload

import (
	"context"
	"time"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
)

// StatementRequest is the body of a create-statement call.
// Period bounds are RFC3339 in UTC.
type StatementRequest struct {
	BankingUserID int64  `json:"banking_user_id"`
	InstitutionID int64  `json:"institution_id"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
}

// NewStatementRequest builds a request for the given period.
func NewStatementRequest(userID, institutionID int64, period domain.StatementPeriod) StatementRequest {
	return StatementRequest{
		BankingUserID: userID,
		InstitutionID: institutionID,
		PeriodStart:   period.Start.UTC().Format(time.RFC3339),
		PeriodEnd:     period.End.UTC().Format(time.RFC3339),
	}
}

// Sink is a destination for statements and their transactions.
type Sink interface {
	// CreateStatement registers a statement and returns its id.
	CreateStatement(ctx context.Context, req StatementRequest) (int64, error)
	// CreateTransactions stores txns under statementID. Every transaction
	// already carries statementID.
	CreateTransactions(ctx context.Context, statementID int64, txns []domain.Transaction) error
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches the batch's idempotency key to ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey, or "".
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	return key
}
