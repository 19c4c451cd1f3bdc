// Package firestore is the Firestore statement sink.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/dedup"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/upload"
)

const (
	statementsCollection   = "ingest-statements"
	transactionsCollection = "ingest-transactions"
	countersCollection     = "ingest-counters"
	statementCounterDoc    = "statements"

	// maxWritesPerTransaction is Firestore's per-commit write limit.
	maxWritesPerTransaction = 500
)

// Client wraps the Firestore client with statement sink operations
type Client struct {
	Firestore *firestore.Client
	projectID string
	now       func() time.Time
}

// NewClient creates a new Firestore client. Application Default Credentials
// are used unless credentialsFile is set.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		projectID: projectID,
		now:       time.Now,
	}, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// Statement is a statement document
type Statement struct {
	ID             int64     `firestore:"id"`
	BankingUserID  int64     `firestore:"bankingUserId"`
	InstitutionID  int64     `firestore:"institutionId"`
	PeriodStart    string    `firestore:"periodStart"`
	PeriodEnd      string    `firestore:"periodEnd"`
	IdempotencyKey string    `firestore:"idempotencyKey,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// Transaction is a transaction document
type Transaction struct {
	StatementID     int64     `firestore:"statementId"`
	Description     string    `firestore:"description"`
	Amount          int64     `firestore:"amount"`
	TransactionDate string    `firestore:"transactionDate"`
	ReferenceNumber string    `firestore:"refnum"`
	TypeCode        int       `firestore:"transactionTypeLookupCode"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

type counter struct {
	Next int64 `firestore:"next"`
}

var _ upload.Sink = (*Client)(nil)

// CreateStatement allocates the next statement id from the counter document
// and writes the statement in the same Firestore transaction.
func (c *Client) CreateStatement(ctx context.Context, req upload.StatementRequest) (int64, error) {
	counterRef := c.Firestore.Collection(countersCollection).Doc(statementCounterDoc)
	createdAt := c.now().UTC()
	key := upload.IdempotencyKey(ctx)

	var id int64
	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll([]*firestore.DocumentRef{counterRef})
		if err != nil {
			return fmt.Errorf("failed to read statement counter: %w", err)
		}

		var ctr counter
		if snaps[0].Exists() {
			if err := snaps[0].DataTo(&ctr); err != nil {
				return fmt.Errorf("failed to parse statement counter: %w", err)
			}
		}
		id = ctr.Next + 1

		if err := tx.Set(counterRef, counter{Next: id}); err != nil {
			return err
		}
		stmt := Statement{
			ID:             id,
			BankingUserID:  req.BankingUserID,
			InstitutionID:  req.InstitutionID,
			PeriodStart:    req.PeriodStart,
			PeriodEnd:      req.PeriodEnd,
			IdempotencyKey: key,
			CreatedAt:      createdAt,
		}
		return tx.Create(c.statementRef(id), stmt)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create statement: %w", err)
	}
	return id, nil
}

// CreateTransactions writes txns under statementID, at most
// maxWritesPerTransaction per commit. Document ids are transaction
// fingerprints: redelivering a batch whose earlier attempt failed part way
// rewrites the same documents against the new statement id.
func (c *Client) CreateTransactions(ctx context.Context, statementID int64, txns []domain.Transaction) error {
	createdAt := c.now().UTC()
	col := c.Firestore.Collection(transactionsCollection)

	for start := 0; start < len(txns); start += maxWritesPerTransaction {
		end := min(start+maxWritesPerTransaction, len(txns))

		err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for i := start; i < end; i++ {
				doc := toDocument(statementID, txns[i], createdAt)
				if err := tx.Set(col.Doc(transactionDocID(txns[i])), doc); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write transactions %d-%d of statement %d: %w", start, end-1, statementID, err)
		}
	}
	return nil
}

func (c *Client) statementRef(id int64) *firestore.DocumentRef {
	return c.Firestore.Collection(statementsCollection).Doc(fmt.Sprintf("%d", id))
}

func transactionDocID(txn domain.Transaction) string {
	return dedup.Fingerprint(txn)
}

func toDocument(statementID int64, txn domain.Transaction, createdAt time.Time) Transaction {
	return Transaction{
		StatementID:     statementID,
		Description:     txn.Description,
		Amount:          txn.Amount,
		TransactionDate: txn.TransactionDate,
		ReferenceNumber: txn.ReferenceNumber,
		TypeCode:        int(txn.TypeCode),
		CreatedAt:       createdAt,
	}
}
