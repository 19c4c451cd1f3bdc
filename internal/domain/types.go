package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TypeCode is the remote lookup code for a transaction's direction.
type TypeCode int

const (
	TypeDebit  TypeCode = 10
	TypeCredit TypeCode = 20
)

// String returns "DEBIT" or "CREDIT"
func (c TypeCode) String() string {
	switch c {
	case TypeDebit:
		return "DEBIT"
	case TypeCredit:
		return "CREDIT"
	default:
		return fmt.Sprintf("TypeCode(%d)", int(c))
	}
}

// ValidateTypeCode reports whether c is one of the known codes
func ValidateTypeCode(c TypeCode) bool {
	return c == TypeDebit || c == TypeCredit
}

// Transaction is the canonical, source-independent transaction.
// Field names on the wire match the statement service's transaction endpoint.
type Transaction struct {
	StatementID *int64 `json:"statement_id"`
	Description string `json:"description"`
	// Amount is in signed minor units (cents). Sign follows the source file:
	// negative = money out. The sign is not cross-checked against TypeCode.
	Amount int64 `json:"amount"`
	// TransactionDate is RFC3339 in UTC, or the source string unchanged when
	// no known date format matched.
	TransactionDate string   `json:"transaction_date"`
	ReferenceNumber string   `json:"refnum"`
	TypeCode        TypeCode `json:"transaction_type_lookup_code"`
}

// NewTransaction creates a transaction with a validated type code
func NewTransaction(description string, amount int64, date, reference string, code TypeCode) (*Transaction, error) {
	if !ValidateTypeCode(code) {
		return nil, fmt.Errorf("invalid type code %d", int(code))
	}
	return &Transaction{
		Description:     description,
		Amount:          amount,
		TransactionDate: date,
		ReferenceNumber: reference,
		TypeCode:        code,
	}, nil
}

// WithStatement returns a copy of t attached to the given statement
func (t Transaction) WithStatement(statementID int64) Transaction {
	id := statementID
	t.StatementID = &id
	return t
}

// Date parses TransactionDate. ok is false for passthrough (unrecognized) dates.
func (t *Transaction) Date() (time.Time, bool) {
	d, err := time.Parse(time.RFC3339, t.TransactionDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// StatementPeriod is the date range a batch covers
type StatementPeriod struct {
	Start time.Time
	End   time.Time
}

// MarshalJSON renders the period as YYYY-MM-DD dates
func (p StatementPeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{
		Start: p.Start.Format("2006-01-02"),
		End:   p.End.Format("2006-01-02"),
	})
}

// DerivePeriod returns the earliest and latest parseable transaction dates.
// ok is false when no transaction carries a recognized date.
func DerivePeriod(txns []Transaction) (StatementPeriod, bool) {
	var period StatementPeriod
	found := false
	for i := range txns {
		d, ok := txns[i].Date()
		if !ok {
			continue
		}
		if !found || d.Before(period.Start) {
			period.Start = d
		}
		if !found || d.After(period.End) {
			period.End = d
		}
		found = true
	}
	return period, found
}

// TransactionBatch holds the new transactions of one source file.
//
// Transactions and Fingerprints are parallel slices: Fingerprints[i] is the
// fingerprint of Transactions[i]. AllRedundant is true when the file had
// transactions and every one was already known, or when the file itself was
// already consumed.
type TransactionBatch struct {
	Source            string           `json:"source"`
	SourceFingerprint string           `json:"sourceFingerprint"`
	Parser            string           `json:"parser,omitempty"`
	AccountID         string           `json:"accountId,omitempty"`
	Period            *StatementPeriod `json:"period,omitempty"`
	Transactions      []Transaction    `json:"transactions"`
	Fingerprints      []string         `json:"fingerprints"`
	Parsed            int              `json:"parsed"`
	Duplicates        int              `json:"duplicates"`
	AllRedundant      bool             `json:"allRedundant"`
	FileKnown         bool             `json:"fileKnown,omitempty"`
}

// Deliverable reports whether the batch has anything to upload
func (b *TransactionBatch) Deliverable() bool {
	return !b.AllRedundant && len(b.Transactions) > 0
}

// Add appends a new transaction and its fingerprint
func (b *TransactionBatch) Add(txn Transaction, fingerprint string) {
	b.Transactions = append(b.Transactions, txn)
	b.Fingerprints = append(b.Fingerprints, fingerprint)
}

// StatementPeriodOrDerived returns the file's own period, falling back to the
// range of the batch's transaction dates.
func (b *TransactionBatch) StatementPeriodOrDerived() (StatementPeriod, bool) {
	if b.Period != nil {
		return *b.Period, true
	}
	return DerivePeriod(b.Transactions)
}

// InstitutionBatch groups the batches of one institution directory
type InstitutionBatch struct {
	InstitutionID int64              `json:"institutionId"`
	Institution   string             `json:"institution"`
	Dir           string             `json:"dir"`
	Batches       []TransactionBatch `json:"batches"`
}

// NewTransactions counts transactions across all batches
func (ib *InstitutionBatch) NewTransactions() int {
	n := 0
	for i := range ib.Batches {
		n += len(ib.Batches[i].Transactions)
	}
	return n
}
