package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Parser is the strategy interface for all file format parsers
type Parser interface {
	// Name returns parser identifier (e.g., "ofx", "csv-amex")
	Name() string

	// CanParse checks if parser can handle this file
	// Returns true if this parser should be used for the file
	CanParse(path string, header []byte) bool

	// Parse extracts raw records from file
	Parse(ctx context.Context, r io.Reader, meta *Metadata) (*RawStatement, error)
}

// Strategy extracts transaction records from the full text of one document.
// A strategy that recognizes nothing returns an empty slice; callers treat an
// error and an empty result the same way.
type Strategy interface {
	Name() string
	Extract(content string) ([]RawTransaction, error)
}

// RawStatement represents parsed data before normalization
type RawStatement struct {
	Account      RawAccount
	Period       *Period // nil when the file carries no usable statement period
	Strategy     string  // strategy or parser that produced Transactions
	Transactions []RawTransaction
}

// RawAccount represents account information from the file
type RawAccount struct {
	institutionID string // ORG from the OFX signon, e.g. "AMEX"
	accountID     string
	accountType   string // "checking", "savings", "credit"
}

// InstitutionID returns the institution identifier
func (r *RawAccount) InstitutionID() string { return r.institutionID }

// AccountID returns the account identifier
func (r *RawAccount) AccountID() string { return r.accountID }

// AccountType returns the account type
func (r *RawAccount) AccountType() string { return r.accountType }

// NewRawAccount creates a raw account. Every field is optional because most
// exports only carry an account identifier when they are well formed.
func NewRawAccount(institutionID, accountID, accountType string) RawAccount {
	return RawAccount{
		institutionID: institutionID,
		accountID:     accountID,
		accountType:   accountType,
	}
}

// Period represents the statement period
type Period struct {
	start time.Time
	end   time.Time
}

// Start returns the period start time
func (p *Period) Start() time.Time { return p.start }

// End returns the period end time
func (p *Period) End() time.Time { return p.end }

// Contains returns true if the given time falls within the period (inclusive)
func (p *Period) Contains(t time.Time) bool {
	return !t.Before(p.start) && !t.After(p.end)
}

// NewPeriod creates a validated period. A single-day period (start == end) is allowed.
func NewPeriod(start, end time.Time) (*Period, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("start time cannot be zero")
	}
	if end.IsZero() {
		return nil, fmt.Errorf("end time cannot be zero")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("start must not be after end")
	}

	return &Period{
		start: start,
		end:   end,
	}, nil
}

// Field identifies the transaction attribute an OFX tag populates.
type Field int

const (
	FieldNone Field = iota
	FieldType
	FieldDatePosted
	FieldAmount
	FieldReference
	FieldName
	FieldMemo
)

// FieldForTag maps an OFX element name to the field it populates.
// FITID and REFNUM both populate the reference.
func FieldForTag(tag string) Field {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "TRNTYPE":
		return FieldType
	case "DTPOSTED":
		return FieldDatePosted
	case "TRNAMT":
		return FieldAmount
	case "FITID", "REFNUM":
		return FieldReference
	case "NAME":
		return FieldName
	case "MEMO":
		return FieldMemo
	default:
		return FieldNone
	}
}

// RawTransaction is a transaction exactly as it appeared in the source.
// No field is validated; absent fields are empty strings.
type RawTransaction struct {
	trnType    string
	datePosted string
	amount     string
	reference  string
	name       string
	memo       string
}

// NewRawTransaction creates a raw transaction from already extracted values
func NewRawTransaction(trnType, datePosted, amount, reference, name, memo string) RawTransaction {
	return RawTransaction{
		trnType:    trnType,
		datePosted: datePosted,
		amount:     amount,
		reference:  reference,
		name:       name,
		memo:       memo,
	}
}

// Type returns the free-text transaction type code (TRNTYPE)
func (r *RawTransaction) Type() string { return r.trnType }

// DatePosted returns the posted date as written in the source
func (r *RawTransaction) DatePosted() string { return r.datePosted }

// Amount returns the decimal amount string as written in the source
func (r *RawTransaction) Amount() string { return r.amount }

// Reference returns the FITID or REFNUM
func (r *RawTransaction) Reference() string { return r.reference }

// Name returns the payee name
func (r *RawTransaction) Name() string { return r.name }

// Memo returns the memo
func (r *RawTransaction) Memo() string { return r.memo }

// Set assigns value to field. Later assignments overwrite earlier ones.
// FieldNone is ignored.
func (r *RawTransaction) Set(field Field, value string) {
	switch field {
	case FieldType:
		r.trnType = value
	case FieldDatePosted:
		r.datePosted = value
	case FieldAmount:
		r.amount = value
	case FieldReference:
		r.reference = value
	case FieldName:
		r.name = value
	case FieldMemo:
		r.memo = value
	}
}
