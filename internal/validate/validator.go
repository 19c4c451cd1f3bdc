package validate

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/dedup"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/transform"
)

// ValidationResult contains all validation errors and warnings for a run
type ValidationResult struct {
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

// ValidationError represents a broken batch invariant. A run with errors
// must not be delivered.
type ValidationError struct {
	Entity  string `json:"entity"` // "institution", "batch", "transaction"
	ID      string `json:"id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationWarning represents a data anomaly carried through from a source
// file. Warnings never block delivery.
type ValidationWarning struct {
	Entity  string `json:"entity"`
	ID      string `json:"id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// OK reports whether there are no errors
func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) errorf(entity, id, field, value, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{
		Entity:  entity,
		ID:      id,
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *ValidationResult) warnf(entity, id, field, value, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{
		Entity:  entity,
		ID:      id,
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

// ValidateBatches checks the assembled batches before delivery.
//
// Errors: negative institution ids, fingerprint/transaction count mismatch,
// malformed or mismatched fingerprints, a fingerprint repeated across
// batches, redundant batches carrying transactions, unknown type codes.
//
// Warnings: zero amounts, unrecognized dates, empty descriptions, empty
// references, and amounts whose sign disagrees with the type code.
func ValidateBatches(institutions []domain.InstitutionBatch) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	seen := make(map[string]string)

	for _, inst := range institutions {
		if inst.InstitutionID < 0 {
			result.errorf("institution", inst.Institution, "InstitutionID", fmt.Sprintf("%d", inst.InstitutionID),
				"institution id cannot be negative")
		}

		for i := range inst.Batches {
			batch := &inst.Batches[i]
			validateBatch(result, batch, seen)
		}
	}

	return result
}

func validateBatch(result *ValidationResult, batch *domain.TransactionBatch, seen map[string]string) {
	id := batch.Source

	if len(batch.Fingerprints) != len(batch.Transactions) {
		result.errorf("batch", id, "Fingerprints", fmt.Sprintf("%d", len(batch.Fingerprints)),
			"batch has %d fingerprints for %d transactions", len(batch.Fingerprints), len(batch.Transactions))
		return
	}

	if batch.AllRedundant && len(batch.Transactions) > 0 {
		result.errorf("batch", id, "AllRedundant", "true",
			"redundant batch carries %d transactions", len(batch.Transactions))
	}

	if batch.SourceFingerprint != "" && !dedup.IsFingerprint(batch.SourceFingerprint) {
		result.errorf("batch", id, "SourceFingerprint", batch.SourceFingerprint,
			"source fingerprint is not a SHA-256 hex digest")
	}

	if batch.Period != nil && batch.Period.End.Before(batch.Period.Start) {
		result.errorf("batch", id, "Period", batch.Period.End.Format("2006-01-02"),
			"period end %s is before start %s", batch.Period.End.Format("2006-01-02"), batch.Period.Start.Format("2006-01-02"))
	}

	for i := range batch.Transactions {
		txn := &batch.Transactions[i]
		fp := batch.Fingerprints[i]

		if !dedup.IsFingerprint(fp) {
			result.errorf("transaction", fp, "Fingerprint", fp, "fingerprint is not a SHA-256 hex digest")
		} else if fp != dedup.Fingerprint(*txn) {
			result.errorf("transaction", fp, "Fingerprint", fp, "fingerprint does not match transaction fields")
		}

		if prev, ok := seen[fp]; ok {
			result.errorf("transaction", fp, "Fingerprint", fp, "fingerprint already batched from %s", prev)
		} else {
			seen[fp] = id
		}

		if !domain.ValidateTypeCode(txn.TypeCode) {
			result.errorf("transaction", fp, "TypeCode", fmt.Sprintf("%d", int(txn.TypeCode)),
				"invalid type code %d (must be %d or %d)", int(txn.TypeCode), int(domain.TypeDebit), int(domain.TypeCredit))
		}

		validateTransaction(result, fp, txn)
	}
}

func validateTransaction(result *ValidationResult, fp string, txn *domain.Transaction) {
	if txn.Amount == 0 {
		result.warnf("transaction", fp, "Amount", "0", "amount is zero or could not be read")
	}

	if !transform.IsNormalizedDate(txn.TransactionDate) {
		result.warnf("transaction", fp, "TransactionDate", txn.TransactionDate,
			"unrecognized date format, passed through unchanged")
	}

	if txn.Description == "" {
		result.warnf("transaction", fp, "Description", "", "description is empty")
	}

	if txn.ReferenceNumber == "" {
		result.warnf("transaction", fp, "ReferenceNumber", "", "reference number is empty")
	}

	// Sign and type are derived independently; a mismatch is reported, not fixed.
	switch {
	case txn.TypeCode == domain.TypeDebit && txn.Amount > 0:
		result.warnf("transaction", fp, "Amount", fmt.Sprintf("%d", txn.Amount), "positive amount on a DEBIT")
	case txn.TypeCode == domain.TypeCredit && txn.Amount < 0:
		result.warnf("transaction", fp, "Amount", fmt.Sprintf("%d", txn.Amount), "negative amount on a CREDIT")
	}
}
