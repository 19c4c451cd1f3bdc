package validate

import (
	"testing"
	"time"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/dedup"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
)

func validTxn(desc string, amount int64, ref string, code domain.TypeCode) domain.Transaction {
	return domain.Transaction{
		Description:     desc,
		Amount:          amount,
		TransactionDate: "2024-01-15T00:00:00Z",
		ReferenceNumber: ref,
		TypeCode:        code,
	}
}

func batchOf(source string, txns ...domain.Transaction) domain.TransactionBatch {
	b := domain.TransactionBatch{
		Source:            source,
		SourceFingerprint: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
	for _, txn := range txns {
		b.Add(txn, dedup.Fingerprint(txn))
	}
	return b
}

func institution(batches ...domain.TransactionBatch) []domain.InstitutionBatch {
	return []domain.InstitutionBatch{{InstitutionID: 1, Institution: "amex", Batches: batches}}
}

func hasError(result *ValidationResult, entity, field string) bool {
	for _, e := range result.Errors {
		if e.Entity == entity && e.Field == field {
			return true
		}
	}
	return false
}

func hasWarning(result *ValidationResult, field, value string) bool {
	for _, w := range result.Warnings {
		if w.Field == field && w.Value == value {
			return true
		}
	}
	return false
}

func TestValidateBatches_Empty(t *testing.T) {
	result := ValidateBatches(nil)

	if !result.OK() {
		t.Errorf("empty run should have no errors, got %d", len(result.Errors))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("empty run should have no warnings, got %d", len(result.Warnings))
	}
}

func TestValidateBatches_Valid(t *testing.T) {
	result := ValidateBatches(institution(
		batchOf("/s/amex/jan.ofx",
			validTxn("Coffee", -450, "1", domain.TypeDebit),
			validTxn("Salary", 250000, "2", domain.TypeCredit),
		),
		batchOf("/s/amex/feb.ofx", validTxn("Groceries", -8213, "3", domain.TypeDebit)),
	))

	if !result.OK() {
		t.Errorf("valid run should have no errors, got %d:", len(result.Errors))
		for _, e := range result.Errors {
			t.Errorf("  - %s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message)
		}
	}
	if len(result.Warnings) != 0 {
		t.Errorf("valid run should have no warnings, got %+v", result.Warnings)
	}
}

func TestValidateBatches_RedundantBatch(t *testing.T) {
	redundant := domain.TransactionBatch{Source: "/s/a.ofx", Parsed: 2, Duplicates: 2, AllRedundant: true}
	result := ValidateBatches(institution(redundant))
	if !result.OK() {
		t.Errorf("empty redundant batch is valid, got %+v", result.Errors)
	}

	broken := batchOf("/s/b.ofx", validTxn("Coffee", -450, "1", domain.TypeDebit))
	broken.AllRedundant = true
	result = ValidateBatches(institution(broken))
	if !hasError(result, "batch", "AllRedundant") {
		t.Error("expected error for redundant batch with transactions")
	}
}

func TestValidateBatches_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *domain.TransactionBatch)
		entity string
		field  string
	}{
		{
			name:   "fingerprint count mismatch",
			mutate: func(b *domain.TransactionBatch) { b.Fingerprints = b.Fingerprints[:0] },
			entity: "batch",
			field:  "Fingerprints",
		},
		{
			name:   "malformed fingerprint",
			mutate: func(b *domain.TransactionBatch) { b.Fingerprints[0] = "not-a-hash" },
			entity: "transaction",
			field:  "Fingerprint",
		},
		{
			name:   "fingerprint of other fields",
			mutate: func(b *domain.TransactionBatch) { b.Transactions[0].Amount = -451 },
			entity: "transaction",
			field:  "Fingerprint",
		},
		{
			name:   "unknown type code",
			mutate: func(b *domain.TransactionBatch) { b.Transactions[0].TypeCode = 30 },
			entity: "transaction",
			field:  "TypeCode",
		},
		{
			name:   "malformed source fingerprint",
			mutate: func(b *domain.TransactionBatch) { b.SourceFingerprint = "abc" },
			entity: "batch",
			field:  "SourceFingerprint",
		},
		{
			name: "inverted period",
			mutate: func(b *domain.TransactionBatch) {
				b.Period = &domain.StatementPeriod{
					Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
					End:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				}
			},
			entity: "batch",
			field:  "Period",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := batchOf("/s/a.ofx", validTxn("Coffee", -450, "1", domain.TypeDebit))
			tt.mutate(&b)

			result := ValidateBatches(institution(b))
			if !hasError(result, tt.entity, tt.field) {
				t.Errorf("expected %s error on %s, got %+v", tt.entity, tt.field, result.Errors)
			}
		})
	}
}

func TestValidateBatches_FingerprintAcrossBatches(t *testing.T) {
	txn := validTxn("Coffee", -450, "1", domain.TypeDebit)
	result := ValidateBatches([]domain.InstitutionBatch{
		{Institution: "amex", Batches: []domain.TransactionBatch{batchOf("/s/amex/a.ofx", txn)}},
		{Institution: "joint", Batches: []domain.TransactionBatch{batchOf("/s/joint/a.ofx", txn)}},
	})

	if len(result.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", result.Errors)
	}
	if result.Errors[0].Message != "fingerprint already batched from /s/amex/a.ofx" {
		t.Errorf("unexpected message %q", result.Errors[0].Message)
	}
}

func TestValidateBatches_NegativeInstitution(t *testing.T) {
	result := ValidateBatches([]domain.InstitutionBatch{{InstitutionID: -1, Institution: "amex"}})
	if !hasError(result, "institution", "InstitutionID") {
		t.Error("expected error for negative institution id")
	}
}

func TestValidateBatches_Warnings(t *testing.T) {
	tests := []struct {
		name  string
		txn   domain.Transaction
		field string
		value string
	}{
		{"zero amount", validTxn("Fee reversal", 0, "1", domain.TypeDebit), "Amount", "0"},
		{"empty description", validTxn("", -100, "1", domain.TypeDebit), "Description", ""},
		{"empty reference", validTxn("Coffee", -100, "", domain.TypeDebit), "ReferenceNumber", ""},
		{"positive debit", validTxn("Refund", 100, "1", domain.TypeDebit), "Amount", "100"},
		{"negative credit", validTxn("Chargeback", -100, "1", domain.TypeCredit), "Amount", "-100"},
		{
			name: "passthrough date",
			txn: domain.Transaction{
				Description:     "Coffee",
				Amount:          -100,
				TransactionDate: "Jan 5",
				ReferenceNumber: "1",
				TypeCode:        domain.TypeDebit,
			},
			field: "TransactionDate",
			value: "Jan 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateBatches(institution(batchOf("/s/a.ofx", tt.txn)))

			if !result.OK() {
				t.Errorf("soft anomalies must not be errors, got %+v", result.Errors)
			}
			if !hasWarning(result, tt.field, tt.value) {
				t.Errorf("expected warning on %s=%q, got %+v", tt.field, tt.value, result.Warnings)
			}
		})
	}
}
