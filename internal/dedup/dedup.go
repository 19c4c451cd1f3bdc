// Package dedup provides transaction deduplication via SHA256 fingerprinting and ledger persistence.
package dedup

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
)

// FingerprintLen is the length of a hex-encoded SHA256 digest.
const FingerprintLen = sha256.Size * 2

// Fingerprint hashes the fields that identify a transaction:
// description, transaction date, amount (int64 little-endian) and reference.
// Two transactions agreeing on all four collapse to one fingerprint.
func Fingerprint(txn domain.Transaction) string {
	h := sha256.New()
	io.WriteString(h, txn.Description)
	io.WriteString(h, txn.TransactionDate)
	var amount [8]byte
	binary.LittleEndian.PutUint64(amount[:], uint64(txn.Amount))
	h.Write(amount[:])
	io.WriteString(h, txn.ReferenceNumber)
	return hex.EncodeToString(h.Sum(nil))
}

// FileFingerprint streams r through SHA256.
func FileFingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsFingerprint reports whether s is a lowercase 64-character hex digest.
func IsFingerprint(s string) bool {
	if len(s) != FingerprintLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
