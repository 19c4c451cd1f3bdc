package dedup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrMalformedLedger is returned when a ledger line is not a fingerprint.
var ErrMalformedLedger = errors.New("malformed ledger")

// Ledger is the set of transaction fingerprints already delivered.
// It is not safe for concurrent use.
type Ledger struct {
	fingerprints map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{fingerprints: make(map[string]struct{})}
}

// LoadLedger reads a newline-delimited fingerprint file.
// Returns os.IsNotExist error if file doesn't exist (caller should handle).
// Blank lines and surrounding whitespace are ignored; fingerprints are
// matched case-insensitively.
func LoadLedger(filePath string) (*Ledger, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err // Preserve os.IsNotExist for caller
	}

	l := NewLedger()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		if !IsFingerprint(line) {
			return nil, fmt.Errorf("%w: %s line %d: %q is not a fingerprint", ErrMalformedLedger, filePath, lineNo, truncate(line, 80))
		}
		l.fingerprints[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedLedger, filePath, err)
	}
	return l, nil
}

// SaveLedger atomically rewrites the ledger file with sorted fingerprints.
// Uses atomic write pattern: write to temp file, then rename.
// Ensures parent directory exists.
func SaveLedger(l *Ledger, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var buf bytes.Buffer
	for _, fp := range l.Fingerprints() {
		buf.WriteString(fp)
		buf.WriteByte('\n')
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Contains reports whether the fingerprint has been delivered before.
func (l *Ledger) Contains(fingerprint string) bool {
	_, ok := l.fingerprints[strings.ToLower(fingerprint)]
	return ok
}

// Add records fingerprints. It returns how many were not already present.
func (l *Ledger) Add(fingerprints ...string) (int, error) {
	for _, fp := range fingerprints {
		if !IsFingerprint(strings.ToLower(fp)) {
			return 0, fmt.Errorf("invalid fingerprint %q", truncate(fp, 80))
		}
	}
	added := 0
	for _, fp := range fingerprints {
		fp = strings.ToLower(fp)
		if _, ok := l.fingerprints[fp]; !ok {
			l.fingerprints[fp] = struct{}{}
			added++
		}
	}
	return added, nil
}

// Len returns the number of fingerprints.
func (l *Ledger) Len() int {
	return len(l.fingerprints)
}

// Fingerprints returns all fingerprints in sorted order.
func (l *Ledger) Fingerprints() []string {
	out := make([]string, 0, len(l.fingerprints))
	for fp := range l.fingerprints {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
