// Package csv provides card-issuer CSV statement parsing for ofxingest
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readContent reads the whole file, honoring cancellation before and after the read.
func readContent(ctx context.Context, r io.Reader, meta *parser.Metadata) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content%s: %w", parser.FileInfo(meta), err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return bytes.TrimPrefix(content, utf8BOM), nil
}

func isCSVPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

// headerFields returns the trimmed fields of the first CSV record in header.
// Returns nil if the header is not CSV.
func headerFields(header []byte) []string {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(header, utf8BOM)))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	record, err := r.Read()
	if err != nil {
		return nil
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	return record
}

// hasColumns reports whether every name appears in fields (case-insensitive).
func hasColumns(fields []string, names ...string) bool {
	for _, name := range names {
		found := false
		for _, f := range fields {
			if strings.EqualFold(f, name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// cleanAmount strips currency formatting ("$1,234.50", "(12.00)") down to a
// plain decimal string. Values that still do not parse are returned trimmed
// so the amount normalizer can zero them.
func cleanAmount(raw string) string {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if negative && s != "" && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}

// negateAmount flips the sign of a decimal string. Unparsable input is
// returned unchanged.
func negateAmount(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.Neg().StringFixed(int32(max(2, -d.Exponent())))
}

// isNegative reports whether s parses as a decimal below zero.
func isNegative(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsNegative()
}

func isBlank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
