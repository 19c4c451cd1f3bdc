package csv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

// amexRow is one line of an American Express activity export.
// Amex reports charges as positive amounts and payments/credits as negative.
type amexRow struct {
	Date        string `csv:"Date"`
	Description string `csv:"Description"`
	Amount      string `csv:"Amount"`
	Reference   string `csv:"Reference"`
	Category    string `csv:"Category"`
}

// AmexParser parses American Express CSV activity downloads. Stateless.
type AmexParser struct{}

var amexInstance = &AmexParser{}

// NewAmexParser returns the shared Amex parser instance.
func NewAmexParser() *AmexParser {
	return amexInstance
}

// Name returns the parser identifier
func (p *AmexParser) Name() string {
	return "csv-amex"
}

// CanParse matches on the header row: Date first, with Description and
// Amount columns and no Transaction Type column.
func (p *AmexParser) CanParse(path string, header []byte) bool {
	if !isCSVPath(path) {
		return false
	}
	fields := headerFields(header)
	if len(fields) < 3 || !strings.EqualFold(fields[0], "Date") {
		return false
	}
	return hasColumns(fields, "Description", "Amount") && !hasColumns(fields, "Transaction Type")
}

// Parse converts the export to raw transactions in the OFX sign convention:
// charges become negative DEBITs, payments and refunds positive CREDITs.
func (p *AmexParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.RawStatement, error) {
	content, err := readContent(ctx, r, meta)
	if err != nil {
		return nil, err
	}

	var rows []amexRow
	if err := gocsv.UnmarshalCSV(gocsv.LazyCSVReader(bytes.NewReader(content)), &rows); err != nil {
		return nil, fmt.Errorf("failed to decode Amex CSV%s: %w", parser.FileInfo(meta), err)
	}

	transactions := make([]parser.RawTransaction, 0, len(rows))
	for _, row := range rows {
		if isBlank(row.Date, row.Description, row.Amount) {
			continue
		}

		amount := cleanAmount(row.Amount)
		trnType := "CREDIT"
		if !isNegative(amount) {
			trnType = "DEBIT"
		}

		transactions = append(transactions, parser.NewRawTransaction(
			trnType,
			strings.TrimSpace(row.Date),
			negateAmount(amount),
			strings.Trim(strings.TrimSpace(row.Reference), "'"),
			strings.TrimSpace(row.Description),
			"",
		))
	}

	return &parser.RawStatement{
		Account:      parser.NewRawAccount("AMEX", "", "credit"),
		Strategy:     p.Name(),
		Transactions: transactions,
	}, nil
}
