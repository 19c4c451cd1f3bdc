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

// citizensRow is one line of a Citizens Bank transaction export.
// Amounts are already signed (negative = money out).
type citizensRow struct {
	TransactionType string `csv:"Transaction Type"`
	Date            string `csv:"Date"`
	AccountType     string `csv:"Account Type"`
	Description     string `csv:"Description"`
	Amount          string `csv:"Amount"`
	Reference       string `csv:"Reference No."`
}

// CitizensParser parses Citizens Bank CSV exports. Stateless.
type CitizensParser struct{}

var citizensInstance = &CitizensParser{}

// NewCitizensParser returns the shared Citizens parser instance.
func NewCitizensParser() *CitizensParser {
	return citizensInstance
}

// Name returns the parser identifier
func (p *CitizensParser) Name() string {
	return "csv-citizens"
}

// CanParse matches a header row carrying Transaction Type, Date, Description
// and Amount columns.
func (p *CitizensParser) CanParse(path string, header []byte) bool {
	if !isCSVPath(path) {
		return false
	}
	return hasColumns(headerFields(header), "Transaction Type", "Date", "Description", "Amount")
}

// Parse converts the export to raw transactions. The Transaction Type column
// feeds TRNTYPE classification; when it is blank the sign decides.
func (p *CitizensParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.RawStatement, error) {
	content, err := readContent(ctx, r, meta)
	if err != nil {
		return nil, err
	}

	var rows []citizensRow
	if err := gocsv.UnmarshalCSV(gocsv.LazyCSVReader(bytes.NewReader(content)), &rows); err != nil {
		return nil, fmt.Errorf("failed to decode Citizens CSV%s: %w", parser.FileInfo(meta), err)
	}

	accountType := "checking"
	transactions := make([]parser.RawTransaction, 0, len(rows))
	for _, row := range rows {
		if isBlank(row.Date, row.Description, row.Amount) {
			continue
		}

		amount := cleanAmount(row.Amount)
		trnType := strings.ToUpper(strings.TrimSpace(row.TransactionType))
		if trnType == "" {
			trnType = "CREDIT"
			if isNegative(amount) {
				trnType = "DEBIT"
			}
		}
		if at := strings.ToLower(strings.TrimSpace(row.AccountType)); at != "" {
			accountType = at
		}

		transactions = append(transactions, parser.NewRawTransaction(
			trnType,
			strings.TrimSpace(row.Date),
			amount,
			strings.TrimSpace(row.Reference),
			strings.TrimSpace(row.Description),
			"",
		))
	}

	return &parser.RawStatement{
		Account:      parser.NewRawAccount("CITIZENS", "", accountType),
		Strategy:     p.Name(),
		Transactions: transactions,
	}, nil
}
