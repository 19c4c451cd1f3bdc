package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

// pncRow is one transaction line after the PNC summary line.
// Amounts are unsigned; Type carries the direction.
type pncRow struct {
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Memo        string `csv:"memo"`
	Reference   string `csv:"reference"`
	Type        string `csv:"type"`
}

// pncColumns is the number of fields in pncRow.
const pncColumns = 6

// recordSource replays already-read records to gocsv.
type recordSource struct {
	records [][]string
	next    int
}

func (s *recordSource) Read() ([]string, error) {
	if s.next >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.next]
	s.next++
	return rec, nil
}

func (s *recordSource) ReadAll() ([][]string, error) {
	rest := s.records[s.next:]
	s.next = len(s.records)
	return rest, nil
}

// PNCParser implements PNC CSV parsing. Stateless and safe for concurrent use.
type PNCParser struct{}

var pncInstance = &PNCParser{}

// NewPNCParser returns the shared PNC parser instance.
func NewPNCParser() *PNCParser {
	return pncInstance
}

// Name returns the parser identifier
func (p *PNCParser) Name() string {
	return "csv-pnc"
}

// datePattern matches YYYY/MM/DD format in CSV headers
var datePattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)

// CanParse checks for the PNC summary line:
// AccountNumber, StartDate, EndDate, BeginningBalance, EndingBalance
func (p *PNCParser) CanParse(path string, header []byte) bool {
	if !isCSVPath(path) {
		return false
	}
	record := headerFields(header)
	if len(record) != 5 {
		return false
	}
	return datePattern.MatchString(record[1]) && datePattern.MatchString(record[2])
}

// Parse extracts the summary line and transaction rows from a PNC CSV file
func (p *PNCParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.RawStatement, error) {
	content, err := readContent(ctx, r, meta)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(bytes.NewReader(content))
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	summary, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("CSV file is empty%s: %w", parser.FileInfo(meta), err)
	}

	account, period, err := p.parseSummaryLine(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to parse summary line%s: %w", parser.FileInfo(meta), err)
	}

	records, lines, err := p.readRecords(csvReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions%s: %w", parser.FileInfo(meta), err)
	}

	transactions := make([]parser.RawTransaction, 0, len(records))
	if len(records) > 0 {
		var rows []pncRow
		if err := gocsv.UnmarshalCSVWithoutHeaders(&recordSource{records: records}, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode transactions%s: %w", parser.FileInfo(meta), err)
		}
		for i, row := range rows {
			txn, err := p.parseTransactionRow(row)
			if err != nil {
				return nil, fmt.Errorf("failed to parse transaction at line %d%s: %w", lines[i], parser.FileInfo(meta), err)
			}
			transactions = append(transactions, txn)
		}
	}

	return &parser.RawStatement{
		Account:      account,
		Period:       period,
		Strategy:     p.Name(),
		Transactions: transactions,
	}, nil
}

// readRecords collects the non-blank transaction rows after the summary line
// along with their 1-based line numbers.
func (p *PNCParser) readRecords(r *csv.Reader) ([][]string, []int, error) {
	var records [][]string
	var lines []int
	for {
		record, err := r.Read()
		if err == io.EOF {
			return records, lines, nil
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := r.FieldPos(0)
		if isBlank(record...) {
			continue
		}
		if len(record) != pncColumns {
			return nil, nil, fmt.Errorf("transaction row at line %d must have %d fields, got %d", line, pncColumns, len(record))
		}
		records = append(records, record)
		lines = append(lines, line)
	}
}

// parseSummaryLine parses the first row containing account and period information
func (p *PNCParser) parseSummaryLine(record []string) (parser.RawAccount, *parser.Period, error) {
	if len(record) != 5 {
		return parser.RawAccount{}, nil, fmt.Errorf("summary line must have 5 fields, got %d", len(record))
	}

	accountID := strings.TrimSpace(record[0])
	if accountID == "" {
		return parser.RawAccount{}, nil, fmt.Errorf("account number cannot be empty")
	}

	startDate, err := time.Parse("2006/01/02", strings.TrimSpace(record[1]))
	if err != nil {
		return parser.RawAccount{}, nil, fmt.Errorf("invalid start date %q: %w", record[1], err)
	}
	endDate, err := time.Parse("2006/01/02", strings.TrimSpace(record[2]))
	if err != nil {
		return parser.RawAccount{}, nil, fmt.Errorf("invalid end date %q: %w", record[2], err)
	}

	period, err := parser.NewPeriod(startDate, endDate)
	if err != nil {
		return parser.RawAccount{}, nil, fmt.Errorf("failed to create period: %w", err)
	}

	return parser.NewRawAccount("PNC", accountID, "checking"), period, nil
}

// parseTransactionRow converts one row. DEBIT rows are negated so the result
// follows the OFX sign convention (negative = money out).
func (p *PNCParser) parseTransactionRow(row pncRow) (parser.RawTransaction, error) {
	dateStr := strings.TrimSpace(row.Date)
	date, err := time.Parse("2006/01/02", dateStr)
	if err != nil {
		return parser.RawTransaction{}, fmt.Errorf("invalid transaction date %q: %w", dateStr, err)
	}

	amount := cleanAmount(row.Amount)
	if amount == "" {
		return parser.RawTransaction{}, fmt.Errorf("amount cannot be empty")
	}

	txnType := strings.ToUpper(strings.TrimSpace(row.Type))
	if txnType == "DEBIT" {
		amount = negateAmount(amount)
	}

	return parser.NewRawTransaction(
		txnType,
		date.Format("2006-01-02"),
		amount,
		strings.TrimSpace(row.Reference),
		strings.TrimSpace(row.Description),
		strings.TrimSpace(row.Memo),
	), nil
}
