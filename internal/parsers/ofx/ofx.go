// Package ofx provides OFX/QFX statement parsing for ofxingest
package ofx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

// Parser reads OFX documents of any encoding (OFX 2 XML, OFX 1 SGML, SGML on
// a single line) through the fallback dispatcher. It is stateless and safe for
// concurrent use.
type Parser struct {
	dispatcher *Dispatcher
}

var parserInstance = &Parser{dispatcher: DefaultDispatcher()}

// NewParser returns the shared OFX parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// CanParse reports whether header looks like an OFX document. The format is
// sniffed from content only; file extensions are not consulted.
func (p *Parser) CanParse(path string, header []byte) bool {
	headerUpper := strings.ToUpper(string(header))

	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>") ||
		strings.Contains(headerUpper, "<STMTTRN>")
}

// Parse extracts raw transactions from an OFX document. All-strategies-failed
// is reported as a *ParseError. The account and period come from ofxgo when
// the document is strict enough for it and are left empty otherwise.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.RawStatement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content%s: %w", parser.FileInfo(meta), err)
	}

	// Dispatch does not observe ctx; this only catches cancellation during the read.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	source := "<input>"
	if meta != nil {
		source = meta.FilePath()
	}

	result, err := p.dispatcher.Dispatch(string(content), source)
	if err != nil {
		return nil, err
	}

	stmt := &parser.RawStatement{
		Strategy:     result.Strategy,
		Transactions: result.Records,
	}
	if account, period, err := ReadStatementHeader(content); err == nil {
		stmt.Account = account
		stmt.Period = period
	}

	return stmt, nil
}
