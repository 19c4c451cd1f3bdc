package ofx

import (
	"bufio"
	"fmt"
	"html"
	"strings"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

// maxLineSize bounds a single SGML line; single-line exports put the whole
// document on one line.
const maxLineSize = 32 << 20

// SGMLStrategy extracts transactions from OFX 1.x SGML with one tag per line.
type SGMLStrategy struct{}

// Name returns the strategy identifier
func (SGMLStrategy) Name() string { return "sgml" }

// Extract walks trimmed, non-empty lines. <STMTTRN> opens a fresh record and
// </STMTTRN> emits the current record, whether or not one was opened.
func (SGMLStrategy) Extract(content string) ([]parser.RawTransaction, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		txns    []parser.RawTransaction
		current parser.RawTransaction
		inTxn   bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "<STMTTRN>") {
			inTxn = true
			current = parser.RawTransaction{}
			continue
		}
		if strings.HasPrefix(upper, "</STMTTRN>") {
			inTxn = false
			txns = append(txns, current)
			current = parser.RawTransaction{}
			continue
		}

		if inTxn && strings.HasPrefix(line, "<") {
			if tag, value, ok := splitTagLine(line); ok {
				current.Set(parser.FieldForTag(tag), value)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan SGML lines: %w", err)
	}

	return txns, nil
}

// splitTagLine splits "<TAG>value" into its tag and value. The value runs to
// the next '<' or the end of the line, is trimmed, and has character
// references (&amp;, &lt;, ...) decoded as the XML strategy does.
func splitTagLine(line string) (tag, value string, ok bool) {
	if !strings.HasPrefix(line, "<") {
		return "", "", false
	}
	end := strings.IndexByte(line, '>')
	if end < 0 {
		return "", "", false
	}
	tag = line[1:end]
	rest := line[end+1:]
	if next := strings.IndexByte(rest, '<'); next >= 0 {
		rest = rest[:next]
	}
	return tag, strings.TrimSpace(html.UnescapeString(rest)), true
}

// SingleLineStrategy handles SGML exports with no line breaks by inserting one
// before every '<' and scanning the result as line-oriented SGML.
type SingleLineStrategy struct{}

// Name returns the strategy identifier
func (SingleLineStrategy) Name() string { return "sgml-single-line" }

// Extract splits content at every tag and delegates to SGMLStrategy
func (SingleLineStrategy) Extract(content string) ([]parser.RawTransaction, error) {
	return SGMLStrategy{}.Extract(strings.ReplaceAll(content, "<", "\n<"))
}
