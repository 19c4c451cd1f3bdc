package ofx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

// XMLStrategy extracts STMTTRN blocks from well-formed OFX 2.x documents by
// scanning the token stream. OFX 1.x SGML fails here with a syntax error,
// which the dispatcher treats as "not this format".
type XMLStrategy struct{}

// Name returns the strategy identifier
func (XMLStrategy) Name() string { return "xml" }

// Extract scans content token by token. An accumulator is live only between a
// STMTTRN start and its end; inside it, the most recent field start tag
// selects which field the next text assigns.
func (XMLStrategy) Extract(content string) ([]parser.RawTransaction, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Strict = true
	dec.CharsetReader = charsetReader
	dec.Entity = xml.HTMLEntity

	var (
		txns    []parser.RawTransaction
		current *parser.RawTransaction
		cursor  parser.Field
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml syntax near offset %d: %w", dec.InputOffset(), err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if strings.EqualFold(t.Name.Local, "STMTTRN") {
				if current == nil {
					current = &parser.RawTransaction{}
				}
				cursor = parser.FieldNone
				continue
			}
			cursor = parser.FieldForTag(t.Name.Local)

		case xml.EndElement:
			if strings.EqualFold(t.Name.Local, "STMTTRN") && current != nil {
				txns = append(txns, *current)
				current = nil
			}
			cursor = parser.FieldNone

		case xml.CharData:
			if current == nil || cursor == parser.FieldNone {
				continue
			}
			if text := strings.TrimSpace(string(t)); text != "" {
				current.Set(cursor, text)
			}
		}
	}

	return txns, nil
}

// charsetReader lets the decoder accept the charsets OFX exports declare.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "usascii", "us-ascii", "ascii", "none":
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
