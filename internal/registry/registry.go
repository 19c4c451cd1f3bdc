// Package registry selects the statement parser for a file.
package registry

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/parsers/csv"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/parsers/ofx"
)

// HeaderSize is the number of leading bytes handed to CanParse.
const HeaderSize = 512

// FormatAuto requests content sniffing.
const FormatAuto = "auto"

// formats maps configured source formats to parser names.
var formats = map[string]string{
	"ofx":          "ofx",
	"amex-csv":     "csv-amex",
	"citizens-csv": "csv-citizens",
	"pnc-csv":      "csv-pnc",
}

// KnownFormat reports whether format is "auto" or names a built-in parser.
func KnownFormat(format string) bool {
	if format == "" || format == FormatAuto {
		return true
	}
	_, ok := formats[format]
	return ok
}

// Registry holds all registered parsers
type Registry struct {
	parsers  []parser.Parser
	fallback parser.Parser
}

// New creates a registry with all built-in parsers. CSV parsers come first
// since their headers are exact; OFX is also the fallback for Detect.
func New() (*Registry, error) {
	r := &Registry{}
	builtins := []parser.Parser{
		csv.NewAmexParser(),
		csv.NewCitizensParser(),
		csv.NewPNCParser(),
		ofx.NewParser(),
	}
	for _, p := range builtins {
		if err := r.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register built-in parser: %w", err)
		}
	}
	r.fallback = ofx.NewParser()
	return r, nil
}

// MustNew is New for callers that cannot recover from a broken built-in set.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a custom parser (for extensibility)
func (r *Registry) Register(p parser.Parser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	for _, existing := range r.parsers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("parser %q already registered", p.Name())
		}
	}
	r.parsers = append(r.parsers, p)
	return nil
}

// Lookup returns the registered parser with the given name.
func (r *Registry) Lookup(name string) (parser.Parser, error) {
	for _, p := range r.parsers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser named %q", name)
}

// ForFormat resolves a configured source format. "auto" and "" return nil
// with no error, meaning the caller should sniff.
func (r *Registry) ForFormat(format string) (parser.Parser, error) {
	if format == "" || format == FormatAuto {
		return nil, nil
	}
	name, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("unknown source format %q", format)
	}
	return r.Lookup(name)
}

// Detect returns the first parser claiming the content, or the OFX parser
// when none does.
func (r *Registry) Detect(path string, header []byte) parser.Parser {
	if len(header) > HeaderSize {
		header = header[:HeaderSize]
	}
	for _, p := range r.parsers {
		if p.CanParse(path, header) {
			return p
		}
	}
	return r.fallback
}

// ListParsers returns all registered parsers
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
