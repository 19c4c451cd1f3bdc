package ofx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

// ErrUnparseable marks a document no strategy could extract transactions from.
var ErrUnparseable = errors.New("no OFX strategy produced transactions")

// StrategyAttempt records why one strategy was passed over.
// Err is nil when the strategy ran cleanly but found nothing.
type StrategyAttempt struct {
	Strategy string
	Err      error
}

// ParseError reports that every strategy failed for Source.
type ParseError struct {
	Source   string
	Attempts []StrategyAttempt
}

func (e *ParseError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		if a.Err != nil {
			parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
		} else {
			parts[i] = fmt.Sprintf("%s: no transactions", a.Strategy)
		}
	}
	return fmt.Sprintf("could not parse %s as OFX (%s)", e.Source, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, ErrUnparseable) match.
func (e *ParseError) Unwrap() error { return ErrUnparseable }

// Result is the output of a successful dispatch
type Result struct {
	Strategy string
	Records  []parser.RawTransaction
	// Attempts lists the strategies tried and passed over before Strategy.
	Attempts []StrategyAttempt
}

// Dispatcher tries strategies in a fixed order and keeps the first non-empty
// result. Stateless and safe for concurrent use.
type Dispatcher struct {
	strategies []parser.Strategy
}

var defaultDispatcher = NewDispatcher(XMLStrategy{}, SGMLStrategy{}, SingleLineStrategy{})

// NewDispatcher creates a dispatcher over strategies in trial order
func NewDispatcher(strategies ...parser.Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies}
}

// DefaultDispatcher returns the XML, line SGML, single-line SGML dispatcher.
func DefaultDispatcher() *Dispatcher {
	return defaultDispatcher
}

// Strategies returns the strategy names in trial order
func (d *Dispatcher) Strategies() []string {
	names := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name()
	}
	return names
}

// Dispatch extracts records from content. A strategy error or an empty result
// moves on to the next strategy; when all are exhausted the returned error is
// a *ParseError naming source.
func (d *Dispatcher) Dispatch(content, source string) (*Result, error) {
	attempts := make([]StrategyAttempt, 0, len(d.strategies))

	for _, s := range d.strategies {
		records, err := s.Extract(content)
		if err == nil && len(records) > 0 {
			return &Result{
				Strategy: s.Name(),
				Records:  records,
				Attempts: attempts,
			}, nil
		}
		attempts = append(attempts, StrategyAttempt{Strategy: s.Name(), Err: err})
	}

	return nil, &ParseError{Source: source, Attempts: attempts}
}
