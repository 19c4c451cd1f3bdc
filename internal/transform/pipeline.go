package transform

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/rules"
)

// Classifier maps a free-text type code to a lookup code
type Classifier interface {
	Classify(trnType string) domain.TypeCode
}

// Normalizer converts raw records into canonical transactions.
type Normalizer struct {
	classifier Classifier
}

// NewNormalizer creates a normalizer using the given classifier
func NewNormalizer(classifier Classifier) (*Normalizer, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	return &Normalizer{classifier: classifier}, nil
}

// NewDefaultNormalizer creates a normalizer backed by the embedded type rules
func NewDefaultNormalizer() (*Normalizer, error) {
	engine, err := rules.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	return NewNormalizer(engine)
}

// TransformTransaction converts one raw record. Soft data errors never fail:
// a bad amount becomes 0 and an unknown date passes through unchanged.
// Description is the memo, or the payee name when the memo is empty.
func (n *Normalizer) TransformTransaction(raw *parser.RawTransaction) domain.Transaction {
	description := raw.Memo()
	if description == "" {
		description = raw.Name()
	}

	return domain.Transaction{
		Description:     description,
		Amount:          NormalizeAmount(raw.Amount()),
		TransactionDate: NormalizeDate(raw.DatePosted()),
		ReferenceNumber: raw.Reference(),
		TypeCode:        n.classifier.Classify(raw.Type()),
	}
}

// TransformStatement converts every record of a statement, preserving order.
func (n *Normalizer) TransformStatement(raw *parser.RawStatement) ([]domain.Transaction, error) {
	if raw == nil {
		return nil, fmt.Errorf("raw statement cannot be nil")
	}

	txns := make([]domain.Transaction, 0, len(raw.Transactions))
	for i := range raw.Transactions {
		txns = append(txns, n.TransformTransaction(&raw.Transactions[i]))
	}
	return txns, nil
}
