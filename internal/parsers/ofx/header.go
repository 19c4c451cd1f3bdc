package ofx

import (
	"bytes"
	"fmt"

	"github.com/aclindsa/ofxgo"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
)

// ReadStatementHeader extracts the account and statement period of a
// well-formed OFX document with ofxgo. ofxgo is strict, so malformed exports
// that the strategies still handle return an error here; callers treat the
// header as optional.
func ReadStatementHeader(content []byte) (parser.RawAccount, *parser.Period, error) {
	resp, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return parser.RawAccount{}, nil, fmt.Errorf("failed to parse OFX header (%d bytes): %w", len(content), err)
	}

	org := resp.Signon.Org.String()

	if len(resp.CreditCard) > 0 {
		ccStmt, ok := resp.CreditCard[0].(*ofxgo.CCStatementResponse)
		if !ok {
			return parser.RawAccount{}, nil, fmt.Errorf("unexpected credit card statement type %T", resp.CreditCard[0])
		}
		account := parser.NewRawAccount(org, ccStmt.CCAcctFrom.AcctID.String(), "credit")
		return account, periodFrom(ccStmt.BankTranList), nil
	}

	if len(resp.Bank) > 0 {
		bankStmt, ok := resp.Bank[0].(*ofxgo.StatementResponse)
		if !ok {
			return parser.RawAccount{}, nil, fmt.Errorf("unexpected bank statement type %T", resp.Bank[0])
		}
		account := parser.NewRawAccount(org, bankStmt.BankAcctFrom.AcctID.String(), mapBankAccountType(bankStmt.BankAcctFrom))
		return account, periodFrom(bankStmt.BankTranList), nil
	}

	return parser.RawAccount{}, nil, fmt.Errorf("no bank or credit card statement in OFX response (creditcard: %d, bank: %d)",
		len(resp.CreditCard), len(resp.Bank))
}

// periodFrom returns nil when the list is missing or its dates are unusable
func periodFrom(tranList *ofxgo.TransactionList) *parser.Period {
	if tranList == nil {
		return nil
	}
	period, err := parser.NewPeriod(tranList.DtStart.Time, tranList.DtEnd.Time)
	if err != nil {
		return nil
	}
	return period
}

// mapBankAccountType maps OFX account type to internal account type
func mapBankAccountType(ofxAcct ofxgo.BankAcct) string {
	switch ofxAcct.AcctType {
	case ofxgo.AcctTypeChecking:
		return "checking"
	case ofxgo.AcctTypeSavings:
		return "savings"
	default:
		return "bank"
	}
}
