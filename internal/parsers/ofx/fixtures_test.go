package ofx

import (
	"fmt"
	"strings"
)

const v1SGMLData = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20251213120000
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>0
<ACCTID>0
<ACCTTYPE>FAKE
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240613120000
<DTEND>20251213120000
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20251212120000
<TRNAMT>-999.99
<FITID>1
<NAME>Payment Place
<MEMO>Preauthorized Debit
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20251212120000
<TRNAMT>-1.00
<FITID>2
<NAME>Payment Place
<MEMO>Preauthorized Debit
</STMTTRN>`

const v2XMLData = `<?xml version="1.0" standalone="no"?><?OFX OFXHEADER="200" VERSION="202" SECURITY="NONE" OLDFILEUID="NONE" NEWFILEUID="NONE"?>
<OFX>
    <SIGNONMSGSRSV1>
        <SONRS>
            <STATUS>
                <CODE>0</CODE>
                <SEVERITY>INFO</SEVERITY>
                <MESSAGE>Login Successful!</MESSAGE>
            </STATUS>
            <DTSERVER>20251124000000.000[-7:MST]</DTSERVER>
            <LANGUAGE>ENG</LANGUAGE>
            <FI>
                <ORG>FAKE</ORG>
                <FID>1</FID>
            </FI>
            <INTU.BID>1</INTU.BID>
        </SONRS>
    </SIGNONMSGSRSV1>
    <CREDITCARDMSGSRSV1>
        <CCSTMTTRNRS>
            <TRNUID>0</TRNUID>
            <STATUS>
                <CODE>0</CODE>
                <SEVERITY>INFO</SEVERITY>
            </STATUS>
            <CCSTMTRS>
                <CURDEF>USD</CURDEF>
                <CCACCTFROM>
                    <ACCTID>0</ACCTID>
                </CCACCTFROM>
                <BANKTRANLIST>
                    <DTSTART>20251023000000.000[-7:MST]</DTSTART>
                    <DTEND>20251121000000.000[-7:MST]</DTEND>
                    <STMTTRN>
                        <TRNTYPE>DEBIT</TRNTYPE>
                        <DTPOSTED>20251120000000.000[-7:MST]</DTPOSTED>
                        <TRNAMT>-10.01</TRNAMT>
                        <FITID>1</FITID>
                        <REFNUM>1</REFNUM>
                        <NAME>Transaction 1 Name</NAME>
                        <MEMO>Transaction 1 Memo</MEMO>
                    </STMTTRN>
                    <STMTTRN>
                        <TRNTYPE>DEBIT</TRNTYPE>
                        <DTPOSTED>20251119000000.000[-7:MST]</DTPOSTED>
                        <TRNAMT>-5.01</TRNAMT>
                        <FITID>2</FITID>
                        <REFNUM>2</REFNUM>
                        <NAME>Transaction 2 Name</NAME>
                        <MEMO>Transaction 2 Memo</MEMO>
                    </STMTTRN>
                </BANKTRANLIST>
            </CCSTMTRS>
        </CCSTMTTRNRS>
    </CREDITCARDMSGSRSV1>
</OFX>`

const oneLineData = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX><SIGNONMSGSRSV1><SONRS><STATUS><CODE>0<SEVERITY>INFO</STATUS><DTSERVER>20251215120000[0:GMT]<LANGUAGE>ENG<FI><ORG>Dummy<FID>000</FI></SONRS></SIGNONMSGSRSV1><CREDITCARDMSGSRSV1><CCSTMTTRNRS><TRNUID>0<STATUS><CODE>0<SEVERITY>INFO</STATUS><CCSTMTRS><CURDEF>USD<CCACCTFROM><ACCTID>00-test</CCACCTFROM><BANKTRANLIST><DTSTART>20251101120000[0:GMT]<DTEND>20251130120000[0:GMT]<STMTTRN><TRNTYPE>DEBIT<DTPOSTED>20251129120000[0:GMT]<TRNAMT>-0.92<FITID>test-123<NAME>Test Transaction</STMTTRN></BANKTRANLIST><LEDGERBAL><BALAMT>-1234.56<DTASOF>20251130120000[0:GMT]</LEDGERBAL><AVAILBAL><BALAMT>9999.99DTASOF>20251130120000[0:GMT]</AVAILBAL></CCSTMTRS></CCSTMTTRNRS></CREDITCARDMSGSRSV1></OFX>`

// bankStatementSGML is strict enough for ofxgo.
const bankStatementSGML = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240101120000
<LANGUAGE>ENG
<FI>
<ORG>TESTBANK
<FID>12345
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>9876543210
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101000000
<DTEND>20240131235959
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000
<TRNAMT>-50.00
<FITID>TXN001
<NAME>Test Transaction 1
<MEMO>Coffee Shop
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240115120000
<TRNAMT>1000.00
<FITID>TXN002
<NAME>Paycheck
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>2000.00
<DTASOF>20240131235959
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

// fixtureTxn is one transaction rendered into each encoding by the helpers below.
type fixtureTxn struct {
	trnType, date, amount, ref, name, memo string
}

var invarianceTxns = []fixtureTxn{
	{"DEBIT", "20251212120000", "-999.99", "1", "Payment Place", "Preauthorized Debit"},
	{"CREDIT", "20251213120000", "25.00", "2", "Refund Co", "Returned item"},
}

// escapedTxns carry the characters OFX writes as character references.
var escapedTxns = []fixtureTxn{
	{"DEBIT", "20251201120000", "-84.10", "AT&T-9", "AT&T", "AT&T Wireless"},
	{"DEBIT", "20251202120000", "-1,299.00", "B&H-1", "B&H Photo", "Order <1234> \"camera\""},
	{"CREDIT", "20251203", "15.00", "H&M-2", "H&M", "Refund & return > 30 days"},
}

// ofxEscaper writes the references both OFX encodings use.
var ofxEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

const sgmlHeader = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

`

func fixtureFields(t fixtureTxn) [][2]string {
	return [][2]string{
		{"TRNTYPE", t.trnType},
		{"DTPOSTED", t.date},
		{"TRNAMT", t.amount},
		{"FITID", t.ref},
		{"NAME", t.name},
		{"MEMO", t.memo},
	}
}

func renderXML(txns []fixtureTxn) string {
	return renderXMLCharset(txns, "UTF-8")
}

func renderXMLCharset(txns []fixtureTxn, charset string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="%s" standalone="no"?><?OFX OFXHEADER="200" VERSION="202"?>`+"\n", charset)
	b.WriteString("<OFX><BANKMSGSRSV1><STMTTRNRS><STMTRS><BANKTRANLIST>\n")
	for _, t := range txns {
		b.WriteString("  <STMTTRN>\n")
		for _, f := range fixtureFields(t) {
			fmt.Fprintf(&b, "    <%s>%s</%s>\n", f[0], ofxEscaper.Replace(f[1]), f[0])
		}
		b.WriteString("  </STMTTRN>\n")
	}
	b.WriteString("</BANKTRANLIST></STMTRS></STMTTRNRS></BANKMSGSRSV1></OFX>\n")
	return b.String()
}

func renderSGML(txns []fixtureTxn) string {
	var b strings.Builder
	b.WriteString(sgmlHeader)
	b.WriteString("<OFX>\n<BANKMSGSRSV1>\n<STMTTRNRS>\n<STMTRS>\n<BANKTRANLIST>\n")
	for _, t := range txns {
		b.WriteString("<STMTTRN>\n")
		for _, f := range fixtureFields(t) {
			fmt.Fprintf(&b, "<%s>%s\n", f[0], ofxEscaper.Replace(f[1]))
		}
		b.WriteString("</STMTTRN>\n")
	}
	b.WriteString("</BANKTRANLIST>\n</STMTRS>\n</STMTTRNRS>\n</BANKMSGSRSV1>\n</OFX>\n")
	return b.String()
}

func renderSingleLine(txns []fixtureTxn) string {
	var b strings.Builder
	b.WriteString(sgmlHeader)
	b.WriteString("<OFX><BANKMSGSRSV1><STMTTRNRS><STMTRS><BANKTRANLIST>")
	for _, t := range txns {
		b.WriteString("<STMTTRN>")
		for _, f := range fixtureFields(t) {
			fmt.Fprintf(&b, "<%s>%s", f[0], ofxEscaper.Replace(f[1]))
		}
		b.WriteString("</STMTTRN>")
	}
	b.WriteString("</BANKTRANLIST></STMTRS></STMTTRNRS></BANKMSGSRSV1></OFX>")
	return b.String()
}
