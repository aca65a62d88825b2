package xrechnung

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// SchemaIssue is one structural conformance defect.
type SchemaIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

var dateTime102Re = regexp.MustCompile(`^\d{8}$`)

// ValidateSchema checks a CII document against the structural core of
// the D16B schema: the namespace-qualified root, the mandatory
// ExchangedDocument and SupplyChainTradeTransaction children, format
// 102 dates and currency-qualified tax totals. It covers the required
// element set, not the full XSD.
func ValidateSchema(data []byte) []SchemaIssue {
	var issues []SchemaIssue
	fail := func(path, format string, args ...any) {
		issues = append(issues, SchemaIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		fail("", "document is not well-formed XML: %v", err)
		return issues
	}
	root := doc.Root()
	if root == nil {
		fail("", "document has no root element")
		return issues
	}
	if root.Tag != "CrossIndustryInvoice" {
		fail("", "root element is %q, want CrossIndustryInvoice", root.Tag)
		return issues
	}
	if ns := root.SelectAttrValue("xmlns:"+root.Space, ""); ns != NamespaceRSM {
		fail(root.Tag, "root namespace is %q, want %q", ns, NamespaceRSM)
	}

	ctx := root.FindElement("ExchangedDocumentContext")
	if ctx == nil {
		fail("CrossIndustryInvoice", "missing ExchangedDocumentContext")
	} else if guideline := ctx.FindElement("GuidelineSpecifiedDocumentContextParameter/ID"); guideline == nil {
		fail("ExchangedDocumentContext", "missing guideline parameter ID")
	} else if !strings.Contains(guideline.Text(), "xrechnung") {
		fail("ExchangedDocumentContext", "guideline %q is not an XRechnung profile", guideline.Text())
	}

	document := root.FindElement("ExchangedDocument")
	if document == nil {
		fail("CrossIndustryInvoice", "missing ExchangedDocument")
	} else {
		if id := document.FindElement("ID"); id == nil || id.Text() == "" {
			fail("ExchangedDocument", "missing document ID")
		}
		if tc := document.FindElement("TypeCode"); tc == nil || tc.Text() == "" {
			fail("ExchangedDocument", "missing TypeCode")
		}
		checkDate(document.FindElement("IssueDateTime/DateTimeString"), "ExchangedDocument.IssueDateTime", fail)
	}

	tx := root.FindElement("SupplyChainTradeTransaction")
	if tx == nil {
		fail("CrossIndustryInvoice", "missing SupplyChainTradeTransaction")
		return issues
	}

	if len(tx.FindElements("IncludedSupplyChainTradeLineItem")) == 0 {
		fail("SupplyChainTradeTransaction", "no trade line items")
	}

	agreement := tx.FindElement("ApplicableHeaderTradeAgreement")
	if agreement == nil {
		fail("SupplyChainTradeTransaction", "missing ApplicableHeaderTradeAgreement")
	} else {
		for _, party := range []string{"SellerTradeParty", "BuyerTradeParty"} {
			if name := agreement.FindElement(party + "/Name"); name == nil || name.Text() == "" {
				fail("ApplicableHeaderTradeAgreement."+party, "missing party name")
			}
		}
	}

	settlement := tx.FindElement("ApplicableHeaderTradeSettlement")
	if settlement == nil {
		fail("SupplyChainTradeTransaction", "missing ApplicableHeaderTradeSettlement")
		return issues
	}
	if cur := settlement.FindElement("InvoiceCurrencyCode"); cur == nil || len(cur.Text()) != 3 {
		fail("ApplicableHeaderTradeSettlement", "missing or malformed InvoiceCurrencyCode")
	}
	summation := settlement.FindElement("SpecifiedTradeSettlementHeaderMonetarySummation")
	if summation == nil {
		fail("ApplicableHeaderTradeSettlement", "missing monetary summation")
	} else {
		for _, amount := range []string{"LineTotalAmount", "GrandTotalAmount", "DuePayableAmount"} {
			if el := summation.FindElement(amount); el == nil || el.Text() == "" {
				fail("SpecifiedTradeSettlementHeaderMonetarySummation", "missing %s", amount)
			}
		}
		if taxTotal := summation.FindElement("TaxTotalAmount"); taxTotal != nil {
			if taxTotal.SelectAttrValue("currencyID", "") == "" {
				fail("SpecifiedTradeSettlementHeaderMonetarySummation.TaxTotalAmount", "missing currencyID attribute")
			}
		}
	}

	return issues
}

func checkDate(el *etree.Element, path string, fail func(path, format string, args ...any)) {
	if el == nil {
		fail(path, "missing DateTimeString")
		return
	}
	if format := el.SelectAttrValue("format", ""); format != dateFormat102 {
		fail(path, "date format is %q, want %s", format, dateFormat102)
	}
	if !dateTime102Re.MatchString(el.Text()) {
		fail(path, "date %q is not CCYYMMDD", el.Text())
	}
}
