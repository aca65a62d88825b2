// Package xrechnung renders canonical invoices as XRechnung 3.0 CII
// documents.
package xrechnung

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/model"
)

// CII namespaces of the CrossIndustryInvoice D16B vocabulary.
const (
	NamespaceRSM = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
	NamespaceRAM = "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
	NamespaceUDT = "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"
)

// ProfileID is the XRechnung 3.0 specification identifier.
const ProfileID = "urn:cen.eu:en16931:2017#compliant#urn:xeinkauf.de:kosit:xrechnung_3.0"

// dateFormat102 is the CCYYMMDD qualifier used throughout CII.
const dateFormat102 = "102"

// Generator builds XRechnung CII documents.
type Generator struct{}

// NewGenerator creates a generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the invoice as XRechnung CII XML. Missing required
// fields and structural defects in the produced tree both surface as a
// GeneratorError; no partial document is ever returned.
func (g *Generator) Generate(inv *model.Invoice) ([]byte, error) {
	if err := checkRequired(inv); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("rsm:CrossIndustryInvoice")
	root.CreateAttr("xmlns:rsm", NamespaceRSM)
	root.CreateAttr("xmlns:ram", NamespaceRAM)
	root.CreateAttr("xmlns:udt", NamespaceUDT)

	g.writeContext(root)
	g.writeDocument(root, inv)
	g.writeTransaction(root, inv)

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, model.NewGeneratorError("", fmt.Sprintf("failed to serialize document: %v", err))
	}

	if issues := ValidateSchema(out); len(issues) > 0 {
		return nil, model.NewGeneratorError(issues[0].Path, issues[0].Message)
	}
	return out, nil
}

func checkRequired(inv *model.Invoice) error {
	if inv == nil {
		return model.NewGeneratorError("", "invoice is nil")
	}
	switch {
	case inv.DocumentID == "":
		return model.NewGeneratorError("documentId", "invoice number is required")
	case inv.IssueDate.IsZero():
		return model.NewGeneratorError("issueDate", "issue date is required")
	case inv.Seller.Name == "":
		return model.NewGeneratorError("seller.name", "seller name is required")
	case inv.Buyer.Name == "":
		return model.NewGeneratorError("buyer.name", "buyer name is required")
	case inv.Currency == "":
		return model.NewGeneratorError("currency", "currency is required")
	case len(inv.Items) == 0:
		return model.NewGeneratorError("lineItems", "at least one line item is required")
	}
	for i, item := range inv.Items {
		if item.Description == "" {
			return model.NewGeneratorError(
				fmt.Sprintf("lineItems[%d].description", i), "line description is required")
		}
	}
	return nil
}

func (g *Generator) writeContext(root *etree.Element) {
	ctx := root.CreateElement("rsm:ExchangedDocumentContext")
	param := ctx.CreateElement("ram:GuidelineSpecifiedDocumentContextParameter")
	param.CreateElement("ram:ID").SetText(ProfileID)
}

func (g *Generator) writeDocument(root *etree.Element, inv *model.Invoice) {
	doc := root.CreateElement("rsm:ExchangedDocument")
	doc.CreateElement("ram:ID").SetText(inv.DocumentID)

	typeCode := inv.DocumentTypeCode
	if typeCode == "" {
		typeCode = model.TypeCodeInvoice
	}
	doc.CreateElement("ram:TypeCode").SetText(typeCode)

	issue := doc.CreateElement("ram:IssueDateTime")
	writeDate(issue, inv.IssueDate.Format("20060102"))
}

func (g *Generator) writeTransaction(root *etree.Element, inv *model.Invoice) {
	tx := root.CreateElement("rsm:SupplyChainTradeTransaction")

	for i, item := range inv.Items {
		g.writeLine(tx, item, i+1)
	}

	agreement := tx.CreateElement("ram:ApplicableHeaderTradeAgreement")
	writeParty(agreement, "ram:SellerTradeParty", inv.Seller)
	writeParty(agreement, "ram:BuyerTradeParty", inv.Buyer)

	tx.CreateElement("ram:ApplicableHeaderTradeDelivery")

	settlement := tx.CreateElement("ram:ApplicableHeaderTradeSettlement")
	settlement.CreateElement("ram:InvoiceCurrencyCode").SetText(inv.Currency)

	if inv.Payment.IBAN != "" || inv.Payment.Means != "" {
		means := settlement.CreateElement("ram:SpecifiedTradeSettlementPaymentMeans")
		typeCode := inv.Payment.Means
		if typeCode == "" {
			typeCode = "58"
		}
		means.CreateElement("ram:TypeCode").SetText(typeCode)
		if inv.Payment.IBAN != "" {
			account := means.CreateElement("ram:PayeePartyCreditorFinancialAccount")
			account.CreateElement("ram:IBANID").SetText(inv.Payment.IBAN)
		}
		if inv.Payment.BIC != "" {
			inst := means.CreateElement("ram:PayeeSpecifiedCreditorFinancialInstitution")
			inst.CreateElement("ram:BICID").SetText(inv.Payment.BIC)
		}
	}

	for _, bucket := range inv.TaxBreakdown {
		tax := settlement.CreateElement("ram:ApplicableTradeTax")
		tax.CreateElement("ram:CalculatedAmount").SetText(bucket.TaxAmount.StringFixed(2))
		tax.CreateElement("ram:TypeCode").SetText("VAT")
		tax.CreateElement("ram:BasisAmount").SetText(bucket.TaxableAmount.StringFixed(2))
		tax.CreateElement("ram:CategoryCode").SetText(taxCategory(bucket.Rate))
		tax.CreateElement("ram:RateApplicablePercent").SetText(rateString(bucket.Rate))
	}

	if inv.Payment.Terms != "" || inv.DueDate != nil {
		terms := settlement.CreateElement("ram:SpecifiedTradePaymentTerms")
		if inv.Payment.Terms != "" {
			terms.CreateElement("ram:Description").SetText(inv.Payment.Terms)
		}
		if inv.DueDate != nil {
			due := terms.CreateElement("ram:DueDateDateTime")
			writeDate(due, inv.DueDate.Format("20060102"))
		}
	}

	summation := settlement.CreateElement("ram:SpecifiedTradeSettlementHeaderMonetarySummation")
	summation.CreateElement("ram:LineTotalAmount").SetText(inv.Totals.NetAmount.StringFixed(2))
	summation.CreateElement("ram:TaxBasisTotalAmount").SetText(inv.Totals.NetAmount.StringFixed(2))
	taxTotal := summation.CreateElement("ram:TaxTotalAmount")
	taxTotal.CreateAttr("currencyID", inv.Currency)
	taxTotal.SetText(inv.Totals.TaxAmount.StringFixed(2))
	summation.CreateElement("ram:GrandTotalAmount").SetText(inv.Totals.GrossAmount.StringFixed(2))
	summation.CreateElement("ram:DuePayableAmount").SetText(inv.Totals.GrossAmount.StringFixed(2))
}

func (g *Generator) writeLine(tx *etree.Element, item model.LineItem, position int) {
	line := tx.CreateElement("ram:IncludedSupplyChainTradeLineItem")

	docLine := line.CreateElement("ram:AssociatedDocumentLineDocument")
	docLine.CreateElement("ram:LineID").SetText(fmt.Sprintf("%d", position))

	product := line.CreateElement("ram:SpecifiedTradeProduct")
	product.CreateElement("ram:Name").SetText(item.Description)

	agreement := line.CreateElement("ram:SpecifiedLineTradeAgreement")
	price := agreement.CreateElement("ram:NetPriceProductTradePrice")
	price.CreateElement("ram:ChargeAmount").SetText(item.UnitPrice.StringFixed(2))

	delivery := line.CreateElement("ram:SpecifiedLineTradeDelivery")
	qty := delivery.CreateElement("ram:BilledQuantity")
	unit := item.Unit
	if unit == "" {
		unit = "C62"
	}
	qty.CreateAttr("unitCode", unit)
	qty.SetText(item.Quantity.String())

	settlement := line.CreateElement("ram:SpecifiedLineTradeSettlement")
	tax := settlement.CreateElement("ram:ApplicableTradeTax")
	tax.CreateElement("ram:TypeCode").SetText("VAT")
	tax.CreateElement("ram:CategoryCode").SetText(taxCategory(item.TaxRate))
	tax.CreateElement("ram:RateApplicablePercent").SetText(rateString(item.TaxRate))

	summation := settlement.CreateElement("ram:SpecifiedTradeSettlementLineMonetarySummation")
	summation.CreateElement("ram:LineTotalAmount").SetText(item.NetAmount.StringFixed(2))
}

func writeParty(parent *etree.Element, tag string, party model.Party) {
	p := parent.CreateElement(tag)
	p.CreateElement("ram:Name").SetText(party.Name)

	if party.Street != "" || party.City != "" || party.CountryCode != "" {
		addr := p.CreateElement("ram:PostalTradeAddress")
		if party.PostCode != "" {
			addr.CreateElement("ram:PostcodeCode").SetText(party.PostCode)
		}
		if party.Street != "" {
			addr.CreateElement("ram:LineOne").SetText(party.Street)
		}
		if party.City != "" {
			addr.CreateElement("ram:CityName").SetText(party.City)
		}
		if party.CountryCode != "" {
			addr.CreateElement("ram:CountryID").SetText(party.CountryCode)
		}
	}

	if party.VATID != "" {
		reg := p.CreateElement("ram:SpecifiedTaxRegistration")
		id := reg.CreateElement("ram:ID")
		id.CreateAttr("schemeID", "VA")
		id.SetText(party.VATID)
	}
	if party.TaxNumber != "" {
		reg := p.CreateElement("ram:SpecifiedTaxRegistration")
		id := reg.CreateElement("ram:ID")
		id.CreateAttr("schemeID", "FC")
		id.SetText(party.TaxNumber)
	}
}

func writeDate(parent *etree.Element, value string) {
	dt := parent.CreateElement("udt:DateTimeString")
	dt.CreateAttr("format", dateFormat102)
	dt.SetText(value)
}

// taxCategory maps a rate to the EN 16931 VAT category code: S for
// taxed supplies, Z for zero-rated.
func taxCategory(rate model.TaxRate) string {
	if rate == model.TaxRateZero {
		return "Z"
	}
	return "S"
}

func rateString(rate model.TaxRate) string {
	return decimal.NewFromInt(int64(rate)).StringFixed(2)
}
