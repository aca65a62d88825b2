package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/parser"
)

// CII XML structures (UN/CEFACT Cross Industry Invoice D16B).
// Struct tags match local names only so any rsm/ram/udt prefix binding works.
type ciiInvoice struct {
	XMLName xml.Name `xml:"CrossIndustryInvoice"`

	Context struct {
		Guideline struct {
			ID string `xml:"ID"`
		} `xml:"GuidelineSpecifiedDocumentContextParameter"`
	} `xml:"ExchangedDocumentContext"`

	Document struct {
		ID            string `xml:"ID"`
		TypeCode      string `xml:"TypeCode"`
		IssueDateTime struct {
			DateTimeString ciiDateTime `xml:"DateTimeString"`
		} `xml:"IssueDateTime"`
	} `xml:"ExchangedDocument"`

	Transaction ciiTransaction `xml:"SupplyChainTradeTransaction"`
}

type ciiDateTime struct {
	Format string `xml:"format,attr"`
	Value  string `xml:",chardata"`
}

type ciiTransaction struct {
	Lines     []ciiLine `xml:"IncludedSupplyChainTradeLineItem"`
	Agreement struct {
		Seller ciiParty `xml:"SellerTradeParty"`
		Buyer  ciiParty `xml:"BuyerTradeParty"`
	} `xml:"ApplicableHeaderTradeAgreement"`
	Settlement ciiSettlement `xml:"ApplicableHeaderTradeSettlement"`
}

type ciiParty struct {
	Name    string `xml:"Name"`
	Address struct {
		PostcodeCode string `xml:"PostcodeCode"`
		LineOne      string `xml:"LineOne"`
		CityName     string `xml:"CityName"`
		CountryID    string `xml:"CountryID"`
	} `xml:"PostalTradeAddress"`
	TaxRegistrations []ciiTaxRegistration `xml:"SpecifiedTaxRegistration"`
}

type ciiTaxRegistration struct {
	ID struct {
		SchemeID string `xml:"schemeID,attr"`
		Value    string `xml:",chardata"`
	} `xml:"ID"`
}

type ciiSettlement struct {
	CurrencyCode string `xml:"InvoiceCurrencyCode"`
	PaymentMeans struct {
		TypeCode     string `xml:"TypeCode"`
		Information  string `xml:"Information"`
		PayeeAccount struct {
			IBANID string `xml:"IBANID"`
		} `xml:"PayeePartyCreditorFinancialAccount"`
		PayeeInstitution struct {
			BICID string `xml:"BICID"`
		} `xml:"PayeeSpecifiedCreditorFinancialInstitution"`
	} `xml:"SpecifiedTradeSettlementPaymentMeans"`
	TradeTaxes   []ciiTradeTax `xml:"ApplicableTradeTax"`
	PaymentTerms struct {
		Description string `xml:"Description"`
		DueDate     struct {
			DateTimeString ciiDateTime `xml:"DateTimeString"`
		} `xml:"DueDateDateTime"`
	} `xml:"SpecifiedTradePaymentTerms"`
	Summation struct {
		LineTotal     string `xml:"LineTotalAmount"`
		TaxBasisTotal string `xml:"TaxBasisTotalAmount"`
		TaxTotal      string `xml:"TaxTotalAmount"`
		GrandTotal    string `xml:"GrandTotalAmount"`
		DuePayable    string `xml:"DuePayableAmount"`
	} `xml:"SpecifiedTradeSettlementHeaderMonetarySummation"`
}

type ciiTradeTax struct {
	CalculatedAmount      string `xml:"CalculatedAmount"`
	BasisAmount           string `xml:"BasisAmount"`
	RateApplicablePercent string `xml:"RateApplicablePercent"`
}

type ciiLine struct {
	LineDoc struct {
		LineID string `xml:"LineID"`
	} `xml:"AssociatedDocumentLineDocument"`
	Product struct {
		Name        string `xml:"Name"`
		Description string `xml:"Description"`
	} `xml:"SpecifiedTradeProduct"`
	Agreement struct {
		NetPrice struct {
			ChargeAmount string `xml:"ChargeAmount"`
		} `xml:"NetPriceProductTradePrice"`
	} `xml:"SpecifiedLineTradeAgreement"`
	Delivery struct {
		BilledQuantity ciiQuantity `xml:"BilledQuantity"`
	} `xml:"SpecifiedLineTradeDelivery"`
	Settlement struct {
		TradeTax  ciiTradeTax `xml:"ApplicableTradeTax"`
		Summation struct {
			LineTotal string `xml:"LineTotalAmount"`
		} `xml:"SpecifiedTradeSettlementLineMonetarySummation"`
	} `xml:"SpecifiedLineTradeSettlement"`
}

type ciiQuantity struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

// CIIAdapter parses UN/CEFACT Cross Industry Invoice XML
type CIIAdapter struct{}

// NewCIIAdapter creates a new CII adapter
func NewCIIAdapter() *CIIAdapter {
	return &CIIAdapter{}
}

// Flavor returns the dialect
func (a *CIIAdapter) Flavor() model.Flavor {
	return model.FlavorCII
}

// CanParse checks if content is CII format
func (a *CIIAdapter) CanParse(content []byte) bool {
	return bytes.Contains(content, ciiNamespace) ||
		bytes.Contains(content, ciiRoot)
}

// Parse parses CII XML into the canonical invoice
func (a *CIIAdapter) Parse(ctx context.Context, r io.Reader) (*ParseResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.FlavorCII, "content", "failed to read content", err)
	}

	var inv ciiInvoice
	if err := xml.Unmarshal(content, &inv); err != nil {
		return nil, model.NewXMLValidationError(model.FlavorCII, "failed to parse XML", err)
	}

	return a.convertInvoice(&inv, content), nil
}

func (a *CIIAdapter) convertInvoice(inv *ciiInvoice, rawXML []byte) *ParseResult {
	result := &ParseResult{Success: true}
	fieldErr := func(path, message string) {
		result.Errors = append(result.Errors, model.FieldError{Path: path, Message: message})
	}

	out := &model.Invoice{
		DocumentID:       inv.Document.ID,
		DocumentTypeCode: inv.Document.TypeCode,
		Currency:         inv.Transaction.Settlement.CurrencyCode,
		Flavor:           model.FlavorCII,
		Direction:        model.DirectionIncoming,
		RawXML:           rawXML,
	}

	if date, err := parser.ParseDate(inv.Document.IssueDateTime.DateTimeString.Value); err == nil {
		out.IssueDate = date
	} else if inv.Document.IssueDateTime.DateTimeString.Value != "" {
		fieldErr("ExchangedDocument.IssueDateTime", err.Error())
	}

	out.Seller = convertCIIParty(inv.Transaction.Agreement.Seller)
	out.Buyer = convertCIIParty(inv.Transaction.Agreement.Buyer)

	// Payment means
	settlement := inv.Transaction.Settlement
	out.Payment = model.Payment{
		Means: settlement.PaymentMeans.TypeCode,
		IBAN:  settlement.PaymentMeans.PayeeAccount.IBANID,
		BIC:   settlement.PaymentMeans.PayeeInstitution.BICID,
		Terms: settlement.PaymentTerms.Description,
	}
	if out.Payment.Terms == "" {
		out.Payment.Terms = settlement.PaymentMeans.Information
	}

	if due := settlement.PaymentTerms.DueDate.DateTimeString.Value; due != "" {
		if date, err := parser.ParseDate(due); err == nil {
			out.DueDate = &date
		} else {
			fieldErr("SpecifiedTradePaymentTerms.DueDateDateTime", err.Error())
		}
	}

	// Line items; a single IncludedSupplyChainTradeLineItem unmarshals into
	// a one-element slice already.
	for i, line := range inv.Transaction.Lines {
		item := model.LineItem{
			Position:    i + 1,
			Description: line.Product.Name,
			Unit:        line.Delivery.BilledQuantity.UnitCode,
		}
		if item.Description == "" {
			item.Description = line.Product.Description
		}

		if v, err := parser.ParseAmount(line.Delivery.BilledQuantity.Value); err == nil {
			item.Quantity = v
		}
		if v, err := parser.ParseAmount(line.Agreement.NetPrice.ChargeAmount); err == nil {
			item.UnitPrice = v
		}
		if v, err := parser.ParseAmount(line.Settlement.Summation.LineTotal); err == nil {
			item.NetAmount = v
		} else {
			fieldErr(linePath(i, "LineTotalAmount"), err.Error())
		}
		if v, err := parser.ParseAmount(line.Settlement.TradeTax.RateApplicablePercent); err == nil {
			item.TaxRate = model.TaxRate(v.IntPart())
		}
		if v, err := parser.ParseAmount(line.Settlement.TradeTax.CalculatedAmount); err == nil {
			item.TaxAmount = v
		} else {
			item.TaxAmount = item.NetAmount.Mul(taxRateDecimal(item.TaxRate)).Div(hundred).Round(2)
		}
		item.GrossAmount = item.NetAmount.Add(item.TaxAmount).Round(2)

		out.Items = append(out.Items, item)
	}

	// Header monetary summation
	if v, err := parser.ParseAmount(settlement.Summation.LineTotal); err == nil {
		out.Totals.NetAmount = v
	} else if v, err := parser.ParseAmount(settlement.Summation.TaxBasisTotal); err == nil {
		out.Totals.NetAmount = v
	} else {
		fieldErr("SpecifiedTradeSettlementHeaderMonetarySummation.LineTotalAmount", "missing net amount")
	}
	if v, err := parser.ParseAmount(settlement.Summation.TaxTotal); err == nil {
		out.Totals.TaxAmount = v
	}
	if v, err := parser.ParseAmount(settlement.Summation.GrandTotal); err == nil {
		out.Totals.GrossAmount = v
	} else if v, err := parser.ParseAmount(settlement.Summation.DuePayable); err == nil {
		out.Totals.GrossAmount = v
	} else {
		fieldErr("SpecifiedTradeSettlementHeaderMonetarySummation.GrandTotalAmount", "missing gross amount")
	}

	// Tax breakdown buckets
	for _, tax := range settlement.TradeTaxes {
		bucket := model.TaxBucket{}
		if v, err := parser.ParseAmount(tax.RateApplicablePercent); err == nil {
			bucket.Rate = model.TaxRate(v.IntPart())
		}
		if v, err := parser.ParseAmount(tax.BasisAmount); err == nil {
			bucket.TaxableAmount = v
		}
		if v, err := parser.ParseAmount(tax.CalculatedAmount); err == nil {
			bucket.TaxAmount = v
		}
		out.TaxBreakdown = append(out.TaxBreakdown, bucket)
	}

	result.Invoice = out
	return result
}

func convertCIIParty(p ciiParty) model.Party {
	out := model.Party{
		Name:        p.Name,
		Street:      p.Address.LineOne,
		PostCode:    p.Address.PostcodeCode,
		City:        p.Address.CityName,
		CountryCode: p.Address.CountryID,
	}
	for _, reg := range p.TaxRegistrations {
		switch reg.ID.SchemeID {
		case "VA":
			out.VATID = reg.ID.Value
		case "FC":
			out.TaxNumber = reg.ID.Value
		}
	}
	return out
}
