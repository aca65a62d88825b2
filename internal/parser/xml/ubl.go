package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/parser"
)

// UBL XML structures (OASIS Invoice-2)
type ublInvoice struct {
	XMLName              xml.Name `xml:"Invoice"`
	UBLVersionID         string   `xml:"UBLVersionID"`
	ID                   string   `xml:"ID"`
	IssueDate            string   `xml:"IssueDate"`
	DueDate              string   `xml:"DueDate"`
	InvoiceTypeCode      string   `xml:"InvoiceTypeCode"`
	DocumentCurrencyCode string   `xml:"DocumentCurrencyCode"`

	Supplier struct {
		Party ublParty `xml:"Party"`
	} `xml:"AccountingSupplierParty"`
	Customer struct {
		Party ublParty `xml:"Party"`
	} `xml:"AccountingCustomerParty"`

	PaymentMeans []ublPaymentMeans `xml:"PaymentMeans"`
	PaymentTerms struct {
		Note string `xml:"Note"`
	} `xml:"PaymentTerms"`

	TaxTotals  []ublTaxTotal `xml:"TaxTotal"`
	LegalTotal struct {
		LineExtensionAmount ublAmount `xml:"LineExtensionAmount"`
		TaxExclusiveAmount  ublAmount `xml:"TaxExclusiveAmount"`
		TaxInclusiveAmount  ublAmount `xml:"TaxInclusiveAmount"`
		PayableAmount       ublAmount `xml:"PayableAmount"`
	} `xml:"LegalMonetaryTotal"`

	Lines []ublLine `xml:"InvoiceLine"`
}

type ublAmount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

type ublParty struct {
	PartyName struct {
		Name string `xml:"Name"`
	} `xml:"PartyName"`
	PostalAddress struct {
		StreetName string `xml:"StreetName"`
		CityName   string `xml:"CityName"`
		PostalZone string `xml:"PostalZone"`
		Country    struct {
			IdentificationCode string `xml:"IdentificationCode"`
		} `xml:"Country"`
	} `xml:"PostalAddress"`
	TaxSchemes []struct {
		CompanyID string `xml:"CompanyID"`
		TaxScheme struct {
			ID string `xml:"ID"`
		} `xml:"TaxScheme"`
	} `xml:"PartyTaxScheme"`
	LegalEntity struct {
		RegistrationName string `xml:"RegistrationName"`
	} `xml:"PartyLegalEntity"`
}

type ublPaymentMeans struct {
	PaymentMeansCode string `xml:"PaymentMeansCode"`
	InstructionNote  string `xml:"InstructionNote"`
	PayeeAccount     struct {
		ID     string `xml:"ID"`
		Branch struct {
			ID          string `xml:"ID"`
			Institution struct {
				ID string `xml:"ID"`
			} `xml:"FinancialInstitution"`
		} `xml:"FinancialInstitutionBranch"`
	} `xml:"PayeeFinancialAccount"`
}

type ublTaxTotal struct {
	TaxAmount    ublAmount `xml:"TaxAmount"`
	TaxSubtotals []struct {
		TaxableAmount ublAmount `xml:"TaxableAmount"`
		TaxAmount     ublAmount `xml:"TaxAmount"`
		TaxCategory   struct {
			ID      string `xml:"ID"`
			Percent string `xml:"Percent"`
		} `xml:"TaxCategory"`
	} `xml:"TaxSubtotal"`
}

type ublLine struct {
	ID                  string      `xml:"ID"`
	InvoicedQuantity    ublQuantity `xml:"InvoicedQuantity"`
	LineExtensionAmount ublAmount   `xml:"LineExtensionAmount"`
	Item                struct {
		Description string `xml:"Description"`
		Name        string `xml:"Name"`
		TaxCategory struct {
			ID      string `xml:"ID"`
			Percent string `xml:"Percent"`
		} `xml:"ClassifiedTaxCategory"`
	} `xml:"Item"`
	Price struct {
		PriceAmount ublAmount `xml:"PriceAmount"`
	} `xml:"Price"`
}

type ublQuantity struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

// UBLAdapter parses OASIS UBL Invoice-2 XML
type UBLAdapter struct{}

// NewUBLAdapter creates a new UBL adapter
func NewUBLAdapter() *UBLAdapter {
	return &UBLAdapter{}
}

// Flavor returns the dialect
func (a *UBLAdapter) Flavor() model.Flavor {
	return model.FlavorUBL
}

// CanParse checks if content is UBL format
func (a *UBLAdapter) CanParse(content []byte) bool {
	if bytes.Contains(content, ciiRoot) {
		return false
	}
	return bytes.Contains(content, ublNamespace) ||
		(bytes.Contains(content, []byte("cbc:")) && bytes.Contains(content, []byte("cac:")))
}

// Parse parses UBL XML into the canonical invoice
func (a *UBLAdapter) Parse(ctx context.Context, r io.Reader) (*ParseResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.FlavorUBL, "content", "failed to read content", err)
	}

	var inv ublInvoice
	if err := xml.Unmarshal(content, &inv); err != nil {
		return nil, model.NewXMLValidationError(model.FlavorUBL, "failed to parse XML", err)
	}

	return a.convertInvoice(&inv, content), nil
}

func (a *UBLAdapter) convertInvoice(inv *ublInvoice, rawXML []byte) *ParseResult {
	result := &ParseResult{Success: true}
	fieldErr := func(path, message string) {
		result.Errors = append(result.Errors, model.FieldError{Path: path, Message: message})
	}

	out := &model.Invoice{
		DocumentID:       inv.ID,
		DocumentTypeCode: inv.InvoiceTypeCode,
		Currency:         inv.DocumentCurrencyCode,
		Flavor:           model.FlavorUBL,
		Direction:        model.DirectionIncoming,
		RawXML:           rawXML,
	}
	if out.DocumentTypeCode == "" {
		out.DocumentTypeCode = model.TypeCodeInvoice
	}

	if date, err := parser.ParseDate(inv.IssueDate); err == nil {
		out.IssueDate = date
	} else if inv.IssueDate != "" {
		fieldErr("Invoice.IssueDate", err.Error())
	}
	if inv.DueDate != "" {
		if date, err := parser.ParseDate(inv.DueDate); err == nil {
			out.DueDate = &date
		} else {
			fieldErr("Invoice.DueDate", err.Error())
		}
	}

	out.Seller = convertUBLParty(inv.Supplier.Party)
	out.Buyer = convertUBLParty(inv.Customer.Party)

	if len(inv.PaymentMeans) > 0 {
		pm := inv.PaymentMeans[0]
		out.Payment = model.Payment{
			Means: pm.PaymentMeansCode,
			IBAN:  pm.PayeeAccount.ID,
			BIC:   pm.PayeeAccount.Branch.Institution.ID,
			Terms: pm.InstructionNote,
		}
		if out.Payment.BIC == "" {
			out.Payment.BIC = pm.PayeeAccount.Branch.ID
		}
	}
	if out.Payment.Terms == "" {
		out.Payment.Terms = inv.PaymentTerms.Note
	}

	for i, line := range inv.Lines {
		item := model.LineItem{
			Position:    i + 1,
			Description: line.Item.Name,
			Unit:        line.InvoicedQuantity.UnitCode,
		}
		if item.Description == "" {
			item.Description = line.Item.Description
		}

		if v, err := parser.ParseAmount(line.InvoicedQuantity.Value); err == nil {
			item.Quantity = v
		}
		if v, err := parser.ParseAmount(line.Price.PriceAmount.Value); err == nil {
			item.UnitPrice = v
		}
		if v, err := parser.ParseAmount(line.LineExtensionAmount.Value); err == nil {
			item.NetAmount = v
		} else {
			fieldErr(linePath(i, "LineExtensionAmount"), err.Error())
		}
		if v, err := parser.ParseAmount(line.Item.TaxCategory.Percent); err == nil {
			item.TaxRate = model.TaxRate(v.IntPart())
		}
		// UBL has no per-line tax amount; derive it from the category rate.
		item.TaxAmount = item.NetAmount.Mul(taxRateDecimal(item.TaxRate)).Div(hundred).Round(2)
		item.GrossAmount = item.NetAmount.Add(item.TaxAmount).Round(2)

		out.Items = append(out.Items, item)
	}

	if v, err := parser.ParseAmount(inv.LegalTotal.TaxExclusiveAmount.Value); err == nil {
		out.Totals.NetAmount = v
	} else if v, err := parser.ParseAmount(inv.LegalTotal.LineExtensionAmount.Value); err == nil {
		out.Totals.NetAmount = v
	} else {
		fieldErr("LegalMonetaryTotal.TaxExclusiveAmount", "missing net amount")
	}
	if v, err := parser.ParseAmount(inv.LegalTotal.TaxInclusiveAmount.Value); err == nil {
		out.Totals.GrossAmount = v
	} else if v, err := parser.ParseAmount(inv.LegalTotal.PayableAmount.Value); err == nil {
		out.Totals.GrossAmount = v
	} else {
		fieldErr("LegalMonetaryTotal.TaxInclusiveAmount", "missing gross amount")
	}

	taxTotal := decimal.Zero
	for _, tt := range inv.TaxTotals {
		if v, err := parser.ParseAmount(tt.TaxAmount.Value); err == nil {
			taxTotal = taxTotal.Add(v)
		}
		for _, sub := range tt.TaxSubtotals {
			bucket := model.TaxBucket{}
			if v, err := parser.ParseAmount(sub.TaxCategory.Percent); err == nil {
				bucket.Rate = model.TaxRate(v.IntPart())
			}
			if v, err := parser.ParseAmount(sub.TaxableAmount.Value); err == nil {
				bucket.TaxableAmount = v
			}
			if v, err := parser.ParseAmount(sub.TaxAmount.Value); err == nil {
				bucket.TaxAmount = v
			}
			out.TaxBreakdown = append(out.TaxBreakdown, bucket)
		}
	}
	out.Totals.TaxAmount = taxTotal
	if taxTotal.IsZero() && !out.Totals.GrossAmount.IsZero() {
		out.Totals.TaxAmount = out.Totals.GrossAmount.Sub(out.Totals.NetAmount).Round(2)
	}

	result.Invoice = out
	return result
}

func convertUBLParty(p ublParty) model.Party {
	out := model.Party{
		Name:        p.PartyName.Name,
		Street:      p.PostalAddress.StreetName,
		PostCode:    p.PostalAddress.PostalZone,
		City:        p.PostalAddress.CityName,
		CountryCode: p.PostalAddress.Country.IdentificationCode,
	}
	if out.Name == "" {
		out.Name = p.LegalEntity.RegistrationName
	}
	for _, ts := range p.TaxSchemes {
		if ts.TaxScheme.ID == "VAT" && out.VATID == "" {
			out.VATID = ts.CompanyID
		} else if out.TaxNumber == "" {
			out.TaxNumber = ts.CompanyID
		}
	}
	return out
}

// Shared conversion helpers

var hundred = decimal.NewFromInt(100)

func taxRateDecimal(rate model.TaxRate) decimal.Decimal {
	return decimal.NewFromInt(int64(rate))
}

func linePath(index int, field string) string {
	return fmt.Sprintf("lineItems[%d].%s", index, field)
}
