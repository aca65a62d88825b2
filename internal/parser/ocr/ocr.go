// Package ocr normalizes the loosely-typed JSON an external OCR/vision
// service emits into canonical invoice fields. Input shape is never
// trusted: every field is runtime-checked and defects are collected into
// a result envelope instead of failing the whole document.
package ocr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/parser"
)

// DefaultCurrency is assumed when the OCR output carries none.
const DefaultCurrency = "EUR"

// Source formats the OCR service reports.
const (
	FormatXRechnung = "XRECHNUNG"
	FormatZugferd   = "ZUGFERD"
	FormatScan      = "SCAN"
	FormatUnknown   = "UNKNOWN"
)

var knownFormats = map[string]bool{
	FormatXRechnung: true,
	FormatZugferd:   true,
	FormatScan:      true,
	FormatUnknown:   true,
}

var currencyRe = regexp.MustCompile(`^[A-Za-z]{3}$`)

// Fields holds the normalized header-level values. Pointer fields are nil
// when the OCR output did not carry them.
type Fields struct {
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	IssueDate     *time.Time       `json:"issue_date,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	SellerName    string           `json:"seller_name,omitempty"`
	SellerVATID   string           `json:"seller_vat_id,omitempty"`
	BuyerName     string           `json:"buyer_name,omitempty"`
	IBAN          string           `json:"iban,omitempty"`
	NetAmount     *decimal.Decimal `json:"net_amount,omitempty"`
	TaxAmount     *decimal.Decimal `json:"tax_amount,omitempty"`
	GrossAmount   *decimal.Decimal `json:"gross_amount,omitempty"`
}

// Result is the normalization envelope.
type Result struct {
	Success  bool               `json:"success"`
	Fields   Fields             `json:"invoice_fields"`
	Items    []model.LineItem   `json:"line_items"`
	Currency string             `json:"currency"`
	Format   string             `json:"format"`
	Errors   []model.FieldError `json:"errors,omitempty"`
}

// ParseInvoiceData normalizes raw OCR JSON bytes.
func ParseInvoiceData(raw []byte) Result {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Result{
			Success: false,
			Errors:  []model.FieldError{{Path: "$", Message: "invalid JSON: " + err.Error()}},
		}
	}
	return ParseInvoiceMap(doc)
}

// ParseInvoiceMap normalizes an already-decoded OCR document.
func ParseInvoiceMap(doc map[string]any) Result {
	result := Result{
		Success:  true,
		Currency: DefaultCurrency,
		Format:   FormatUnknown,
		Items:    []model.LineItem{},
	}
	fail := func(path, message string) {
		result.Success = false
		result.Errors = append(result.Errors, model.FieldError{Path: path, Message: message})
	}

	if doc == nil {
		fail("$", "document is null")
		return result
	}

	if v, ok := doc["currency"]; ok {
		s, ok := v.(string)
		if !ok || !currencyRe.MatchString(s) {
			fail("$.currency", fmt.Sprintf("currency must be a 3-letter code, got %v", v))
		} else {
			result.Currency = strings.ToUpper(s)
		}
	}

	if v, ok := doc["format"]; ok {
		s, _ := v.(string)
		if !knownFormats[s] {
			fail("$.format", fmt.Sprintf("unknown format %v", v))
		} else {
			result.Format = s
		}
	}

	fields, _ := doc["invoiceFields"].(map[string]any)
	if fields == nil {
		// Some OCR payloads flatten the fields to the top level.
		fields = doc
	}

	result.Fields.InvoiceNumber = stringField(fields, "invoiceNumber")
	result.Fields.SellerName = stringField(fields, "sellerName")
	result.Fields.SellerVATID = stringField(fields, "sellerVatId")
	result.Fields.BuyerName = stringField(fields, "buyerName")
	result.Fields.IBAN = stringField(fields, "iban")

	result.Fields.IssueDate = dateField(fields, "invoiceDate", "$.invoiceFields.invoiceDate", fail)
	result.Fields.DueDate = dateField(fields, "dueDate", "$.invoiceFields.dueDate", fail)

	result.Fields.NetAmount = amountField(fields, "netAmount", "$.invoiceFields.netAmount", fail)
	result.Fields.TaxAmount = amountField(fields, "taxAmount", "$.invoiceFields.taxAmount", fail)
	result.Fields.GrossAmount = amountField(fields, "grossAmount", "$.invoiceFields.grossAmount", fail)
	if result.Fields.GrossAmount == nil {
		result.Fields.GrossAmount = amountField(fields, "total", "$.invoiceFields.total", fail)
	}

	if rawItems, ok := doc["lineItems"]; ok {
		items, ok := rawItems.([]any)
		if !ok {
			fail("$.lineItems", "lineItems must be a list")
		} else {
			for i, rawItem := range items {
				entry, ok := rawItem.(map[string]any)
				if !ok {
					fail(fmt.Sprintf("$.lineItems[%d]", i), "line item must be an object")
					continue
				}
				result.Items = append(result.Items, convertItem(entry, i, fail))
			}
		}
	}

	return result
}

// ToInvoice assembles a canonical invoice from the normalized fields.
func (r Result) ToInvoice() *model.Invoice {
	inv := &model.Invoice{
		DocumentID:       r.Fields.InvoiceNumber,
		DocumentTypeCode: model.TypeCodeInvoice,
		Currency:         r.Currency,
		Direction:        model.DirectionIncoming,
		Items:            r.Items,
		Seller:           model.Party{Name: r.Fields.SellerName, VATID: r.Fields.SellerVATID},
		Buyer:            model.Party{Name: r.Fields.BuyerName},
		Payment:          model.Payment{IBAN: r.Fields.IBAN},
	}
	if r.Fields.IssueDate != nil {
		inv.IssueDate = *r.Fields.IssueDate
	}
	inv.DueDate = r.Fields.DueDate
	if r.Fields.NetAmount != nil {
		inv.Totals.NetAmount = *r.Fields.NetAmount
	}
	if r.Fields.TaxAmount != nil {
		inv.Totals.TaxAmount = *r.Fields.TaxAmount
	}
	if r.Fields.GrossAmount != nil {
		inv.Totals.GrossAmount = *r.Fields.GrossAmount
	}
	return inv
}

func convertItem(entry map[string]any, index int, fail func(path, message string)) model.LineItem {
	path := func(field string) string {
		return fmt.Sprintf("$.lineItems[%d].%s", index, field)
	}

	item := model.LineItem{
		Position:    index + 1,
		Description: stringField(entry, "description"),
		Unit:        stringField(entry, "unit"),
	}

	if v := amountField(entry, "quantity", path("quantity"), fail); v != nil {
		item.Quantity = *v
	}
	if v := amountField(entry, "unitPrice", path("unitPrice"), fail); v != nil {
		item.UnitPrice = *v
	}
	if v := amountField(entry, "netAmount", path("netAmount"), fail); v != nil {
		item.NetAmount = *v
	}
	if v := amountField(entry, "taxAmount", path("taxAmount"), fail); v != nil {
		item.TaxAmount = *v
	}

	// "total" and "grossAmount" both map to the canonical gross amount.
	gross := amountField(entry, "grossAmount", path("grossAmount"), fail)
	if gross == nil {
		gross = amountField(entry, "total", path("total"), fail)
	}
	if gross != nil {
		item.GrossAmount = *gross
	}

	if v, ok := entry["taxRate"]; ok {
		switch rate := v.(type) {
		case float64:
			item.TaxRate = model.TaxRate(int(rate))
		case string:
			if d, err := parser.ParseAmount(rate); err == nil {
				item.TaxRate = model.TaxRate(d.IntPart())
			} else {
				fail(path("taxRate"), err.Error())
			}
		default:
			fail(path("taxRate"), fmt.Sprintf("unexpected type %T", v))
		}
	}

	return item
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func dateField(m map[string]any, key, path string, fail func(path, message string)) *time.Time {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		fail(path, fmt.Sprintf("expected date string, got %T", v))
		return nil
	}
	if s == "" {
		return nil
	}
	t, err := parser.ParseDate(s)
	if err != nil {
		fail(path, err.Error())
		return nil
	}
	return &t
}

func amountField(m map[string]any, key, path string, fail func(path, message string)) *decimal.Decimal {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	switch amount := v.(type) {
	case float64:
		d := decimal.NewFromFloat(amount)
		return &d
	case string:
		if amount == "" {
			return nil
		}
		d, err := parser.ParseAmount(amount)
		if err != nil {
			fail(path, err.Error())
			return nil
		}
		return &d
	case json.Number:
		d, err := decimal.NewFromString(amount.String())
		if err != nil {
			fail(path, err.Error())
			return nil
		}
		return &d
	default:
		fail(path, fmt.Sprintf("expected number or string, got %T", v))
		return nil
	}
}
