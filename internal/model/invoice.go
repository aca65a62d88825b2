package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Flavor identifies the source XML dialect of an invoice.
type Flavor string

const (
	FlavorCII     Flavor = "CII"
	FlavorUBL     Flavor = "UBL"
	FlavorUnknown Flavor = "UNKNOWN"
)

// Direction distinguishes received from issued invoices. It drives the
// debit/credit side of DATEV postings.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// TaxRate represents the German VAT rates an invoice line may carry.
type TaxRate int

const (
	TaxRateZero     TaxRate = 0
	TaxRateReduced  TaxRate = 7
	TaxRateStandard TaxRate = 19
)

// Document type codes per UNTDID 1001.
const (
	TypeCodeInvoice    = "380"
	TypeCodeCreditNote = "381"
)

// Invoice is the canonical invoice model every dialect is normalized into.
type Invoice struct {
	// Header
	DocumentID       string     `json:"document_id"`
	DocumentTypeCode string     `json:"document_type_code"` // UNTDID 1001, "380" invoice
	IssueDate        time.Time  `json:"issue_date"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Currency         string     `json:"currency"` // ISO 4217

	// Parties
	Seller Party `json:"seller"`
	Buyer  Party `json:"buyer"`

	// Payment
	Payment Payment `json:"payment"`

	// Line items
	Items []LineItem `json:"items"`

	// Totals
	Totals Totals `json:"totals"`

	// Per-rate tax buckets
	TaxBreakdown []TaxBucket `json:"tax_breakdown,omitempty"`

	// Direction is set by the caller; parsers leave it at incoming.
	Direction Direction `json:"direction,omitempty"`

	// Metadata
	Flavor     Flavor `json:"flavor,omitempty"`
	RawXML     []byte `json:"-"` // Original XML for audit
	SourceFile string `json:"source_file,omitempty"`
}

// Party represents seller or buyer
type Party struct {
	Name        string `json:"name"`
	Street      string `json:"street"`
	PostCode    string `json:"post_code"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"` // ISO 3166-1 alpha-2
	VATID       string `json:"vat_id,omitempty"`
	TaxNumber   string `json:"tax_number,omitempty"` // national Steuernummer
}

// Payment holds payment means and account details.
type Payment struct {
	Means string `json:"means,omitempty"` // UNTDID 4461, e.g. "58" SEPA credit transfer
	IBAN  string `json:"iban,omitempty"`
	BIC   string `json:"bic,omitempty"`
	Terms string `json:"terms,omitempty"`
}

// LineItem represents one invoice position. Amounts are signed: credit
// notes carry negative values.
type LineItem struct {
	Position    int             `json:"position"` // 1-based
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"` // UN/ECE rec 20, e.g. "C62"
	UnitPrice   decimal.Decimal `json:"unit_price"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	TaxRate     TaxRate         `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

// Totals holds the document level monetary summation.
type Totals struct {
	NetAmount   decimal.Decimal `json:"net_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

// TaxBucket aggregates all lines of one tax rate.
type TaxBucket struct {
	Rate          TaxRate         `json:"rate"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
}

// Calculate computes the derived line amounts from quantity and unit price.
func (li *LineItem) Calculate() {
	li.NetAmount = li.Quantity.Mul(li.UnitPrice).Round(2)
	li.TaxAmount = li.NetAmount.Mul(decimal.NewFromInt(int64(li.TaxRate))).Div(decimal.NewFromInt(100)).Round(2)
	li.GrossAmount = li.NetAmount.Add(li.TaxAmount).Round(2)
}

// ComputeTotals recomputes totals and the tax breakdown from line items.
// Buckets are ordered by ascending rate so repeated runs are deterministic.
func (inv *Invoice) ComputeTotals() {
	net := decimal.Zero
	tax := decimal.Zero
	buckets := map[TaxRate]*TaxBucket{}

	for i := range inv.Items {
		item := &inv.Items[i]
		net = net.Add(item.NetAmount)
		tax = tax.Add(item.TaxAmount)

		b, ok := buckets[item.TaxRate]
		if !ok {
			b = &TaxBucket{Rate: item.TaxRate}
			buckets[item.TaxRate] = b
		}
		b.TaxableAmount = b.TaxableAmount.Add(item.NetAmount)
		b.TaxAmount = b.TaxAmount.Add(item.TaxAmount)
	}

	inv.Totals = Totals{
		NetAmount:   net.Round(2),
		TaxAmount:   tax.Round(2),
		GrossAmount: net.Add(tax).Round(2),
	}

	inv.TaxBreakdown = inv.TaxBreakdown[:0]
	for _, rate := range []TaxRate{TaxRateZero, TaxRateReduced, TaxRateStandard} {
		if b, ok := buckets[rate]; ok {
			b.TaxableAmount = b.TaxableAmount.Round(2)
			b.TaxAmount = b.TaxAmount.Round(2)
			inv.TaxBreakdown = append(inv.TaxBreakdown, *b)
			delete(buckets, rate)
		}
	}
	// Non-standard rates survive the recompute; the GoBD validator flags them.
	leftover := make([]TaxRate, 0, len(buckets))
	for rate := range buckets {
		leftover = append(leftover, rate)
	}
	sort.Slice(leftover, func(i, j int) bool { return leftover[i] < leftover[j] })
	for _, rate := range leftover {
		b := buckets[rate]
		b.TaxableAmount = b.TaxableAmount.Round(2)
		b.TaxAmount = b.TaxAmount.Round(2)
		inv.TaxBreakdown = append(inv.TaxBreakdown, *b)
	}
}

// IsCreditNote reports whether the document is a credit note (type 381).
func (inv *Invoice) IsCreditNote() bool {
	return inv.DocumentTypeCode == TypeCodeCreditNote
}

// GoBDViolation describes one failed compliance rule. Warnings share the
// shape; severity is implied by which list they appear in.
type GoBDViolation struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// VATStatus is the outcome class of a VAT-ID check.
type VATStatus string

const (
	VATStatusValid       VATStatus = "valid"
	VATStatusInvalid     VATStatus = "invalid"
	VATStatusUnavailable VATStatus = "unavailable"
	VATStatusUnverified  VATStatus = "unverified"
)

// VATValidationResult is the advisory outcome of a VAT-ID check. It is
// always produced, never an error: remote failures degrade to unavailable.
type VATValidationResult struct {
	Status      VATStatus `json:"status"`
	Reason      string    `json:"reason"`
	Message     string    `json:"message"`
	CountryCode string    `json:"country_code,omitempty"`
	VATNumber   string    `json:"vat_number,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}
