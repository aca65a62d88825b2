// Package datev turns canonical invoices into DATEV Buchungsstapel
// (EXTF) CSV batches for accounting import.
package datev

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/model"
)

// AccountMapping binds invoice directions and tax rates to chart-of-
// accounts positions and DATEV tax keys.
type AccountMapping struct {
	// KontoEingangsrechnung is debited for incoming invoices.
	KontoEingangsrechnung string `json:"konto_eingangsrechnung"`
	// KontoAusgangsrechnung is credited for outgoing invoices.
	KontoAusgangsrechnung string `json:"konto_ausgangsrechnung"`
	// Gegenkonto is the counter account for both directions.
	Gegenkonto string `json:"gegenkonto"`

	SteuerschluesselStandard   string `json:"steuerschluessel_standard"`
	SteuerschluesselErmaessigt string `json:"steuerschluessel_ermaessigt"`
	SteuerschluesselSteuerfrei string `json:"steuerschluessel_steuerfrei"`

	Kostenstelle  string `json:"kostenstelle,omitempty"`
	Kostentraeger string `json:"kostentraeger,omitempty"`
}

// DefaultAccountMapping returns an SKR03-flavored mapping: expense
// account 3400, revenue account 8400, bank counter account 1200,
// input-tax keys 9/8 and 0 for tax-free postings.
func DefaultAccountMapping() AccountMapping {
	return AccountMapping{
		KontoEingangsrechnung:      "3400",
		KontoAusgangsrechnung:      "8400",
		Gegenkonto:                 "1200",
		SteuerschluesselStandard:   "9",
		SteuerschluesselErmaessigt: "8",
		SteuerschluesselSteuerfrei: "0",
	}
}

// HeaderConfig carries the EXTF header fields of a Buchungsstapel.
type HeaderConfig struct {
	Beraternummer           string    `json:"beraternummer"`
	Mandantennummer         string    `json:"mandantennummer"`
	Wirtschaftsjahresbeginn time.Time `json:"wirtschaftsjahresbeginn"`
	// Sachkontenlaenge is the account number length, typically 4.
	Sachkontenlaenge int       `json:"sachkontenlaenge"`
	DateFrom         time.Time `json:"date_from"`
	DateTo           time.Time `json:"date_to"`
	// Encoding selects the output charset: "utf-8" (with BOM, default)
	// or "cp1252".
	Encoding string `json:"encoding,omitempty"`
	// CreatedAt is stamped into the header row. Callers set it
	// explicitly so repeated exports of the same batch stay
	// byte-identical.
	CreatedAt time.Time `json:"created_at"`
	// Bezeichnung labels the batch inside DATEV.
	Bezeichnung string `json:"bezeichnung,omitempty"`
}

// DatevEntry is one posting row. Entries are transient: they exist only
// between mapping and serialization.
type DatevEntry struct {
	PostingDate    time.Time
	Amount         decimal.Decimal
	DebitCredit    string
	Account        string
	CounterAccount string
	TaxKey         string
	DocumentNumber string
	Description    string
	CostCenter     string
	CostUnit       string
	Currency       string
}

// taxKeyForRate picks the DATEV tax key for a rate. Rates outside
// {0, 7, 19} fall back to no tax key; the strict export gate rejects
// such invoices beforehand, so this path only matters for previews.
func taxKeyForRate(mapping AccountMapping, rate model.TaxRate) string {
	switch rate {
	case model.TaxRateStandard:
		return mapping.SteuerschluesselStandard
	case model.TaxRateReduced:
		return mapping.SteuerschluesselErmaessigt
	case model.TaxRateZero:
		return mapping.SteuerschluesselSteuerfrei
	default:
		return ""
	}
}

// MapInvoiceToEntries converts one invoice into posting entries.
// Incoming invoices debit the expense account, outgoing invoices credit
// the revenue account. In simple mode the invoice yields one entry per
// tax rate (one or two for typical invoices); in detailed mode one per
// line item.
func MapInvoiceToEntries(inv *model.Invoice, mapping AccountMapping, detailed bool) []DatevEntry {
	base := DatevEntry{
		PostingDate:    inv.IssueDate,
		DocumentNumber: inv.DocumentID,
		CostCenter:     mapping.Kostenstelle,
		CostUnit:       mapping.Kostentraeger,
		Currency:       inv.Currency,
	}
	if inv.Direction == model.DirectionOutgoing {
		base.DebitCredit = "H"
		base.Account = mapping.KontoAusgangsrechnung
	} else {
		base.DebitCredit = "S"
		base.Account = mapping.KontoEingangsrechnung
	}
	base.CounterAccount = mapping.Gegenkonto

	if detailed {
		entries := make([]DatevEntry, 0, len(inv.Items))
		for _, item := range inv.Items {
			e := base
			e.Amount = item.GrossAmount
			e.TaxKey = taxKeyForRate(mapping, item.TaxRate)
			e.Description = item.Description
			entries = append(entries, e)
		}
		return entries
	}

	counterparty := inv.Seller.Name
	if inv.Direction == model.DirectionOutgoing {
		counterparty = inv.Buyer.Name
	}
	description := fmt.Sprintf("Rechnung %s %s", inv.DocumentID, counterparty)

	if len(inv.TaxBreakdown) == 0 {
		e := base
		e.Amount = inv.Totals.GrossAmount
		e.TaxKey = taxKeyForRate(mapping, model.TaxRateZero)
		e.Description = description
		return []DatevEntry{e}
	}

	entries := make([]DatevEntry, 0, len(inv.TaxBreakdown))
	for _, bucket := range inv.TaxBreakdown {
		e := base
		e.Amount = bucket.TaxableAmount.Add(bucket.TaxAmount)
		e.TaxKey = taxKeyForRate(mapping, bucket.Rate)
		e.Description = description
		entries = append(entries, e)
	}
	return entries
}

var accountRe = regexp.MustCompile(`^\d{1,9}$`)

// validateEntries checks structural constraints before serialization.
// Any defect aborts the export; there is no partial output.
func validateEntries(entries []DatevEntry, cfg HeaderConfig) []model.FieldError {
	var errs []model.FieldError
	fail := func(i int, field, message string) {
		errs = append(errs, model.FieldError{
			Path:    fmt.Sprintf("entries[%d].%s", i, field),
			Message: message,
		})
	}
	for i, e := range entries {
		if !e.Amount.IsPositive() {
			fail(i, "amount", fmt.Sprintf("posting amount must be positive, got %s", e.Amount.StringFixed(2)))
		}
		if !accountRe.MatchString(e.Account) {
			fail(i, "account", fmt.Sprintf("account %q is not numeric", e.Account))
		}
		if !accountRe.MatchString(e.CounterAccount) {
			fail(i, "counterAccount", fmt.Sprintf("counter account %q is not numeric", e.CounterAccount))
		}
		if e.DocumentNumber == "" {
			fail(i, "documentNumber", "document number is required")
		}
		if e.PostingDate.IsZero() {
			fail(i, "postingDate", "posting date is required")
			continue
		}
		if !cfg.DateFrom.IsZero() && e.PostingDate.Before(cfg.DateFrom) {
			fail(i, "postingDate", fmt.Sprintf("posting date %s is before the batch period", e.PostingDate.Format("2006-01-02")))
		}
		if !cfg.DateTo.IsZero() && e.PostingDate.After(cfg.DateTo) {
			fail(i, "postingDate", fmt.Sprintf("posting date %s is after the batch period", e.PostingDate.Format("2006-01-02")))
		}
	}
	return errs
}
