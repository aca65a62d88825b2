package datev

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/model"
)

// DirectionTotals splits a batch side into net, tax and gross sums.
type DirectionTotals struct {
	Count      int             `json:"count"`
	NetTotal   decimal.Decimal `json:"net_total"`
	TaxTotal   decimal.Decimal `json:"tax_total"`
	GrossTotal decimal.Decimal `json:"gross_total"`
}

// Summary describes what an export run would produce, without the
// compliance gate and without serializing anything.
type Summary struct {
	InvoiceCount int             `json:"invoice_count"`
	EntryCount   int             `json:"entry_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	DateFrom     time.Time       `json:"date_from,omitempty"`
	DateTo       time.Time       `json:"date_to,omitempty"`
	Incoming     DirectionTotals `json:"incoming"`
	Outgoing     DirectionTotals `json:"outgoing"`
}

// PreviewExport maps the invoices read-only and aggregates the batch.
func PreviewExport(invoices []*model.Invoice, opts Options) Summary {
	if opts.Mapping == (AccountMapping{}) {
		opts.Mapping = DefaultAccountMapping()
	}

	summary := Summary{InvoiceCount: len(invoices)}
	for _, inv := range invoices {
		entries := MapInvoiceToEntries(inv, opts.Mapping, opts.Detailed)
		summary.EntryCount += len(entries)
		for _, e := range entries {
			summary.TotalAmount = summary.TotalAmount.Add(e.Amount)
			if summary.DateFrom.IsZero() || e.PostingDate.Before(summary.DateFrom) {
				summary.DateFrom = e.PostingDate
			}
			if e.PostingDate.After(summary.DateTo) {
				summary.DateTo = e.PostingDate
			}
		}

		side := &summary.Incoming
		if inv.Direction == model.DirectionOutgoing {
			side = &summary.Outgoing
		}
		side.Count++
		side.NetTotal = side.NetTotal.Add(inv.Totals.NetAmount)
		side.TaxTotal = side.TaxTotal.Add(inv.Totals.TaxAmount)
		side.GrossTotal = side.GrossTotal.Add(inv.Totals.GrossAmount)
	}
	return summary
}
