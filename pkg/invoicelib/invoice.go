// Package invoicelib provides a public API for the German e-invoice
// engine.
//
// It exposes the core types and operations for parsing CII/UBL XML and
// ZUGFeRD PDF containers, validating invoices against business rules
// and GoBD, exporting DATEV batches and generating XRechnung documents.
//
// Example usage:
//
//	p := invoicelib.NewProcessor()
//	invoice, warnings, err := p.ParseXML(ctx, data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(invoice.Totals.GrossAmount)
package invoicelib

import "github.com/rezonia/xrechnung-engine/internal/model"

// Re-export core types for the public API
type (
	Invoice             = model.Invoice
	LineItem            = model.LineItem
	Party               = model.Party
	Payment             = model.Payment
	Totals              = model.Totals
	TaxBucket           = model.TaxBucket
	Flavor              = model.Flavor
	Direction           = model.Direction
	TaxRate             = model.TaxRate
	GoBDViolation       = model.GoBDViolation
	VATStatus           = model.VATStatus
	VATValidationResult = model.VATValidationResult
	FieldError          = model.FieldError
)

// Re-export dialect constants
const (
	FlavorCII     = model.FlavorCII
	FlavorUBL     = model.FlavorUBL
	FlavorUnknown = model.FlavorUnknown
)

// Re-export directions
const (
	DirectionIncoming = model.DirectionIncoming
	DirectionOutgoing = model.DirectionOutgoing
)

// Re-export German VAT rates
const (
	TaxRateZero     = model.TaxRateZero
	TaxRateReduced  = model.TaxRateReduced
	TaxRateStandard = model.TaxRateStandard
)

// Re-export error types
type (
	ParseError             = model.ParseError
	XMLValidationError     = model.XMLValidationError
	PDFExtractionError     = model.PDFExtractionError
	UnsupportedFormatError = model.UnsupportedFormatError
	GeneratorError         = model.GeneratorError
)
