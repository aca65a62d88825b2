package invoicelib

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/datev"
	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/parser/ocr"
	"github.com/rezonia/xrechnung-engine/internal/parser/pdf"
	xmlparser "github.com/rezonia/xrechnung-engine/internal/parser/xml"
	"github.com/rezonia/xrechnung-engine/internal/validate"
	"github.com/rezonia/xrechnung-engine/internal/vat"
	"github.com/rezonia/xrechnung-engine/internal/xrechnung"
)

// Re-export the DATEV configuration surface
type (
	AccountMapping = datev.AccountMapping
	HeaderConfig   = datev.HeaderConfig
	ExportOptions  = datev.Options
	ExportResult   = datev.Result
	ExportSummary  = datev.Summary
)

// ViesConfig configures the VIES VAT check.
type ViesConfig = vat.Config

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithStrictParsing turns completeness warnings into parse errors.
func WithStrictParsing() ProcessorOption {
	return func(p *Processor) {
		p.parseOpts.Strict = true
	}
}

// WithViesConfig enables and configures the remote VAT check.
func WithViesConfig(cfg ViesConfig) ProcessorOption {
	return func(p *Processor) {
		p.vies = vat.New(cfg)
	}
}

// WithGoBDTolerance overrides the sum tolerance of the compliance
// checks, both standalone and in the DATEV export gate.
func WithGoBDTolerance(tolerance float64) ProcessorOption {
	return func(p *Processor) {
		p.tolerance = decimal.NewFromFloat(tolerance)
	}
}

// Processor is the high-level entry point covering the whole pipeline:
// parse, validate, export. The zero-configuration form parses leniently
// and keeps VIES disabled.
type Processor struct {
	parseOpts xmlparser.Options
	generator *xrechnung.Generator
	vies      *vat.Validator
	tolerance decimal.Decimal
}

// NewProcessor creates a processor.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		parseOpts: xmlparser.DefaultOptions(),
		generator: xrechnung.NewGenerator(),
		vies:      vat.New(vat.Config{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseXML parses CII or UBL XML content.
func (p *Processor) ParseXML(ctx context.Context, content []byte) (*Invoice, []string, error) {
	return xmlparser.Parse(ctx, content, p.parseOpts)
}

// ParsePDF extracts and parses the invoice XML embedded in a
// ZUGFeRD/Factur-X PDF.
func (p *Processor) ParsePDF(ctx context.Context, pdfBytes []byte) (*Invoice, []string, error) {
	return xmlparser.ParseZugferd(ctx, pdfBytes, p.parseOpts)
}

// ParseOCR normalizes loosely typed OCR JSON into an invoice.
func (p *Processor) ParseOCR(raw []byte) ocr.Result {
	return ocr.ParseInvoiceData(raw)
}

// Detect classifies raw content: dialect for XML, ZUGFeRD flag for PDF.
func (p *Processor) Detect(content []byte) (Flavor, bool) {
	if pdf.IsZugferdPDF(content) {
		return model.FlavorUnknown, true
	}
	return xmlparser.DetectFlavor(content).Flavor, false
}

// Validate runs the cross-field business checks and the GoBD rules.
// Whether a non-compliant result blocks anything is up to the caller.
func (p *Processor) Validate(inv *Invoice) ([]validate.Issue, validate.ComplianceResult) {
	issues := validate.CheckBusinessRulesTolerance(inv, p.tolerance)
	compliance := validate.CheckCompliance(inv, validate.GoBDOptions{Tolerance: p.tolerance})
	return issues, compliance
}

// CheckVATID validates a VAT identifier, consulting VIES when enabled.
func (p *Processor) CheckVATID(ctx context.Context, raw string) VATValidationResult {
	return p.vies.ValidateVATID(ctx, raw)
}

// GenerateXRechnung renders the invoice as XRechnung 3.0 CII XML.
func (p *Processor) GenerateXRechnung(inv *Invoice) ([]byte, error) {
	return p.generator.Generate(inv)
}

// FormatDatev exports the invoices as a DATEV Buchungsstapel.
func (p *Processor) FormatDatev(invoices []*Invoice, opts ExportOptions) ExportResult {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = p.tolerance
	}
	return datev.FormatInvoices(invoices, opts)
}

// PreviewDatev reports what an export would produce without writing it.
func (p *Processor) PreviewDatev(invoices []*Invoice, opts ExportOptions) ExportSummary {
	return datev.PreviewExport(invoices, opts)
}
