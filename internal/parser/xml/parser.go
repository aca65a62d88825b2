package xml

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/parser/pdf"
)

// Options controls dialect parsing behavior.
type Options struct {
	// Strict turns completeness warnings into a hard parse error.
	Strict bool
	// Validate runs the completeness checks after parsing. Defaults to
	// true via DefaultOptions.
	Validate bool
}

// DefaultOptions returns the default parse options
func DefaultOptions() Options {
	return Options{Strict: false, Validate: true}
}

// Parse detects the dialect of an XRechnung document (CII first, then
// UBL) and parses it into the canonical invoice. Unknown content yields
// an UnsupportedFormatError; a malformed document of the winning dialect
// yields an XMLValidationError. Completeness findings are returned as
// warnings, or as a ParseError when opts.Strict is set.
func Parse(ctx context.Context, content []byte, opts Options) (*model.Invoice, []string, error) {
	registry := NewRegistry()
	adapter, err := registry.Detect(content)
	if err != nil {
		return nil, nil, err
	}

	result, err := adapter.Parse(ctx, bytes.NewReader(content))
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	for _, fe := range result.Errors {
		warnings = append(warnings, fe.Error())
	}

	if opts.Validate {
		for _, issue := range completenessIssues(result.Invoice) {
			warnings = append(warnings, issue)
		}
		if opts.Strict && len(warnings) > 0 {
			return nil, warnings, model.NewParseError(adapter.Flavor(), "document",
				fmt.Sprintf("strict validation failed: %s", warnings[0]), nil)
		}
	}

	return result.Invoice, warnings, nil
}

// ParseZugferd extracts the embedded XML from a ZUGFeRD/Factur-X PDF and
// parses it like any XRechnung document. A non-conforming container
// yields a PDFExtractionError.
func ParseZugferd(ctx context.Context, pdfBytes []byte, opts Options) (*model.Invoice, []string, error) {
	content, _, err := pdf.ExtractEmbeddedXML(pdfBytes)
	if err != nil {
		return nil, nil, err
	}
	return Parse(ctx, content, opts)
}

// completenessIssues lists the fields a complete e-invoice must carry.
// These are parse-level checks; business arithmetic and GoBD rules live
// in the validate package.
func completenessIssues(inv *model.Invoice) []string {
	var issues []string

	if inv.DocumentID == "" {
		issues = append(issues, "documentId: missing invoice number")
	}
	if inv.IssueDate.IsZero() {
		issues = append(issues, "issueDate: missing or unparsable issue date")
	}
	if inv.Seller.Name == "" {
		issues = append(issues, "seller.name: missing seller name")
	}
	if inv.Buyer.Name == "" {
		issues = append(issues, "buyer.name: missing buyer name")
	}
	if inv.Currency == "" {
		issues = append(issues, "currency: missing currency code")
	}
	if len(inv.Items) == 0 {
		issues = append(issues, "lineItems: no line items present")
	}
	if inv.Totals.GrossAmount.IsZero() && inv.Totals.NetAmount.IsZero() {
		issues = append(issues, "totals: missing monetary summation")
	}

	return issues
}
