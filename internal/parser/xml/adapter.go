package xml

import (
	"bytes"
	"context"
	"io"
	"regexp"

	"github.com/rezonia/xrechnung-engine/internal/model"
)

// ParseResult is the envelope every dialect adapter returns. Missing but
// optional data is reported in Errors without failing the parse; only
// structurally broken XML surfaces as a hard error.
type ParseResult struct {
	Success bool
	Invoice *model.Invoice
	Errors  []model.FieldError
}

// Adapter parses dialect-specific XML into the canonical invoice
type Adapter interface {
	// Parse parses XML content into the canonical invoice
	Parse(ctx context.Context, r io.Reader) (*ParseResult, error)

	// CanParse returns true if adapter can handle this content
	CanParse(content []byte) bool

	// Flavor returns the dialect
	Flavor() model.Flavor
}

// Registry holds all registered adapters
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates registry with all adapters.
// The dialect set is closed: CII and UBL are the formats the legal
// standards serve, sniffed in that order.
func NewRegistry() *Registry {
	return &Registry{
		adapters: []Adapter{
			NewCIIAdapter(),
			NewUBLAdapter(),
		},
	}
}

// Detect identifies the dialect adapter for the given XML content
func (r *Registry) Detect(content []byte) (Adapter, error) {
	for _, a := range r.adapters {
		if a.CanParse(content) {
			return a, nil
		}
	}
	return nil, model.NewUnsupportedFormatError("neither CII nor UBL markers found")
}

// GetAdapter returns adapter for a specific flavor
func (r *Registry) GetAdapter(flavor model.Flavor) Adapter {
	for _, a := range r.adapters {
		if a.Flavor() == flavor {
			return a
		}
	}
	return nil
}

// Detection is the outcome of dialect sniffing.
type Detection struct {
	Flavor  model.Flavor `json:"flavor"`
	Version string       `json:"version,omitempty"`
}

var (
	ciiNamespace  = []byte("urn:un:unece:uncefact:data:standard:CrossIndustryInvoice")
	ciiRoot       = []byte("CrossIndustryInvoice")
	ublNamespace  = []byte("urn:oasis:names:specification:ubl")
	ublVersionRe  = regexp.MustCompile(`<cbc:UBLVersionID>\s*([0-9.]+)\s*<`)
	ciiVersionRe  = regexp.MustCompile(`CrossIndustryInvoice:(\d+)`)
	ublInvoiceTag = []byte("<Invoice")
)

// DetectFlavor classifies raw XML as CII, UBL or unknown. It never fails:
// unrecognized content yields FlavorUnknown.
func DetectFlavor(content []byte) Detection {
	if bytes.Contains(content, ciiNamespace) || bytes.Contains(content, ciiRoot) {
		d := Detection{Flavor: model.FlavorCII}
		if m := ciiVersionRe.FindSubmatch(content); m != nil {
			d.Version = string(m[1])
		}
		return d
	}

	hasUBLMarkers := bytes.Contains(content, ublNamespace) ||
		(bytes.Contains(content, []byte("cbc:")) && bytes.Contains(content, []byte("cac:")))
	if hasUBLMarkers && (bytes.Contains(content, ublInvoiceTag) || bytes.Contains(content, []byte(":Invoice"))) {
		d := Detection{Flavor: model.FlavorUBL}
		if m := ublVersionRe.FindSubmatch(content); m != nil {
			d.Version = string(m[1])
		}
		return d
	}

	return Detection{Flavor: model.FlavorUnknown}
}
