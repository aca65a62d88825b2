// Package pdf extracts the embedded invoice XML from ZUGFeRD/Factur-X
// PDF/A-3 containers.
package pdf

import (
	"bytes"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/rezonia/xrechnung-engine/internal/model"
)

var pdfMagic = []byte("%PDF-")

// attachmentNames are the embedded-file names the ZUGFeRD and Factur-X
// specifications allow, in probe order.
var attachmentNames = []string{
	"factur-x.xml",
	"zugferd-invoice.xml",
	"ZUGFeRD-invoice.xml",
	"xrechnung.xml",
}

// Extractor pulls embedded XML attachments out of PDF containers.
type Extractor struct {
	conf *pdfcpu.Configuration
}

// NewExtractor creates a new extractor with relaxed validation, since
// real-world ZUGFeRD PDFs frequently bend the PDF/A-3 rules.
func NewExtractor() *Extractor {
	conf := pdfcpu.NewDefaultConfiguration()
	conf.ValidationMode = pdfcpu.ValidationRelaxed
	return &Extractor{conf: conf}
}

// ExtractEmbeddedXML locates an embedded invoice XML attachment and
// returns its content and file name. It fails with a PDFExtractionError
// when the buffer is not a PDF or carries no matching attachment.
func (e *Extractor) ExtractEmbeddedXML(pdfBytes []byte) ([]byte, string, error) {
	if !bytes.HasPrefix(pdfBytes, pdfMagic) {
		return nil, "", model.NewPDFExtractionError("buffer is not a PDF document", nil)
	}

	rs := bytes.NewReader(pdfBytes)
	attachments, err := api.Attachments(rs, e.conf)
	if err != nil {
		return nil, "", model.NewPDFExtractionError("failed to read PDF attachments", err)
	}

	id, name := matchAttachment(attachments)
	if id == "" {
		return nil, "", model.NewPDFExtractionError("no embedded invoice XML found", nil)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, "", model.NewPDFExtractionError("failed to rewind PDF buffer", err)
	}

	extracted, err := api.ExtractAttachmentsRaw(rs, "", []string{id}, e.conf)
	if err != nil {
		return nil, "", model.NewPDFExtractionError("failed to extract attachment "+name, err)
	}
	if len(extracted) == 0 {
		return nil, "", model.NewPDFExtractionError("attachment "+name+" vanished during extraction", nil)
	}

	content, err := io.ReadAll(extracted[0].Reader)
	if err != nil {
		return nil, "", model.NewPDFExtractionError("failed to read attachment "+name, err)
	}

	return content, name, nil
}

// IsZugferdPDF probes for an embedded invoice XML without failing.
func (e *Extractor) IsZugferdPDF(pdfBytes []byte) bool {
	if !bytes.HasPrefix(pdfBytes, pdfMagic) {
		return false
	}
	attachments, err := api.Attachments(bytes.NewReader(pdfBytes), e.conf)
	if err != nil {
		return false
	}
	id, _ := matchAttachment(attachments)
	return id != ""
}

// matchAttachment picks the first known invoice attachment from the
// listing. Extraction addresses attachments by their name tree key, so
// the ID is returned alongside the display name. Some producers fill
// only one of the two.
func matchAttachment(listed []pdfcpu.Attachment) (id, name string) {
	for _, want := range attachmentNames {
		for _, a := range listed {
			have := a.FileName
			if have == "" {
				have = a.ID
			}
			if strings.EqualFold(have, want) {
				return a.ID, have
			}
		}
	}
	return "", ""
}

// Package-level convenience funcs backed by one shared extractor; the
// extractor holds no mutable state, so this is safe for concurrent use.
var defaultExtractor = NewExtractor()

// ExtractEmbeddedXML extracts the embedded invoice XML with default settings.
func ExtractEmbeddedXML(pdfBytes []byte) ([]byte, string, error) {
	return defaultExtractor.ExtractEmbeddedXML(pdfBytes)
}

// IsZugferdPDF probes with default settings.
func IsZugferdPDF(pdfBytes []byte) bool {
	return defaultExtractor.IsZugferdPDF(pdfBytes)
}
