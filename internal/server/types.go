package server

import (
	"time"

	"github.com/rezonia/xrechnung-engine/internal/datev"
	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/validate"
)

// ParseResponse is the response for parse endpoints.
type ParseResponse struct {
	Invoice  *model.Invoice `json:"invoice"`
	Flavor   string         `json:"flavor,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// DetectResponse is the response for the detect endpoint.
type DetectResponse struct {
	Flavor  string `json:"flavor"`
	Version string `json:"version,omitempty"`
	Zugferd bool   `json:"zugferd"`
}

// ValidationResponse is the response for the validate endpoint.
type ValidationResponse struct {
	Valid      bool                      `json:"valid"`
	Issues     []validate.Issue          `json:"issues,omitempty"`
	Compliance validate.ComplianceResult `json:"gobd"`
}

// VATCheckRequest is the body for the VAT check endpoint.
type VATCheckRequest struct {
	VATID string `json:"vat_id"`
}

// DatevExportRequest is the body for the DATEV export endpoints.
type DatevExportRequest struct {
	Invoices []*model.Invoice      `json:"invoices"`
	Format   string                `json:"format,omitempty"`
	Detailed bool                  `json:"detailed,omitempty"`
	Config   datev.HeaderConfig    `json:"config,omitempty"`
	Mapping  *datev.AccountMapping `json:"mapping,omitempty"`
	Filename string                `json:"filename,omitempty"`
}

// DatevExportResponse wraps a successful export; the CSV travels
// base64-encoded.
type DatevExportResponse struct {
	Success    bool               `json:"success"`
	Filename   string             `json:"filename,omitempty"`
	Content    string             `json:"content,omitempty"`
	EntryCount int                `json:"entry_count"`
	Errors     []model.FieldError `json:"errors,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Details  string   `json:"details,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}
