package server_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/money"
	"github.com/rezonia/xrechnung-engine/internal/server"
	"github.com/rezonia/xrechnung-engine/internal/vat"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return server.NewServer(&server.Config{
		Address: "127.0.0.1:0",
		Vies:    vat.Config{Enabled: false},
	}).Handler()
}

func readTestFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func doRequest(t *testing.T, h http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func apiInvoice() *model.Invoice {
	due := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	inv := &model.Invoice{
		DocumentID:       "RE-2024-0815",
		DocumentTypeCode: model.TypeCodeInvoice,
		IssueDate:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DueDate:          &due,
		Currency:         "EUR",
		Seller:           model.Party{Name: "Schmidt Consulting GmbH", City: "Berlin", CountryCode: "DE", VATID: "DE123456789"},
		Buyer:            model.Party{Name: "Müller Handels AG", City: "München", CountryCode: "DE"},
		Items: []model.LineItem{
			{Position: 1, Description: "Beratungsleistung", Quantity: money.MustFromString("10"), Unit: "HUR", UnitPrice: money.MustFromString("50.00"), TaxRate: model.TaxRateStandard},
		},
		Direction: model.DirectionIncoming,
	}
	inv.Items[0].Calculate()
	inv.ComputeTotals()
	return inv
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp server.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestParseXML(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/xml",
		"application/xml", readTestFile(t, "cii_invoice.xml"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp server.ParseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Invoice)
	assert.Equal(t, "CII", resp.Flavor)
	assert.Equal(t, "RE-2024-0815", resp.Invoice.DocumentID)
	assert.Equal(t, "Schmidt Consulting GmbH", resp.Invoice.Seller.Name)
}

func TestParseXML_EmptyBody(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/xml", "application/xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseXML_UnsupportedFormat(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/xml",
		"application/xml", []byte(`<?xml version="1.0"?><SomethingElse/>`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp server.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "unsupported format")
}

func TestParseXML_MalformedXML(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/xml",
		"application/xml", []byte(`<rsm:CrossIndustryInvoice`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestParsePDF(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/pdf",
		"application/pdf", readTestFile(t, "zugferd_invoice.pdf"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp server.ParseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Invoice)
	assert.Equal(t, "CII", resp.Flavor)
	assert.Equal(t, "RE-2024-0815", resp.Invoice.DocumentID)
}

func TestParsePDF_NotAPDF(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/pdf",
		"application/pdf", []byte("not a pdf"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestParseOCR(t *testing.T) {
	payload := `{"invoiceFields": {"invoiceNumber": "RE-9", "sellerName": "Weber", "grossAmount": "119,00"}}`
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/ocr",
		"application/json", []byte(payload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool           `json:"success"`
		Invoice *model.Invoice `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Invoice)
	assert.Equal(t, "RE-9", resp.Invoice.DocumentID)
}

func TestParseOCR_Defects(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/parse/ocr",
		"application/json", []byte(`{"currency": "EURO"}`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDetect_XML(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/detect",
		"application/xml", readTestFile(t, "cii_invoice.xml"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp server.DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CII", resp.Flavor)
	assert.False(t, resp.Zugferd)
}

func TestDetect_Unknown(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/detect",
		"text/plain", []byte("hello"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp server.DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UNKNOWN", resp.Flavor)
}

func TestValidate(t *testing.T) {
	body, err := json.Marshal(apiInvoice())
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/validate",
		"application/json", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp server.ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.True(t, resp.Compliance.IsCompliant)
}

func TestValidate_Defective(t *testing.T) {
	inv := apiInvoice()
	inv.DocumentID = ""
	inv.Totals.GrossAmount = inv.Totals.GrossAmount.Add(money.MustFromString("10.00"))
	body, err := json.Marshal(inv)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/validate",
		"application/json", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp server.ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Issues)
	assert.NotEmpty(t, resp.Compliance.Violations)
}

func TestValidate_StrictCountsWarnings(t *testing.T) {
	inv := apiInvoice()
	inv.Currency = "USD"
	body, err := json.Marshal(inv)
	require.NoError(t, err)

	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/validate", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp server.ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.NotEmpty(t, resp.Compliance.Warnings)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/validate?strict=true", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
}

func TestValidate_ConfiguredTolerance(t *testing.T) {
	inv := apiInvoice()
	inv.Totals.GrossAmount = inv.Totals.GrossAmount.Add(money.MustFromString("0.30"))
	body, err := json.Marshal(inv)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/validate",
		"application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp server.ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)

	wide := server.NewServer(&server.Config{
		Address:       "127.0.0.1:0",
		Vies:          vat.Config{Enabled: false},
		GoBDTolerance: 0.5,
	}).Handler()

	rec = doRequest(t, wide, http.MethodPost, "/api/v1/validate", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid, rec.Body.String())
	assert.True(t, resp.Compliance.IsCompliant)
}

func TestValidate_BadPayload(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/validate",
		"application/json", []byte(`{invalid`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVATCheck_Disabled(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/vat/check",
		"application/json", []byte(`{"vat_id": "DE123456789"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.VATValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.VATStatusUnverified, resp.Status)
	assert.Equal(t, "DE", resp.CountryCode)
}

func TestVATCheck_BadFormat(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/vat/check",
		"application/json", []byte(`{"vat_id": "DE12345"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.VATValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.VATStatusInvalid, resp.Status)
}

func TestDatevExport(t *testing.T) {
	req := server.DatevExportRequest{
		Invoices: []*model.Invoice{apiInvoice()},
		Filename: "export.csv",
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/export/datev",
		"application/json", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp server.DatevExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "export.csv", resp.Filename)
	assert.Equal(t, 1, resp.EntryCount)

	content, err := base64.StdEncoding.DecodeString(resp.Content)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), `"EXTF"`))
}

func TestDatevExport_GateBlocks(t *testing.T) {
	inv := apiInvoice()
	inv.DocumentID = ""
	req := server.DatevExportRequest{Invoices: []*model.Invoice{inv}}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/export/datev",
		"application/json", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp server.DatevExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Content)
	assert.NotEmpty(t, resp.Errors)
}

func TestDatevExport_NoInvoices(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/export/datev",
		"application/json", []byte(`{"invoices": []}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatevPreview(t *testing.T) {
	req := server.DatevExportRequest{Invoices: []*model.Invoice{apiInvoice()}}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/export/datev/preview",
		"application/json", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		InvoiceCount int `json:"invoice_count"`
		EntryCount   int `json:"entry_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.InvoiceCount)
	assert.Equal(t, 1, resp.EntryCount)
}

func TestGenerateXRechnung(t *testing.T) {
	body, err := json.Marshal(apiInvoice())
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/generate/xrechnung",
		"application/json", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	out, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(out), "rsm:CrossIndustryInvoice")
	assert.Contains(t, string(out), "RE-2024-0815")
}

func TestGenerateXRechnung_MissingFields(t *testing.T) {
	inv := apiInvoice()
	inv.Seller.Name = ""
	body, err := json.Marshal(inv)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/generate/xrechnung",
		"application/json", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp server.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Details, "seller")
}

func TestUnknownRoute(t *testing.T) {
	rec := doRequest(t, newTestServer(t), http.MethodPost, "/api/v1/nope", "", []byte("x"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
