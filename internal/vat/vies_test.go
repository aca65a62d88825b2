package vat_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/vat"
)

// roundTripFunc fakes the VIES transport.
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func fakeClient(fn roundTripFunc) *http.Client {
	return &http.Client{Transport: fn}
}

func soapResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"text/xml"}},
	}
}

const validResponse = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <ns2:checkVatResponse xmlns:ns2="urn:ec.europa.eu:taxud:vies:services:checkVat:types">
      <ns2:countryCode>DE</ns2:countryCode>
      <ns2:vatNumber>123456789</ns2:vatNumber>
      <ns2:requestDate>2024-01-15+01:00</ns2:requestDate>
      <ns2:valid>true</ns2:valid>
      <ns2:name>SCHMIDT CONSULTING GMBH</ns2:name>
    </ns2:checkVatResponse>
  </env:Body>
</env:Envelope>`

const invalidResponse = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <ns2:checkVatResponse xmlns:ns2="urn:ec.europa.eu:taxud:vies:services:checkVat:types">
      <ns2:countryCode>DE</ns2:countryCode>
      <ns2:vatNumber>123456789</ns2:vatNumber>
      <ns2:valid>false</ns2:valid>
    </ns2:checkVatResponse>
  </env:Body>
</env:Envelope>`

const faultResponse = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <env:Fault>
      <faultcode>env:Server</faultcode>
      <faultstring>INVALID_INPUT</faultstring>
    </env:Fault>
  </env:Body>
</env:Envelope>`

const serviceFaultResponse = `<?xml version="1.0" encoding="UTF-8"?>
<env:Envelope xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <env:Fault>
      <faultcode>env:Server</faultcode>
      <faultstring>MS_MAX_CONCURRENT_REQ</faultstring>
    </env:Fault>
  </env:Body>
</env:Envelope>`

func TestValidateVATID_LocalChecks(t *testing.T) {
	v := vat.New(vat.Config{Enabled: false})

	tests := []struct {
		name       string
		input      string
		wantStatus model.VATStatus
		wantReason string
	}{
		{name: "empty", input: "", wantStatus: model.VATStatusUnverified, wantReason: vat.ReasonMissing},
		{name: "whitespace only", input: "   ", wantStatus: model.VATStatusUnverified, wantReason: vat.ReasonMissing},
		{name: "too short", input: "DE1", wantStatus: model.VATStatusInvalid, wantReason: vat.ReasonFormat},
		{name: "german wrong length", input: "DE12345", wantStatus: model.VATStatusInvalid, wantReason: vat.ReasonFormat},
		{name: "german valid shape", input: "DE123456789", wantStatus: model.VATStatusUnverified, wantReason: vat.ReasonDisabled},
		{name: "lowercase normalized", input: "de 123 456 789", wantStatus: model.VATStatusUnverified, wantReason: vat.ReasonDisabled},
		{name: "austrian valid shape", input: "ATU12345678", wantStatus: model.VATStatusUnverified, wantReason: vat.ReasonDisabled},
		{name: "austrian missing U", input: "AT12345678", wantStatus: model.VATStatusInvalid, wantReason: vat.ReasonFormat},
		{name: "non EU country", input: "CH123456789", wantStatus: model.VATStatusUnverified, wantReason: vat.ReasonUnsupportedCountry},
		{name: "post brexit GB", input: "GB123456789", wantStatus: model.VATStatusUnverified, wantReason: vat.ReasonUnsupportedCountry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateVATID(context.Background(), tt.input)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantReason, result.Reason)
			assert.False(t, result.CheckedAt.IsZero())
		})
	}
}

func TestValidateVATID_GreeceUsesEL(t *testing.T) {
	v := vat.New(vat.Config{Enabled: false})

	result := v.ValidateVATID(context.Background(), "GR123456789")

	assert.Equal(t, "EL", result.CountryCode)
	assert.Equal(t, "123456789", result.VATNumber)
	assert.Equal(t, vat.ReasonDisabled, result.Reason)
}

func TestValidateVATID_RemoteValid(t *testing.T) {
	var gotBody string
	client := fakeClient(func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		assert.Equal(t, "text/xml; charset=utf-8", req.Header.Get("Content-Type"))
		return soapResponse(http.StatusOK, validResponse), nil
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE123456789")

	assert.Equal(t, model.VATStatusValid, result.Status)
	assert.Equal(t, vat.ReasonOK, result.Reason)
	assert.Equal(t, "DE", result.CountryCode)
	assert.Equal(t, "123456789", result.VATNumber)
	assert.Contains(t, gotBody, "<urn:countryCode>DE</urn:countryCode>")
	assert.Contains(t, gotBody, "<urn:vatNumber>123456789</urn:vatNumber>")
}

func TestValidateVATID_RemoteInvalid(t *testing.T) {
	client := fakeClient(func(*http.Request) (*http.Response, error) {
		return soapResponse(http.StatusOK, invalidResponse), nil
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE123456789")

	assert.Equal(t, model.VATStatusInvalid, result.Status)
	assert.Equal(t, vat.ReasonViesInvalid, result.Reason)
}

func TestValidateVATID_FaultInvalidInput(t *testing.T) {
	client := fakeClient(func(*http.Request) (*http.Response, error) {
		return soapResponse(http.StatusOK, faultResponse), nil
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE123456789")

	assert.Equal(t, model.VATStatusInvalid, result.Status)
	assert.Equal(t, vat.ReasonViesInvalidInput, result.Reason)
}

func TestValidateVATID_ServiceFault(t *testing.T) {
	client := fakeClient(func(*http.Request) (*http.Response, error) {
		return soapResponse(http.StatusOK, serviceFaultResponse), nil
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE123456789")

	assert.Equal(t, model.VATStatusUnavailable, result.Status)
	assert.Equal(t, vat.ReasonViesUnavailable, result.Reason)
}

func TestValidateVATID_NetworkError(t *testing.T) {
	client := fakeClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE123456789")

	assert.Equal(t, model.VATStatusUnavailable, result.Status)
	assert.Equal(t, vat.ReasonViesUnavailable, result.Reason)
	// Country and number survive a remote failure.
	assert.Equal(t, "DE", result.CountryCode)
	assert.Equal(t, "123456789", result.VATNumber)
}

func TestValidateVATID_HTTPError(t *testing.T) {
	client := fakeClient(func(*http.Request) (*http.Response, error) {
		return soapResponse(http.StatusServiceUnavailable, "down"), nil
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE123456789")

	assert.Equal(t, model.VATStatusUnavailable, result.Status)
	assert.Contains(t, result.Message, "503")
}

func TestValidateVATID_UnparsableResponse(t *testing.T) {
	client := fakeClient(func(*http.Request) (*http.Response, error) {
		return soapResponse(http.StatusOK, "<not-soap"), nil
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE123456789")

	assert.Equal(t, model.VATStatusUnavailable, result.Status)
}

func TestValidateVATID_FormatFailSkipsRemote(t *testing.T) {
	called := false
	client := fakeClient(func(*http.Request) (*http.Response, error) {
		called = true
		return soapResponse(http.StatusOK, validResponse), nil
	})

	v := vat.New(vat.Config{Enabled: true}, vat.WithHTTPClient(client))
	result := v.ValidateVATID(context.Background(), "DE12")

	assert.Equal(t, model.VATStatusInvalid, result.Status)
	assert.False(t, called)
}

func TestNew_Defaults(t *testing.T) {
	v := vat.New(vat.Config{})
	require.NotNil(t, v)

	result := v.ValidateVATID(context.Background(), "DE123456789")
	assert.Equal(t, vat.ReasonDisabled, result.Reason)
}
