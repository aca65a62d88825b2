// Package vat validates EU VAT identifiers: local syntax checks first,
// then an optional live lookup against the VIES SOAP service. The check
// is strictly advisory; every failure mode degrades to a result instead
// of an error.
package vat

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/validate"
)

// DefaultEndpoint is the EC VIES checkVat SOAP service.
const DefaultEndpoint = "https://ec.europa.eu/taxation_customs/vies/services/checkVatService"

// DefaultTimeout bounds the single outbound SOAP call.
const DefaultTimeout = 3500 * time.Millisecond

// Result reason codes.
const (
	ReasonOK                 = "ok"
	ReasonMissing            = "missing"
	ReasonFormat             = "format"
	ReasonUnsupportedCountry = "unsupported_country"
	ReasonDisabled           = "disabled"
	ReasonViesInvalid        = "vies_invalid"
	ReasonViesInvalidInput   = "vies_invalid_input"
	ReasonViesUnavailable    = "vies_unavailable"
)

// Config controls the validator.
type Config struct {
	// Enabled switches the remote VIES call on. When false, validation
	// stops after the local syntax checks with an unverified result.
	Enabled bool
	// Timeout bounds the SOAP call; zero means DefaultTimeout.
	Timeout time.Duration
	// Endpoint overrides the VIES service URL, mainly for tests.
	Endpoint string
}

// Validator checks VAT identifiers.
type Validator struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// Option configures the validator.
type Option func(*Validator)

// WithHTTPClient injects a custom HTTP client. Tests use it to fake the
// VIES transport.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) {
		v.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(v *Validator) {
		v.log = log
	}
}

// New creates a validator.
func New(cfg Config, opts ...Option) *Validator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	v := &Validator{
		cfg:    cfg,
		client: &http.Client{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var vatShapeRe = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{2,12}$`)

// ValidateVATID checks a raw VAT identifier. It never fails: syntax
// defects yield invalid, an unreachable registry yields unavailable, and
// a disabled remote check yields unverified with the locally parsed
// country and number still populated.
func (v *Validator) ValidateVATID(ctx context.Context, raw string) model.VATValidationResult {
	now := time.Now().UTC()
	result := model.VATValidationResult{CheckedAt: now}

	normalized := validate.NormalizeVATID(raw)
	if normalized == "" {
		result.Status = model.VATStatusUnverified
		result.Reason = ReasonMissing
		result.Message = "no VAT ID provided"
		return result
	}

	if !vatShapeRe.MatchString(normalized) {
		result.Status = model.VATStatusInvalid
		result.Reason = ReasonFormat
		result.Message = fmt.Sprintf("%q is not a plausible VAT ID", normalized)
		return result
	}

	country := normalized[:2]
	number := normalized[2:]

	// VIES convention: Greece uses EL, not its ISO code GR.
	if country == "GR" {
		country = "EL"
	}
	result.CountryCode = country
	result.VATNumber = number

	if !matchesCountryPattern(country, number) {
		result.Status = model.VATStatusInvalid
		result.Reason = ReasonFormat
		result.Message = fmt.Sprintf("number %q does not match the %s VAT syntax", number, country)
		return result
	}

	if !isEUCountry(country) {
		result.Status = model.VATStatusUnverified
		result.Reason = ReasonUnsupportedCountry
		result.Message = fmt.Sprintf("country %s is not covered by VIES", country)
		return result
	}

	if !v.cfg.Enabled {
		result.Status = model.VATStatusUnverified
		result.Reason = ReasonDisabled
		result.Message = "remote VIES check is disabled, format check passed"
		return result
	}

	return v.checkRemote(ctx, country, number, result)
}

// viesEnvelope is the SOAP request template.
const viesEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"
                  xmlns:urn="urn:ec.europa.eu:taxud:vies:services:checkVat:types">
  <soapenv:Body>
    <urn:checkVat>
      <urn:countryCode>%s</urn:countryCode>
      <urn:vatNumber>%s</urn:vatNumber>
    </urn:checkVat>
  </soapenv:Body>
</soapenv:Envelope>`

// viesResponse covers both the checkVatResponse and fault bodies; only
// one of them is populated per response.
type viesResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		CheckVatResponse struct {
			CountryCode string `xml:"countryCode"`
			VATNumber   string `xml:"vatNumber"`
			Valid       bool   `xml:"valid"`
			Name        string `xml:"name"`
		} `xml:"checkVatResponse"`
		Fault struct {
			FaultCode   string `xml:"faultcode"`
			FaultString string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// checkRemote issues exactly one SOAP call with a bounded timeout. The
// context cancellation aborts the in-flight request; there is no retry.
func (v *Validator) checkRemote(ctx context.Context, country, number string, result model.VATValidationResult) model.VATValidationResult {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	unavailable := func(message string) model.VATValidationResult {
		result.Status = model.VATStatusUnavailable
		result.Reason = ReasonViesUnavailable
		result.Message = message
		return result
	}

	body := fmt.Sprintf(viesEnvelope, country, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.Endpoint, strings.NewReader(body))
	if err != nil {
		return unavailable("failed to build VIES request: " + err.Error())
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Warn().Err(err).Str("country", country).Msg("VIES request failed")
		return unavailable("VIES service unreachable, VAT ID could not be verified")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return unavailable("failed to read VIES response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		v.log.Warn().Int("status", resp.StatusCode).Msg("VIES returned non-2xx")
		return unavailable(fmt.Sprintf("VIES returned HTTP %d", resp.StatusCode))
	}

	var soap viesResponse
	if err := xml.Unmarshal(payload, &soap); err != nil {
		return unavailable("unparsable VIES response")
	}

	if fault := soap.Body.Fault.FaultString; fault != "" {
		if strings.Contains(fault, "INVALID_INPUT") {
			result.Status = model.VATStatusInvalid
			result.Reason = ReasonViesInvalidInput
			result.Message = "VIES rejected the VAT ID as invalid input"
			return result
		}
		v.log.Warn().Str("fault", fault).Msg("VIES fault")
		return unavailable("VIES fault: " + fault)
	}

	if soap.Body.CheckVatResponse.Valid {
		result.Status = model.VATStatusValid
		result.Reason = ReasonOK
		result.Message = "VAT ID confirmed by VIES"
		return result
	}

	result.Status = model.VATStatusInvalid
	result.Reason = ReasonViesInvalid
	result.Message = "VIES reports this VAT ID as not registered"
	return result
}
