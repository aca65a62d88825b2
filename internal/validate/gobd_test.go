package validate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/money"
	"github.com/rezonia/xrechnung-engine/internal/validate"
)

func violationCodes(vs []model.GoBDViolation) []string {
	codes := make([]string, 0, len(vs))
	for _, v := range vs {
		codes = append(codes, v.Code)
	}
	return codes
}

func TestCheckCompliance_ValidInvoice(t *testing.T) {
	result := validate.CheckCompliance(validInvoice(), validate.GoBDOptions{})

	assert.True(t, result.IsCompliant)
	assert.Empty(t, result.Violations)
	assert.Empty(t, result.Warnings)
}

func TestCheckCompliance_MissingRequiredFields(t *testing.T) {
	inv := validInvoice()
	inv.DocumentID = ""
	inv.Seller.Name = ""
	inv.Buyer.Name = ""
	inv.DueDate = nil

	result := validate.CheckCompliance(inv, validate.GoBDOptions{})

	assert.False(t, result.IsCompliant)
	codes := violationCodes(result.Violations)
	assert.Contains(t, codes, validate.CodeMissingInvoiceNumber)
	assert.Contains(t, codes, validate.CodeMissingSupplier)
	assert.Contains(t, codes, validate.CodeMissingCustomer)
	// A missing due date stays advisory.
	assert.Contains(t, violationCodes(result.Warnings), validate.CodeMissingDueDate)
}

func TestCheckCompliance_FutureDate(t *testing.T) {
	inv := validInvoice()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	inv.IssueDate = now.AddDate(0, 0, 7)

	result := validate.CheckCompliance(inv, validate.GoBDOptions{Now: now})

	assert.False(t, result.IsCompliant)
	assert.Contains(t, violationCodes(result.Violations), validate.CodeFutureDate)
}

func TestCheckCompliance_NextDayIsNotFuture(t *testing.T) {
	inv := validInvoice()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	// Same-day issuance across time zones must not trip the rule.
	inv.IssueDate = now.Add(12 * time.Hour)

	result := validate.CheckCompliance(inv, validate.GoBDOptions{Now: now})
	assert.NotContains(t, violationCodes(result.Violations), validate.CodeFutureDate)
}

func TestCheckCompliance_MissingIssueDate(t *testing.T) {
	inv := validInvoice()
	inv.IssueDate = time.Time{}

	result := validate.CheckCompliance(inv, validate.GoBDOptions{})
	assert.Contains(t, violationCodes(result.Violations), validate.CodeInvalidDate)
}

func TestCheckCompliance_SumMismatch(t *testing.T) {
	inv := validInvoice()
	inv.Totals.GrossAmount = inv.Totals.GrossAmount.Add(money.MustFromString("10.00"))

	result := validate.CheckCompliance(inv, validate.GoBDOptions{})

	assert.False(t, result.IsCompliant)
	assert.Contains(t, violationCodes(result.Violations), validate.CodeSumMismatch)
}

func TestCheckCompliance_SumCheckSkippedWhenAllZero(t *testing.T) {
	inv := validInvoice()
	inv.Totals = model.Totals{}
	inv.Items = nil
	inv.TaxBreakdown = nil

	result := validate.CheckCompliance(inv, validate.GoBDOptions{})
	assert.NotContains(t, violationCodes(result.Violations), validate.CodeSumMismatch)
	assert.Contains(t, violationCodes(result.Warnings), validate.CodeNoLineItems)
}

func TestCheckCompliance_InvalidTaxRate(t *testing.T) {
	inv := validInvoice()
	inv.Items[0].TaxRate = model.TaxRate(12)

	result := validate.CheckCompliance(inv, validate.GoBDOptions{})

	assert.False(t, result.IsCompliant)
	require.Contains(t, violationCodes(result.Violations), validate.CodeInvalidTaxRate)
	for _, v := range result.Violations {
		if v.Code == validate.CodeInvalidTaxRate {
			assert.Equal(t, "lineItems[0].taxRate", v.Field)
		}
	}
}

func TestCheckCompliance_TaxCalculationMismatch(t *testing.T) {
	inv := validInvoice()
	inv.Items[0].TaxAmount = inv.Items[0].TaxAmount.Add(money.MustFromString("3.00"))

	result := validate.CheckCompliance(inv, validate.GoBDOptions{})
	assert.Contains(t, violationCodes(result.Violations), validate.CodeTaxCalculationError)
}

func TestCheckCompliance_Currency(t *testing.T) {
	tests := []struct {
		name          string
		currency      string
		wantCode      string
		wantViolation bool
	}{
		{name: "eur passes", currency: "EUR"},
		{name: "usd warns", currency: "USD", wantCode: validate.CodeNonEURCurrency},
		{name: "aud warns", currency: "AUD", wantCode: validate.CodeNonEURCurrency},
		{name: "inr warns", currency: "INR", wantCode: validate.CodeNonEURCurrency},
		{name: "lowercase rejected", currency: "eur", wantCode: validate.CodeInvalidCurrency, wantViolation: true},
		{name: "no-currency placeholder rejected", currency: "XXX", wantCode: validate.CodeInvalidCurrency, wantViolation: true},
		{name: "gold fund code rejected", currency: "XAU", wantCode: validate.CodeInvalidCurrency, wantViolation: true},
		{name: "empty rejected", currency: "", wantCode: validate.CodeInvalidCurrency, wantViolation: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvoice()
			inv.Currency = tt.currency

			result := validate.CheckCompliance(inv, validate.GoBDOptions{})
			if tt.wantCode == "" {
				assert.Empty(t, result.Violations)
				assert.Empty(t, result.Warnings)
			} else if tt.wantViolation {
				assert.Contains(t, violationCodes(result.Violations), tt.wantCode)
			} else {
				assert.Contains(t, violationCodes(result.Warnings), tt.wantCode)
			}
		})
	}
}

func TestCheckCompliance_MissingDescription(t *testing.T) {
	inv := validInvoice()
	inv.Items[1].Description = ""

	result := validate.CheckCompliance(inv, validate.GoBDOptions{})
	require.Contains(t, violationCodes(result.Violations), validate.CodeMissingDescription)
	for _, v := range result.Violations {
		if v.Code == validate.CodeMissingDescription {
			assert.Equal(t, "lineItems[1].description", v.Field)
		}
	}
}

func TestCheckCompliance_CustomTolerance(t *testing.T) {
	inv := validInvoice()
	inv.Totals.GrossAmount = inv.Totals.GrossAmount.Add(money.MustFromString("0.50"))

	strict := validate.CheckCompliance(inv, validate.GoBDOptions{})
	assert.False(t, strict.IsCompliant)

	loose := validate.CheckCompliance(inv, validate.GoBDOptions{Tolerance: money.MustFromString("1.00")})
	assert.True(t, loose.IsCompliant)
}

func TestCheckRequiredFields_Passed(t *testing.T) {
	r := validate.CheckRequiredFields(validInvoice(), validate.GoBDOptions{})
	assert.True(t, r.Passed)
	assert.Empty(t, r.Violations)
}
