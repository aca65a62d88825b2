package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/money"
)

// GoBD violation and warning codes.
const (
	CodeMissingInvoiceNumber = "MISSING_INVOICE_NUMBER"
	CodeMissingSupplier      = "MISSING_SUPPLIER"
	CodeMissingCustomer      = "MISSING_CUSTOMER"
	CodeMissingDueDate       = "MISSING_DUE_DATE"
	CodeFutureDate           = "FUTURE_DATE"
	CodeInvalidDate          = "INVALID_DATE"
	CodeSumMismatch          = "SUM_MISMATCH"
	CodeInvalidTaxRate       = "INVALID_TAX_RATE"
	CodeTaxCalculationError  = "TAX_CALCULATION_MISMATCH"
	CodeInvalidCurrency      = "INVALID_CURRENCY"
	CodeNonEURCurrency       = "NON_EUR_CURRENCY"
	CodeMissingDescription   = "MISSING_DESCRIPTION"
	CodeLineSumMismatch      = "LINE_SUM_MISMATCH"
	CodeNoLineItems          = "NO_LINE_ITEMS"
)

// GoBDOptions configures the compliance run. Whether a non-compliant
// result blocks anything is the caller's call: the DATEV export gates
// on it, validation surfaces report it as advisory.
type GoBDOptions struct {
	// Tolerance is the absolute sum tolerance; zero means the default
	// of 0.02 currency units.
	Tolerance decimal.Decimal
	// Now overrides the reference time for the future-date check.
	// Zero value means time.Now.
	Now time.Time
}

// RuleResult is the outcome of one independent compliance rule.
type RuleResult struct {
	Passed     bool
	Violations []model.GoBDViolation
	Warnings   []model.GoBDViolation
}

// ComplianceResult aggregates all rules.
type ComplianceResult struct {
	IsCompliant bool                  `json:"is_compliant"`
	Violations  []model.GoBDViolation `json:"violations"`
	Warnings    []model.GoBDViolation `json:"warnings"`
}

// Rule is one independent GoBD check. Rules share no state and may run
// in any order; results are combined by concatenation.
type Rule func(inv *model.Invoice, opts GoBDOptions) RuleResult

// gobdRules is the fixed rule list. New rules are added by extending it.
var gobdRules = []Rule{
	CheckRequiredFields,
	CheckDateConstraints,
	CheckSumCalculation,
	CheckTaxRates,
	CheckCurrency,
	CheckLineItems,
}

// CheckCompliance runs all GoBD rules and concatenates their findings.
// Warnings never block; violations block in strict mode.
func CheckCompliance(inv *model.Invoice, opts GoBDOptions) ComplianceResult {
	result := ComplianceResult{
		IsCompliant: true,
		Violations:  []model.GoBDViolation{},
		Warnings:    []model.GoBDViolation{},
	}
	if opts.Tolerance.IsZero() {
		opts.Tolerance = money.DefaultTolerance
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	for _, rule := range gobdRules {
		r := rule(inv, opts)
		result.Violations = append(result.Violations, r.Violations...)
		result.Warnings = append(result.Warnings, r.Warnings...)
	}

	if len(result.Violations) > 0 {
		result.IsCompliant = false
	}

	return result
}

func violation(code, field, format string, args ...any) model.GoBDViolation {
	return model.GoBDViolation{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// CheckRequiredFields verifies document number and both party names.
// A missing due date is only advisory.
func CheckRequiredFields(inv *model.Invoice, _ GoBDOptions) RuleResult {
	r := RuleResult{Passed: true}

	if inv.DocumentID == "" {
		r.Violations = append(r.Violations,
			violation(CodeMissingInvoiceNumber, "documentId", "invoice number is required"))
	}
	if inv.Seller.Name == "" {
		r.Violations = append(r.Violations,
			violation(CodeMissingSupplier, "seller.name", "supplier name is required"))
	}
	if inv.Buyer.Name == "" {
		r.Violations = append(r.Violations,
			violation(CodeMissingCustomer, "buyer.name", "customer name is required"))
	}
	if inv.DueDate == nil {
		r.Warnings = append(r.Warnings,
			violation(CodeMissingDueDate, "dueDate", "due date is missing"))
	}

	r.Passed = len(r.Violations) == 0
	return r
}

// CheckDateConstraints rejects unparsable and future issue dates.
func CheckDateConstraints(inv *model.Invoice, opts GoBDOptions) RuleResult {
	r := RuleResult{Passed: true}

	if inv.IssueDate.IsZero() {
		r.Violations = append(r.Violations,
			violation(CodeInvalidDate, "issueDate", "issue date is missing or unparsable"))
	} else if inv.IssueDate.After(opts.Now.Add(24 * time.Hour)) {
		r.Violations = append(r.Violations,
			violation(CodeFutureDate, "issueDate", "issue date %s lies in the future",
				inv.IssueDate.Format("2006-01-02")))
	}

	r.Passed = len(r.Violations) == 0
	return r
}

// CheckSumCalculation verifies net + tax = gross within tolerance. The
// check is skipped when any of the three amounts is absent (all zero
// values can only be told apart by the line items, which have their own
// rule).
func CheckSumCalculation(inv *model.Invoice, opts GoBDOptions) RuleResult {
	r := RuleResult{Passed: true}

	t := inv.Totals
	if t.NetAmount.IsZero() && t.TaxAmount.IsZero() && t.GrossAmount.IsZero() {
		return r
	}

	if !money.WithinTolerance(t.GrossAmount, t.NetAmount.Add(t.TaxAmount), opts.Tolerance) {
		r.Passed = false
		r.Violations = append(r.Violations,
			violation(CodeSumMismatch, "totals.grossAmount",
				"gross %s does not equal net %s + tax %s", t.GrossAmount, t.NetAmount, t.TaxAmount))
	}

	return r
}

// CheckTaxRates enforces the German rate set {0, 7, 19} and the per-line
// tax arithmetic.
func CheckTaxRates(inv *model.Invoice, opts GoBDOptions) RuleResult {
	r := RuleResult{Passed: true}

	for i, item := range inv.Items {
		switch item.TaxRate {
		case model.TaxRateZero, model.TaxRateReduced, model.TaxRateStandard:
		default:
			r.Violations = append(r.Violations,
				violation(CodeInvalidTaxRate, fmt.Sprintf("lineItems[%d].taxRate", i),
					"tax rate %d%% is not a valid German VAT rate", item.TaxRate))
			continue
		}

		expected := money.Tax(item.NetAmount, int(item.TaxRate))
		if !money.WithinTolerance(item.TaxAmount, expected, opts.Tolerance) {
			r.Violations = append(r.Violations,
				violation(CodeTaxCalculationError, fmt.Sprintf("lineItems[%d].taxAmount", i),
					"tax %s does not equal net %s x %d%%", item.TaxAmount, item.NetAmount, item.TaxRate))
		}
	}

	r.Passed = len(r.Violations) == 0
	return r
}

var iso4217Re = regexp.MustCompile(`^[A-Z]{3}$`)

// iso4217Currencies holds the active ISO 4217 transactional currency
// codes. Fund, metal and test codes (XAU, XTS, the XXX placeholder)
// are left out: they cannot appear on a bookable invoice.
var iso4217Currencies = currencySet(
	"AED", "AFN", "ALL", "AMD", "ANG", "AOA", "ARS", "AUD", "AWG", "AZN",
	"BAM", "BBD", "BDT", "BGN", "BHD", "BIF", "BMD", "BND", "BOB", "BRL",
	"BSD", "BTN", "BWP", "BYN", "BZD", "CAD", "CDF", "CHF", "CLP", "CNY",
	"COP", "CRC", "CUP", "CVE", "CZK", "DJF", "DKK", "DOP", "DZD", "EGP",
	"ERN", "ETB", "EUR", "FJD", "FKP", "GBP", "GEL", "GHS", "GIP", "GMD",
	"GNF", "GTQ", "GYD", "HKD", "HNL", "HTG", "HUF", "IDR", "ILS", "INR",
	"IQD", "IRR", "ISK", "JMD", "JOD", "JPY", "KES", "KGS", "KHR", "KMF",
	"KPW", "KRW", "KWD", "KYD", "KZT", "LAK", "LBP", "LKR", "LRD", "LSL",
	"LYD", "MAD", "MDL", "MGA", "MKD", "MMK", "MNT", "MOP", "MRU", "MUR",
	"MVR", "MWK", "MXN", "MYR", "MZN", "NAD", "NGN", "NIO", "NOK", "NPR",
	"NZD", "OMR", "PAB", "PEN", "PGK", "PHP", "PKR", "PLN", "PYG", "QAR",
	"RON", "RSD", "RUB", "RWF", "SAR", "SBD", "SCR", "SDG", "SEK", "SGD",
	"SHP", "SLE", "SOS", "SRD", "SSP", "STN", "SVC", "SYP", "SZL", "THB",
	"TJS", "TMT", "TND", "TOP", "TRY", "TTD", "TWD", "TZS", "UAH", "UGX",
	"USD", "UYU", "UZS", "VED", "VES", "VND", "VUV", "WST", "XAF", "XCD",
	"XOF", "XPF", "YER", "ZAR", "ZMW", "ZWG",
)

func currencySet(codes ...string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}

// CheckCurrency requires an ISO 4217 code; any valid non-EUR currency
// is advisory only.
func CheckCurrency(inv *model.Invoice, _ GoBDOptions) RuleResult {
	r := RuleResult{Passed: true}

	if !iso4217Re.MatchString(inv.Currency) || !iso4217Currencies[inv.Currency] {
		r.Passed = false
		r.Violations = append(r.Violations,
			violation(CodeInvalidCurrency, "currency", "%q is not a valid ISO 4217 currency code", inv.Currency))
		return r
	}

	if inv.Currency != "EUR" {
		r.Warnings = append(r.Warnings,
			violation(CodeNonEURCurrency, "currency", "currency %s requires exchange rate documentation", inv.Currency))
	}

	return r
}

// CheckLineItems verifies per-line completeness and arithmetic. An empty
// item list is only advisory: header-level invoices occur in practice.
func CheckLineItems(inv *model.Invoice, opts GoBDOptions) RuleResult {
	r := RuleResult{Passed: true}

	if len(inv.Items) == 0 {
		r.Warnings = append(r.Warnings,
			violation(CodeNoLineItems, "lineItems", "invoice has no line items"))
		return r
	}

	for i, item := range inv.Items {
		if item.Description == "" {
			r.Violations = append(r.Violations,
				violation(CodeMissingDescription, fmt.Sprintf("lineItems[%d].description", i),
					"line item description is required"))
		}
		if !money.WithinTolerance(item.GrossAmount, item.NetAmount.Add(item.TaxAmount), opts.Tolerance) {
			r.Violations = append(r.Violations,
				violation(CodeLineSumMismatch, fmt.Sprintf("lineItems[%d].grossAmount", i),
					"line gross %s does not equal net %s + tax %s",
					item.GrossAmount, item.NetAmount, item.TaxAmount))
		}
	}

	r.Passed = len(r.Violations) == 0
	return r
}
