// Package validate holds the arithmetic cross-field checks and the GoBD
// compliance rules. All functions are pure: they report findings, never
// fail, and share no state.
package validate

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/money"
	"github.com/rezonia/xrechnung-engine/internal/parser"
)

// Issue is one cross-field finding.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CheckBusinessRules verifies the arithmetic invariants of the canonical
// model plus date ordering. Amounts may be negative (credit notes); the
// invariants hold on signed values.
func CheckBusinessRules(inv *model.Invoice) []Issue {
	return CheckBusinessRulesTolerance(inv, money.DefaultTolerance)
}

// CheckBusinessRulesTolerance is CheckBusinessRules with an explicit
// absolute tolerance in currency units. Zero means the default.
func CheckBusinessRulesTolerance(inv *model.Invoice, tolerance decimal.Decimal) []Issue {
	if tolerance.IsZero() {
		tolerance = money.DefaultTolerance
	}

	var issues []Issue
	add := func(field, format string, args ...any) {
		issues = append(issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if inv == nil {
		return []Issue{{Field: "invoice", Message: "invoice is nil"}}
	}

	totals := inv.Totals
	if !money.WithinTolerance(totals.GrossAmount, totals.NetAmount.Add(totals.TaxAmount), tolerance) {
		add("totals.grossAmount", "gross %s != net %s + tax %s",
			totals.GrossAmount, totals.NetAmount, totals.TaxAmount)
	}

	if len(inv.Items) > 0 {
		lineNet := decimal.Zero
		for i, item := range inv.Items {
			lineNet = lineNet.Add(item.NetAmount)
			if !money.WithinTolerance(item.GrossAmount, item.NetAmount.Add(item.TaxAmount), tolerance) {
				add(fmt.Sprintf("lineItems[%d].grossAmount", i),
					"line gross %s != net %s + tax %s", item.GrossAmount, item.NetAmount, item.TaxAmount)
			}
		}
		if !money.WithinTolerance(lineNet, totals.NetAmount, tolerance) {
			add("totals.netAmount", "line net sum %s != totals net %s", lineNet, totals.NetAmount)
		}
	}

	if len(inv.TaxBreakdown) > 0 {
		taxable := decimal.Zero
		tax := decimal.Zero
		for i, bucket := range inv.TaxBreakdown {
			taxable = taxable.Add(bucket.TaxableAmount)
			tax = tax.Add(bucket.TaxAmount)
			expected := money.Tax(bucket.TaxableAmount, int(bucket.Rate))
			if !money.WithinTolerance(bucket.TaxAmount, expected, tolerance) {
				add(fmt.Sprintf("taxBreakdown[%d].taxAmount", i),
					"tax %s != taxable %s x %d%%", bucket.TaxAmount, bucket.TaxableAmount, bucket.Rate)
			}
		}
		if !money.WithinTolerance(taxable, totals.NetAmount, tolerance) {
			add("taxBreakdown", "taxable sum %s != totals net %s", taxable, totals.NetAmount)
		}
		if !money.WithinTolerance(tax, totals.TaxAmount, tolerance) {
			add("taxBreakdown", "tax sum %s != totals tax %s", tax, totals.TaxAmount)
		}
	}

	if inv.DueDate != nil && !inv.IssueDate.IsZero() {
		due := parser.DateOnly(*inv.DueDate)
		issued := parser.DateOnly(inv.IssueDate)
		if due.Before(issued) {
			add("dueDate", "due date %s precedes issue date %s",
				due.Format("2006-01-02"), issued.Format("2006-01-02"))
		}
	}

	if inv.Payment.IBAN != "" && !IsValidIBAN(inv.Payment.IBAN) {
		add("payment.iban", "IBAN fails checksum validation")
	}

	return issues
}

var (
	nonAlnumRe  = regexp.MustCompile(`[^A-Za-z0-9]`)
	ibanShapeRe = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]+$`)
	mod97       = big.NewInt(97)
	one         = big.NewInt(1)
)

// NormalizeIBAN strips non-alphanumerics and uppercases.
func NormalizeIBAN(value string) string {
	return strings.ToUpper(nonAlnumRe.ReplaceAllString(value, ""))
}

// NormalizeVATID strips non-alphanumerics and uppercases.
func NormalizeVATID(value string) string {
	return strings.ToUpper(nonAlnumRe.ReplaceAllString(value, ""))
}

// IsValidIBAN runs the ISO 7064 mod-97 check: normalize, verify shape and
// length 15-34, move the first four characters to the end, substitute
// letters with code-55 (A=10..Z=35) and confirm the number mod 97 is 1.
func IsValidIBAN(value string) bool {
	iban := NormalizeIBAN(value)
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	if !ibanShapeRe.MatchString(iban) {
		return false
	}

	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			fmt.Fprintf(&digits, "%d", int(r)-55)
		} else {
			digits.WriteRune(r)
		}
	}

	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, mod97).Cmp(one) == 0
}
