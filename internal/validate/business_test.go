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

func validInvoice() *model.Invoice {
	due := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	inv := &model.Invoice{
		DocumentID:       "RE-2024-0815",
		DocumentTypeCode: model.TypeCodeInvoice,
		IssueDate:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DueDate:          &due,
		Currency:         "EUR",
		Seller: model.Party{
			Name:        "Schmidt Consulting GmbH",
			Street:      "Hauptstraße 12",
			PostCode:    "10115",
			City:        "Berlin",
			CountryCode: "DE",
			VATID:       "DE123456789",
		},
		Buyer: model.Party{
			Name:        "Müller Handels AG",
			Street:      "Marienplatz 3",
			PostCode:    "80331",
			City:        "München",
			CountryCode: "DE",
		},
		Payment: model.Payment{
			Means: "58",
			IBAN:  "DE89370400440532013000",
			BIC:   "COBADEFFXXX",
		},
		Items: []model.LineItem{
			{Position: 1, Description: "Beratungsleistung", Quantity: money.MustFromString("10"), Unit: "HUR", UnitPrice: money.MustFromString("50.00"), TaxRate: model.TaxRateStandard},
			{Position: 2, Description: "Fachliteratur", Quantity: money.MustFromString("2"), Unit: "C62", UnitPrice: money.MustFromString("25.00"), TaxRate: model.TaxRateReduced},
		},
		Direction: model.DirectionIncoming,
	}
	for i := range inv.Items {
		inv.Items[i].Calculate()
	}
	inv.ComputeTotals()
	return inv
}

func TestCheckBusinessRules_ValidInvoice(t *testing.T) {
	assert.Empty(t, validate.CheckBusinessRules(validInvoice()))
}

func TestCheckBusinessRules_NilInvoice(t *testing.T) {
	issues := validate.CheckBusinessRules(nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "invoice", issues[0].Field)
}

func TestCheckBusinessRules_GrossMismatch(t *testing.T) {
	inv := validInvoice()
	inv.Totals.GrossAmount = inv.Totals.GrossAmount.Add(money.MustFromString("1.00"))

	issues := validate.CheckBusinessRules(inv)
	require.NotEmpty(t, issues)
	assert.Equal(t, "totals.grossAmount", issues[0].Field)
}

func TestCheckBusinessRules_LineSumMismatch(t *testing.T) {
	inv := validInvoice()
	inv.Items[0].NetAmount = inv.Items[0].NetAmount.Add(money.MustFromString("10.00"))

	var fields []string
	for _, issue := range validate.CheckBusinessRules(inv) {
		fields = append(fields, issue.Field)
	}
	assert.Contains(t, fields, "lineItems[0].grossAmount")
	assert.Contains(t, fields, "totals.netAmount")
}

func TestCheckBusinessRules_TaxBucketMismatch(t *testing.T) {
	inv := validInvoice()
	inv.TaxBreakdown[1].TaxAmount = inv.TaxBreakdown[1].TaxAmount.Add(money.MustFromString("5.00"))

	var fields []string
	for _, issue := range validate.CheckBusinessRules(inv) {
		fields = append(fields, issue.Field)
	}
	assert.Contains(t, fields, "taxBreakdown[1].taxAmount")
	assert.Contains(t, fields, "taxBreakdown")
}

func TestCheckBusinessRules_DueBeforeIssue(t *testing.T) {
	inv := validInvoice()
	due := inv.IssueDate.AddDate(0, 0, -1)
	inv.DueDate = &due

	issues := validate.CheckBusinessRules(inv)
	require.NotEmpty(t, issues)
	assert.Equal(t, "dueDate", issues[0].Field)
}

func TestCheckBusinessRules_WithinTolerance(t *testing.T) {
	inv := validInvoice()
	// One cent of rounding drift stays below the default tolerance.
	inv.Totals.GrossAmount = inv.Totals.GrossAmount.Add(money.MustFromString("0.01"))
	assert.Empty(t, validate.CheckBusinessRules(inv))
}

func TestIsValidIBAN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "german iban", input: "DE89370400440532013000", want: true},
		{name: "with spaces", input: "DE89 3704 0044 0532 0130 00", want: true},
		{name: "lowercase", input: "de89370400440532013000", want: true},
		{name: "austrian iban", input: "AT611904300234573201", want: true},
		{name: "single digit mutated", input: "DE89370400440532013001", want: false},
		{name: "checksum swapped", input: "DE98370400440532013000", want: false},
		{name: "too short", input: "DE8937", want: false},
		{name: "letters in check digits", input: "DEXX370400440532013000", want: false},
		{name: "empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validate.IsValidIBAN(tt.input))
		})
	}
}

func TestNormalizeIBAN(t *testing.T) {
	assert.Equal(t, "DE89370400440532013000", validate.NormalizeIBAN("de89 3704-0044.0532 0130 00"))
}

func TestNormalizeVATID(t *testing.T) {
	assert.Equal(t, "DE123456789", validate.NormalizeVATID(" de 123 456 789 "))
}
