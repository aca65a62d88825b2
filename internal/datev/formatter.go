package datev

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/validate"
)

// Format variants of the Buchungsstapel.
const (
	FormatStandard = "standard"
	FormatExtended = "extended"
)

// Encodings accepted in HeaderConfig.Encoding.
const (
	EncodingUTF8   = "utf-8"
	EncodingCP1252 = "cp1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options controls one export run.
type Options struct {
	// Format selects the column set, FormatStandard by default.
	Format string
	// Detailed emits one posting per line item instead of per tax rate.
	Detailed bool
	Config   HeaderConfig
	Mapping  AccountMapping
	// Filename overrides the output name. When empty, a generated name
	// is used, or a structured one if StructuredFilename is set.
	Filename           string
	StructuredFilename bool
	// Tolerance is passed to the compliance gate; zero means the
	// default sum tolerance.
	Tolerance decimal.Decimal
}

// Result is the outcome of an export. On failure Content is empty and
// Errors carries field-addressed defects; there is never partial CSV.
type Result struct {
	Success    bool               `json:"success"`
	Filename   string             `json:"filename,omitempty"`
	Content    []byte             `json:"-"`
	EntryCount int                `json:"entry_count"`
	Errors     []model.FieldError `json:"errors,omitempty"`
}

// FormatInvoices exports a batch of invoices as one DATEV CSV. Every
// invoice must pass strict GoBD compliance; a single violation anywhere
// in the batch blocks the whole export.
func FormatInvoices(invoices []*model.Invoice, opts Options) Result {
	if opts.Format == "" {
		opts.Format = FormatStandard
	}
	if opts.Format != FormatStandard && opts.Format != FormatExtended {
		return failed(model.FieldError{
			Path:    "options.format",
			Message: fmt.Sprintf("unknown format %q", opts.Format),
		})
	}
	if opts.Mapping == (AccountMapping{}) {
		opts.Mapping = DefaultAccountMapping()
	}

	var gateErrors []model.FieldError
	for i, inv := range invoices {
		compliance := validate.CheckCompliance(inv, validate.GoBDOptions{Tolerance: opts.Tolerance})
		for _, v := range compliance.Violations {
			gateErrors = append(gateErrors, model.FieldError{
				Path:    fmt.Sprintf("invoices[%d].%s", i, v.Field),
				Message: fmt.Sprintf("%s: %s", v.Code, v.Message),
			})
		}
	}
	if len(gateErrors) > 0 {
		return failed(gateErrors...)
	}

	var entries []DatevEntry
	for _, inv := range invoices {
		entries = append(entries, MapInvoiceToEntries(inv, opts.Mapping, opts.Detailed)...)
	}
	if errs := validateEntries(entries, opts.Config); len(errs) > 0 {
		return failed(errs...)
	}

	content, err := serialize(entries, opts)
	if err != nil {
		return failed(model.FieldError{Path: "output", Message: err.Error()})
	}

	return Result{
		Success:    true,
		Filename:   exportFilename(opts),
		Content:    content,
		EntryCount: len(entries),
	}
}

func failed(errs ...model.FieldError) Result {
	return Result{Success: false, Errors: errs}
}

// serialize writes the EXTF header row, the column header and the data
// rows. Text fields are quoted, numeric fields are not, the separator
// is a semicolon and rows end in CRLF. The byte output depends only on
// the entries and the options, never on the wall clock.
func serialize(entries []DatevEntry, opts Options) ([]byte, error) {
	var buf bytes.Buffer

	writeRow(&buf, headerRow(opts.Config))
	writeRow(&buf, columnHeader(opts.Format))
	for _, e := range entries {
		writeRow(&buf, entryRow(e, opts.Format))
	}

	switch strings.ToLower(opts.Config.Encoding) {
	case "", EncodingUTF8:
		return append(append([]byte{}, utf8BOM...), buf.Bytes()...), nil
	case EncodingCP1252:
		encoded, err := charmap.Windows1252.NewEncoder().Bytes(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("cp1252 encoding failed: %w", err)
		}
		return encoded, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", opts.Config.Encoding)
	}
}

// headerRow builds the fixed EXTF 700 metadata row for a
// Buchungsstapel (category 21, format version 13).
func headerRow(cfg HeaderConfig) []string {
	created := ""
	if !cfg.CreatedAt.IsZero() {
		created = cfg.CreatedAt.Format("20060102150405") + "000"
	}
	bezeichnung := cfg.Bezeichnung
	if bezeichnung == "" {
		bezeichnung = "Buchungsstapel"
	}
	sachkontenlaenge := cfg.Sachkontenlaenge
	if sachkontenlaenge == 0 {
		sachkontenlaenge = 4
	}
	return []string{
		quote("EXTF"),
		"700",
		"21",
		quote("Buchungsstapel"),
		"13",
		created,
		"",
		quote(""),
		quote(""),
		quote(""),
		cfg.Beraternummer,
		cfg.Mandantennummer,
		dateField(cfg.Wirtschaftsjahresbeginn),
		fmt.Sprintf("%d", sachkontenlaenge),
		dateField(cfg.DateFrom),
		dateField(cfg.DateTo),
		quote(bezeichnung),
		quote(""),
		"1",
		"0",
		"0",
		quote("EUR"),
	}
}

var standardColumns = []string{
	"Umsatz (ohne Soll/Haben-Kz)",
	"Soll/Haben-Kennzeichen",
	"WKZ Umsatz",
	"Konto",
	"Gegenkonto (ohne BU-Schlüssel)",
	"BU-Schlüssel",
	"Belegdatum",
	"Belegfeld 1",
	"Buchungstext",
}

var extendedColumns = append(standardColumns[:len(standardColumns):len(standardColumns)],
	"KOST1 - Kostenstelle",
	"KOST2 - Kostenträger",
)

func columnHeader(format string) []string {
	cols := standardColumns
	if format == FormatExtended {
		cols = extendedColumns
	}
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = quote(c)
	}
	return row
}

func entryRow(e DatevEntry, format string) []string {
	currency := e.Currency
	if currency == "" {
		currency = "EUR"
	}
	row := []string{
		germanDecimal(e.Amount.StringFixed(2)),
		quote(e.DebitCredit),
		quote(currency),
		e.Account,
		e.CounterAccount,
		quote(e.TaxKey),
		e.PostingDate.Format("0201"),
		quote(truncate(e.DocumentNumber, 36)),
		quote(truncate(e.Description, 60)),
	}
	if format == FormatExtended {
		row = append(row, quote(e.CostCenter), quote(e.CostUnit))
	}
	return row
}

func writeRow(buf *bytes.Buffer, fields []string) {
	buf.WriteString(strings.Join(fields, ";"))
	buf.WriteString("\r\n")
}

// quote wraps a text field in double quotes, doubling embedded ones.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// germanDecimal rewrites a dot decimal into the comma form DATEV wants.
func germanDecimal(s string) string {
	return strings.Replace(s, ".", ",", 1)
}

func dateField(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("20060102")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// exportFilename picks the output name: explicit override, structured
// name with advisor, client and period, or a generated one.
func exportFilename(opts Options) string {
	if opts.Filename != "" {
		return opts.Filename
	}
	cfg := opts.Config
	if opts.StructuredFilename && cfg.Beraternummer != "" && cfg.Mandantennummer != "" {
		return fmt.Sprintf("EXTF_%s_%s_%s_%s.csv",
			cfg.Beraternummer, cfg.Mandantennummer,
			dateField(cfg.DateFrom), dateField(cfg.DateTo))
	}
	return fmt.Sprintf("EXTF_Buchungsstapel_%s.csv", uuid.NewString())
}
