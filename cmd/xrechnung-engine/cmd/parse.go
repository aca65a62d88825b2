package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/parser/ocr"
	"github.com/rezonia/xrechnung-engine/internal/parser/pdf"
	xmlparser "github.com/rezonia/xrechnung-engine/internal/parser/xml"
)

var (
	parseOutput  string
	parseStrict  bool
	parseTimeout time.Duration
)

var parseCmd = &cobra.Command{
	Use:   "parse [files...]",
	Short: "Parse invoice files into the canonical model",
	Long: `Parse one or more invoice files and print the canonical invoice data.

Supported inputs:
  - XML: CII or UBL, auto-detected by namespace
  - PDF: ZUGFeRD/Factur-X containers with embedded invoice XML
  - JSON: OCR field output

Examples:
  xrechnung-engine parse invoice.xml
  xrechnung-engine parse invoice.pdf --strict
  xrechnung-engine parse *.xml -o results.json
  xrechnung-engine parse invoices/ -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "Output file (default: stdout)")
	parseCmd.Flags().BoolVar(&parseStrict, "strict", false, "Treat completeness warnings as errors")
	parseCmd.Flags().DurationVar(&parseTimeout, "timeout", 30*time.Second, "Parse timeout per file")
}

// ParseResult holds the outcome for a single file.
type ParseResult struct {
	File     string         `json:"file"`
	Invoice  *model.Invoice `json:"invoice,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func runParse(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to parse")
	}

	printVerbose("Found %d files to parse\n", len(files))

	results := make([]*ParseResult, 0, len(files))
	for _, file := range files {
		printVerbose("Parsing: %s\n", file)
		result := parseFile(file)
		results = append(results, result)
		if result.Error != "" {
			printVerbose("  Error: %s\n", result.Error)
		}
	}

	return outputParseResults(results)
}

func parseFile(path string) *ParseResult {
	result := &ParseResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout)
	defer cancel()

	opts := xmlparser.DefaultOptions()
	opts.Strict = parseStrict

	var inv *model.Invoice
	var warnings []string

	switch {
	case pdf.IsZugferdPDF(data):
		inv, warnings, err = xmlparser.ParseZugferd(ctx, data, opts)
	case looksLikeJSON(data):
		ocrResult := ocr.ParseInvoiceData(data)
		if !ocrResult.Success {
			for _, e := range ocrResult.Errors {
				warnings = append(warnings, fmt.Sprintf("%s: %s", e.Path, e.Message))
			}
			result.Warnings = warnings
			result.Error = "OCR data could not be normalized"
			return result
		}
		inv = ocrResult.ToInvoice()
	default:
		inv, warnings, err = xmlparser.Parse(ctx, data, opts)
	}

	if err != nil {
		result.Warnings = warnings
		result.Error = err.Error()
		return result
	}

	inv.SourceFile = path
	result.Invoice = inv
	result.Warnings = warnings
	return result
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}

		if len(matches) == 0 {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			if info.IsDir() {
				err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if !info.IsDir() && isSupportedFile(path) {
						files = append(files, path)
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
			} else {
				files = append(files, arg)
			}
		} else {
			for _, match := range matches {
				info, err := os.Stat(match)
				if err != nil {
					continue
				}
				if !info.IsDir() && isSupportedFile(match) {
					files = append(files, match)
				}
			}
		}
	}

	return files, nil
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".pdf", ".json":
		return true
	default:
		return false
	}
}

func outputParseResults(results []*ParseResult) error {
	writer := os.Stdout
	if parseOutput != "" {
		f, err := os.Create(parseOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	case "table":
		return parseResultTable(writer, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func parseResultTable(w *os.File, results []*ParseResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tNUMBER\tDATE\tSELLER\tGROSS\tFLAVOR")
	fmt.Fprintln(tw, "----\t------\t----\t------\t-----\t------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\n", r.File, r.Error)
			continue
		}
		if r.Invoice != nil {
			date := ""
			if !r.Invoice.IssueDate.IsZero() {
				date = r.Invoice.IssueDate.Format("2006-01-02")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.File,
				r.Invoice.DocumentID,
				date,
				r.Invoice.Seller.Name,
				r.Invoice.Totals.GrossAmount.StringFixed(2),
				r.Invoice.Flavor,
			)
		}
	}

	return tw.Flush()
}
