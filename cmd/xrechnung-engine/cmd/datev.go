package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung-engine/internal/datev"
	"github.com/rezonia/xrechnung-engine/internal/model"
)

var (
	datevFormat   string
	datevDetailed bool
	datevOut      string
	datevPreview  bool
)

var datevCmd = &cobra.Command{
	Use:   "datev [files...]",
	Short: "Export invoices as a DATEV Buchungsstapel CSV",
	Long: `Parse invoice files and export them as one DATEV EXTF CSV batch.

Every invoice must pass strict GoBD compliance; a single violation
anywhere in the batch blocks the export. Use --preview for a dry run
that reports entry counts and totals without writing anything.

Examples:
  xrechnung-engine datev invoice.xml --out buchungen.csv
  xrechnung-engine datev *.xml --detailed --format extended
  xrechnung-engine datev invoices/ --preview`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDatev,
}

func init() {
	rootCmd.AddCommand(datevCmd)

	datevCmd.Flags().StringVar(&datevFormat, "format-variant", datev.FormatStandard, "CSV variant (standard, extended)")
	datevCmd.Flags().BoolVar(&datevDetailed, "detailed", false, "One posting per line item")
	datevCmd.Flags().StringVar(&datevOut, "out", "", "Output file (default: generated name)")
	datevCmd.Flags().BoolVar(&datevPreview, "preview", false, "Dry run, print the export summary only")
}

func runDatev(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to export")
	}

	invoices := make([]*model.Invoice, 0, len(files))
	for _, file := range files {
		parsed := parseFile(file)
		if parsed.Error != "" {
			return fmt.Errorf("%s: %s", file, parsed.Error)
		}
		invoices = append(invoices, parsed.Invoice)
	}

	opts := datev.Options{
		Format:    datevFormat,
		Detailed:  datevDetailed,
		Config:    cfg.DatevHeader(),
		Filename:  datevOut,
		Tolerance: decimal.NewFromFloat(cfg.GoBDTolerance),
	}

	if datevPreview {
		summary := datev.PreviewExport(invoices, opts)
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	result := datev.FormatInvoices(invoices, opts)
	if !result.Success {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s: %s\n", e.Path, e.Message)
		}
		return fmt.Errorf("export blocked, %d defects", len(result.Errors))
	}

	if err := os.WriteFile(result.Filename, result.Content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", result.Filename, err)
	}

	printVerbose("Wrote %d entries\n", result.EntryCount)
	fmt.Println(result.Filename)
	return nil
}
