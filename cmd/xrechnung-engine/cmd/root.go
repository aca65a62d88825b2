package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung-engine/internal/config"
	"github.com/rezonia/xrechnung-engine/internal/logger"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "xrechnung-engine",
	Short: "Process German e-invoices (CII, UBL, ZUGFeRD)",
	Long: `XRechnung Engine is a CLI tool for German e-invoice interchange.

Supports:
  - XML dialects: UN/CEFACT CII and OASIS UBL
  - ZUGFeRD/Factur-X PDF containers with embedded invoice XML
  - OCR field normalization from loosely typed JSON
  - GoBD compliance checks, DATEV export, XRechnung 3.0 generation
  - VIES VAT-ID verification

Examples:
  # Parse an invoice (XML, PDF or OCR JSON, auto-detected)
  xrechnung-engine parse invoice.xml

  # Validate against business rules and GoBD
  xrechnung-engine validate invoice.xml --strict

  # Export a batch as DATEV CSV
  xrechnung-engine datev *.xml --out buchungen.csv

  # Generate XRechnung XML from a parsed invoice
  xrechnung-engine xrechnung invoice.pdf`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	cfg = config.Load()

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	if err := logger.Setup(logger.Config{
		Level:  level,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
	}
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
