package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung-engine/internal/validate"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Check invoices against business rules and GoBD",
	Long: `Parse invoice files and run the cross-field business checks plus the
GoBD compliance rules.

With --strict, GoBD warnings also fail validation instead of staying
advisory.

Examples:
  xrechnung-engine validate invoice.xml
  xrechnung-engine validate *.xml --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "GoBD warnings also fail validation")
}

// ValidateResult holds validation output for one file.
type ValidateResult struct {
	File       string                     `json:"file"`
	Valid      bool                       `json:"valid"`
	Issues     []validate.Issue           `json:"issues,omitempty"`
	Compliance *validate.ComplianceResult `json:"gobd,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	anyInvalid := false
	results := make([]*ValidateResult, 0, len(files))
	for _, file := range files {
		parsed := parseFile(file)
		result := &ValidateResult{File: file}
		if parsed.Error != "" {
			result.Error = parsed.Error
			anyInvalid = true
			results = append(results, result)
			continue
		}

		tolerance := decimal.NewFromFloat(cfg.GoBDTolerance)
		issues := validate.CheckBusinessRulesTolerance(parsed.Invoice, tolerance)
		compliance := validate.CheckCompliance(parsed.Invoice, validate.GoBDOptions{
			Tolerance: tolerance,
		})

		result.Issues = issues
		result.Compliance = &compliance
		result.Valid = len(issues) == 0 && compliance.IsCompliant
		if validateStrict && len(compliance.Warnings) > 0 {
			result.Valid = false
		}
		if !result.Valid {
			anyInvalid = true
		}
		results = append(results, result)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return err
	}

	if anyInvalid {
		return fmt.Errorf("validation failed for at least one invoice")
	}
	return nil
}
