package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung-engine/internal/xrechnung"
)

var xrechnungOut string

var xrechnungCmd = &cobra.Command{
	Use:   "xrechnung [file]",
	Short: "Generate XRechnung 3.0 CII XML from an invoice",
	Long: `Parse an invoice file and re-emit it as an XRechnung 3.0 CII
document. The generated XML is checked for structural conformance
before it is written.

Examples:
  xrechnung-engine xrechnung invoice.pdf
  xrechnung-engine xrechnung invoice.json --out xrechnung.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runXRechnung,
}

func init() {
	rootCmd.AddCommand(xrechnungCmd)

	xrechnungCmd.Flags().StringVar(&xrechnungOut, "out", "", "Output file (default: <input>.xrechnung.xml)")
}

func runXRechnung(cmd *cobra.Command, args []string) error {
	parsed := parseFile(args[0])
	if parsed.Error != "" {
		return fmt.Errorf("%s: %s", args[0], parsed.Error)
	}

	out, err := xrechnung.NewGenerator().Generate(parsed.Invoice)
	if err != nil {
		return err
	}

	target := xrechnungOut
	if target == "" {
		base := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
		target = base + ".xrechnung.xml"
	}

	if err := os.WriteFile(target, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	fmt.Println(target)
	return nil
}
