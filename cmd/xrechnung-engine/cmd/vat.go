package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung-engine/internal/vat"
)

var vatOffline bool

var vatCmd = &cobra.Command{
	Use:   "vat [vat-id]",
	Short: "Check a VAT ID against VIES",
	Long: `Validate a VAT identifier: local syntax checks plus an optional
live lookup against the EU VIES registry.

The check is advisory. When VIES is unreachable the result degrades
to "unavailable" instead of failing.

Examples:
  xrechnung-engine vat DE123456789
  xrechnung-engine vat "AT U12345678" --offline`,
	Args: cobra.ExactArgs(1),
	RunE: runVAT,
}

func init() {
	rootCmd.AddCommand(vatCmd)

	vatCmd.Flags().BoolVar(&vatOffline, "offline", false, "Skip the remote VIES call, syntax check only")
}

func runVAT(cmd *cobra.Command, args []string) error {
	viesCfg := cfg.ViesConfig()
	if vatOffline {
		viesCfg.Enabled = false
	}

	validator := vat.New(viesCfg)
	result := validator.ValidateVATID(context.Background(), args[0])

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
