package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung-engine/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for the invoice engine.

The API provides:
  - POST /api/v1/parse/xml             - Parse CII/UBL XML
  - POST /api/v1/parse/pdf             - Parse ZUGFeRD/Factur-X PDF
  - POST /api/v1/parse/ocr             - Normalize OCR JSON
  - POST /api/v1/detect                - Detect dialect
  - POST /api/v1/validate              - Business rules + GoBD
  - POST /api/v1/vat/check             - VIES VAT-ID check
  - POST /api/v1/export/datev          - DATEV CSV export
  - POST /api/v1/export/datev/preview  - Export dry run
  - POST /api/v1/generate/xrechnung    - XRechnung 3.0 XML
  - GET  /health                       - Health check

Examples:
  xrechnung-engine serve
  xrechnung-engine serve --address :9000 --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default from SERVER_HOST/SERVER_PORT)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 2*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serverAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	}

	srv := server.NewServer(&server.Config{
		Address:       addr,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		Debug:         serverDebug,
		Vies:          cfg.ViesConfig(),
		GoBDTolerance: cfg.GoBDTolerance,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s\n", addr)
	if cfg.ViesEnabled {
		fmt.Println("VIES remote checks enabled")
	} else {
		fmt.Println("VIES remote checks disabled (syntax-only VAT validation)")
	}

	return srv.Run()
}
