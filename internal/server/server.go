// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rezonia/xrechnung-engine/internal/datev"
	"github.com/rezonia/xrechnung-engine/internal/model"
	"github.com/rezonia/xrechnung-engine/internal/parser/ocr"
	"github.com/rezonia/xrechnung-engine/internal/parser/pdf"
	xmlparser "github.com/rezonia/xrechnung-engine/internal/parser/xml"
	"github.com/rezonia/xrechnung-engine/internal/validate"
	"github.com/rezonia/xrechnung-engine/internal/vat"
	"github.com/rezonia/xrechnung-engine/internal/xrechnung"
)

// Config holds server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
	Vies         vat.Config
	// GoBDTolerance overrides the sum tolerance of the compliance
	// checks; zero keeps the default.
	GoBDTolerance float64
}

// Server is the HTTP API server.
type Server struct {
	config    *Config
	router    *gin.Engine
	vies      *vat.Validator
	generator *xrechnung.Generator
	tolerance decimal.Decimal
}

// NewServer creates an API server.
func NewServer(config *Config) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{
		config:    config,
		router:    router,
		vies:      vat.New(config.Vies),
		generator: xrechnung.NewGenerator(),
		tolerance: decimal.NewFromFloat(config.GoBDTolerance),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/parse/xml", s.handleParseXML)
		v1.POST("/parse/pdf", s.handleParsePDF)
		v1.POST("/parse/ocr", s.handleParseOCR)
		v1.POST("/detect", s.handleDetect)

		v1.POST("/validate", s.handleValidate)
		v1.POST("/vat/check", s.handleVATCheck)

		v1.POST("/export/datev", s.handleDatevExport)
		v1.POST("/export/datev/preview", s.handleDatevPreview)
		v1.POST("/generate/xrechnung", s.handleGenerateXRechnung)
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC(),
	})
}

func rawBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return body, true
}

func parseOptions(c *gin.Context) xmlparser.Options {
	opts := xmlparser.DefaultOptions()
	if c.Query("strict") == "true" {
		opts.Strict = true
	}
	if c.Query("validate") == "false" {
		opts.Validate = false
	}
	return opts
}

func (s *Server) handleParseXML(c *gin.Context) {
	body, ok := rawBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	inv, warnings, err := xmlparser.Parse(ctx, body, parseOptions(c))
	if err != nil {
		writeParseError(c, err, warnings)
		return
	}

	c.JSON(http.StatusOK, ParseResponse{
		Invoice:  inv,
		Flavor:   string(inv.Flavor),
		Warnings: warnings,
	})
}

func (s *Server) handleParsePDF(c *gin.Context) {
	body, ok := rawBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	inv, warnings, err := xmlparser.ParseZugferd(ctx, body, parseOptions(c))
	if err != nil {
		writeParseError(c, err, warnings)
		return
	}

	c.JSON(http.StatusOK, ParseResponse{
		Invoice:  inv,
		Flavor:   string(inv.Flavor),
		Warnings: warnings,
	})
}

func (s *Server) handleParseOCR(c *gin.Context) {
	body, ok := rawBody(c)
	if !ok {
		return
	}

	result := ocr.ParseInvoiceData(body)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"errors":  result.Errors,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"invoice":  result.ToInvoice(),
		"currency": result.Currency,
		"format":   result.Format,
	})
}

func (s *Server) handleDetect(c *gin.Context) {
	body, ok := rawBody(c)
	if !ok {
		return
	}

	if pdf.IsZugferdPDF(body) {
		c.JSON(http.StatusOK, DetectResponse{Flavor: string(model.FlavorUnknown), Zugferd: true})
		return
	}

	detection := xmlparser.DetectFlavor(body)
	c.JSON(http.StatusOK, DetectResponse{
		Flavor:  string(detection.Flavor),
		Version: detection.Version,
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice payload", Details: err.Error()})
		return
	}

	issues := validate.CheckBusinessRulesTolerance(&inv, s.tolerance)
	compliance := validate.CheckCompliance(&inv, validate.GoBDOptions{Tolerance: s.tolerance})

	valid := len(issues) == 0 && compliance.IsCompliant
	if c.Query("strict") == "true" && len(compliance.Warnings) > 0 {
		valid = false
	}

	c.JSON(http.StatusOK, ValidationResponse{
		Valid:      valid,
		Issues:     issues,
		Compliance: compliance,
	})
}

func (s *Server) handleVATCheck(c *gin.Context) {
	var req VATCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload", Details: err.Error()})
		return
	}

	result := s.vies.ValidateVATID(c.Request.Context(), req.VATID)
	c.JSON(http.StatusOK, result)
}

func (s *Server) bindExportRequest(c *gin.Context) (DatevExportRequest, datev.Options, bool) {
	var req DatevExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload", Details: err.Error()})
		return req, datev.Options{}, false
	}
	if len(req.Invoices) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no invoices in request"})
		return req, datev.Options{}, false
	}

	opts := datev.Options{
		Format:    req.Format,
		Detailed:  req.Detailed,
		Config:    req.Config,
		Filename:  req.Filename,
		Tolerance: s.tolerance,
	}
	if req.Mapping != nil {
		opts.Mapping = *req.Mapping
	}
	return req, opts, true
}

func (s *Server) handleDatevExport(c *gin.Context) {
	req, opts, ok := s.bindExportRequest(c)
	if !ok {
		return
	}

	result := datev.FormatInvoices(req.Invoices, opts)
	resp := DatevExportResponse{
		Success:    result.Success,
		Filename:   result.Filename,
		EntryCount: result.EntryCount,
		Errors:     result.Errors,
	}
	if result.Success {
		resp.Content = base64.StdEncoding.EncodeToString(result.Content)
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusUnprocessableEntity, resp)
}

func (s *Server) handleDatevPreview(c *gin.Context) {
	req, opts, ok := s.bindExportRequest(c)
	if !ok {
		return
	}

	summary := datev.PreviewExport(req.Invoices, opts)
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleGenerateXRechnung(c *gin.Context) {
	var inv model.Invoice
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice payload", Details: err.Error()})
		return
	}

	out, err := s.generator.Generate(&inv)
	if err != nil {
		var genErr *model.GeneratorError
		if errors.As(err, &genErr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "generation failed",
				Details: genErr.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/xml", out)
}

func writeParseError(c *gin.Context, err error, warnings []string) {
	status := http.StatusUnprocessableEntity
	var unsupported *model.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		status = http.StatusBadRequest
	}

	c.JSON(status, ErrorResponse{
		Error:    err.Error(),
		Warnings: warnings,
	})
}
