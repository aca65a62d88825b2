package model

import "fmt"

// ParseError represents parsing errors with dialect context
type ParseError struct {
	Flavor  Flavor
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Flavor, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Flavor, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(flavor Flavor, field, message string, cause error) *ParseError {
	return &ParseError{
		Flavor:  flavor,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// XMLValidationError signals malformed or non-conformant XML.
type XMLValidationError struct {
	Flavor  Flavor
	Message string
	Cause   error
}

func (e *XMLValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("xml validation failed [%s]: %s (%v)", e.Flavor, e.Message, e.Cause)
	}
	return fmt.Sprintf("xml validation failed [%s]: %s", e.Flavor, e.Message)
}

func (e *XMLValidationError) Unwrap() error {
	return e.Cause
}

// NewXMLValidationError creates a new XML validation error
func NewXMLValidationError(flavor Flavor, message string, cause error) *XMLValidationError {
	return &XMLValidationError{Flavor: flavor, Message: message, Cause: cause}
}

// PDFExtractionError signals a buffer that is not a PDF or a PDF without
// an embedded invoice attachment.
type PDFExtractionError struct {
	Message string
	Cause   error
}

func (e *PDFExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pdf extraction failed: %s (%v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("pdf extraction failed: %s", e.Message)
}

func (e *PDFExtractionError) Unwrap() error {
	return e.Cause
}

// NewPDFExtractionError creates a new PDF extraction error
func NewPDFExtractionError(message string, cause error) *PDFExtractionError {
	return &PDFExtractionError{Message: message, Cause: cause}
}

// UnsupportedFormatError signals content matched by no known dialect.
type UnsupportedFormatError struct {
	Message string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %s", e.Message)
}

// NewUnsupportedFormatError creates a new unsupported format error
func NewUnsupportedFormatError(message string) *UnsupportedFormatError {
	return &UnsupportedFormatError{Message: message}
}

// GeneratorError signals a missing required field or failed schema check
// while producing XRechnung output.
type GeneratorError struct {
	Field   string
	Message string
}

func (e *GeneratorError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("xrechnung generation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("xrechnung generation failed: %s", e.Message)
}

// NewGeneratorError creates a new generator error
func NewGeneratorError(field, message string) *GeneratorError {
	return &GeneratorError{Field: field, Message: message}
}

// FieldError is one defect in a returned (not thrown) validation envelope.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
