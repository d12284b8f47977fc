// Package extract turns uploaded document bytes into plain text for
// segmentation. Only PDF is supported.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// Extractor converts a named document into plain text.
type Extractor interface {
	// Extract returns the text of data. filename selects the format by its
	// extension; unsupported types return a validation error.
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// IsPDF reports whether filename has a .pdf extension (case-insensitive).
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// PDFExtractor extracts the text layer of PDF documents.
type PDFExtractor struct{}

// NewPDFExtractor returns a PDFExtractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// Extract reads every page's text layer in page order. Scanned PDFs without
// a text layer yield an empty string.
func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) (text string, err error) {
	if !IsPDF(filename) {
		return "", apperr.Validation("extract: unsupported type %q", filepath.Ext(filename))
	}
	if len(data) == 0 {
		return "", apperr.Validation("extract: %s is empty", filename)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", apperr.Validation("extract: unreadable pdf %s: %v", filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Validation("extract: unreadable pdf %s: %v", filename, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", apperr.Validation("extract: read text of %s: %v", filename, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("extract: copy text of %s: %w", filename, err)
	}
	return buf.String(), nil
}
