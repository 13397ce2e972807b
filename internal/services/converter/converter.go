// Package converter turns PDF bytes into page-segmented XML.
//
// Text comes from github.com/ledongthuc/pdf, a pure Go reader, so the
// binary has no CGO or external tool dependencies. Upload validation and
// page counting use pdfcpu, which is stricter about document structure.
//
// Only the embedded text layer is read; scanned (image-only) PDFs convert
// to pages with no text.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// Converter converts a PDF into XML at the requested structure level.
type Converter interface {
	Convert(ctx context.Context, data []byte, structure models.StructureType) (*Result, error)
}

// Result is the output of one conversion.
type Result struct {
	XML        string
	PageCount  int
	Statistics models.Statistics
	Metadata   Metadata
}

// Metadata holds the PDF document information dictionary.
type Metadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
}

// PDFConverter is the production Converter.
type PDFConverter struct {
	logger *logrus.Logger
}

// New creates a PDFConverter.
func New(logger *logrus.Logger) *PDFConverter {
	return &PDFConverter{logger: logger}
}

// Convert extracts every page of data and renders the XML document.
func (c *PDFConverter) Convert(ctx context.Context, data []byte, structure models.StructureType) (*Result, error) {
	start := time.Now()

	pages, meta, err := extract(ctx, data, c.logger)
	if err != nil {
		return nil, err
	}

	doc, stats := BuildDocument(pages, structure, meta)
	stats.ProcessingTime = time.Since(start).Milliseconds()

	c.logger.WithFields(logrus.Fields{
		"pages":     len(pages),
		"structure": structure,
		"words":     stats.WordCount,
		"ms":        stats.ProcessingTime,
	}).Debug("📄 PDF converted")

	return &Result{
		XML:        doc,
		PageCount:  len(pages),
		Statistics: stats,
		Metadata:   meta,
	}, nil
}

// ValidatePDF checks if the data looks like a PDF by checking the magic bytes.
func ValidatePDF(data []byte) bool {
	// PDF files start with "%PDF-"
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// PageCount parses the document structure and returns the number of pages.
// It rejects files that carry the PDF header but are otherwise unreadable.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("unreadable PDF: %w", err)
	}
	return n, nil
}
