// Package doctext turns uploaded interview documents (PDF, DOCX, plain
// text) into transcript text.
package doctext

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insights-cli/internal/config"
)

// ErrUnsupportedDocument is returned for files that are not PDF, DOCX, or text.
var ErrUnsupportedDocument = eris.New("doctext: unsupported document type")

// PDFExtractor extracts text content from PDF bytes.
type PDFExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// NewPDFExtractor creates a PDFExtractor based on config.
func NewPDFExtractor(cfg config.DocumentConfig) (PDFExtractor, error) {
	switch cfg.PDFProvider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("doctext: mistral provider requires documents.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("doctext: unknown pdf provider %q", cfg.PDFProvider)
	}
}

// Reader dispatches a document to the right extractor by file extension.
type Reader struct {
	pdf PDFExtractor
}

// NewReader creates a Reader. pdf may be nil, in which case PDFs are rejected.
func NewReader(pdf PDFExtractor) *Reader {
	return &Reader{pdf: pdf}
}

// IsDocument reports whether name has an extension the Reader handles.
func IsDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".txt", ".md":
		return true
	default:
		return false
	}
}

// Text extracts and normalizes the text of one document.
func (r *Reader) Text(ctx context.Context, name string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		text = string(data)
	case ".docx":
		text, err = DocxText(data)
	case ".pdf":
		if r.pdf == nil {
			return "", eris.Wrapf(ErrUnsupportedDocument, "doctext: no pdf extractor for %s", name)
		}
		text, err = r.pdf.ExtractText(ctx, data)
	default:
		return "", eris.Wrapf(ErrUnsupportedDocument, "doctext: %s", name)
	}
	if err != nil {
		return "", err
	}
	return Normalize(text), nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize converts line endings to \n, collapses runs of blank lines to a
// single blank line, and trims the result.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
