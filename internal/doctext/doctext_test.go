package doctext

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/insights-cli/internal/config"
)

type stubPDF struct {
	text string
	err  error
	got  []byte
}

func (s *stubPDF) ExtractText(_ context.Context, pdf []byte) (string, error) {
	s.got = pdf
	return s.text, s.err
}

// buildDocx zips a minimal document.xml.
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(docxBody)
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewPDFExtractor(t *testing.T) {
	ext, err := NewPDFExtractor(config.DocumentConfig{PDFProvider: "local", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)

	ext, err = NewPDFExtractor(config.DocumentConfig{})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)

	_, err = NewPDFExtractor(config.DocumentConfig{PDFProvider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires documents.mistral_key")

	ext, err = NewPDFExtractor(config.DocumentConfig{PDFProvider: "mistral", MistralKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &MistralOCR{}, ext)

	_, err = NewPDFExtractor(config.DocumentConfig{PDFProvider: "tesseract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown pdf provider "tesseract"`)
}

func TestIsDocument(t *testing.T) {
	for _, name := range []string{"a.pdf", "b.DOCX", "c.txt", "d.md"} {
		assert.True(t, IsDocument(name), name)
	}
	for _, name := range []string{"a.doc", "b.xlsx", "c.json", "noext"} {
		assert.False(t, IsDocument(name), name)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb\n\nc", Normalize("  a\r\nb\r\n\r\n\r\n\r\nc \n"))
	assert.Equal(t, "x\ny", Normalize("x\ry"))
	assert.Equal(t, "", Normalize("\n\n\n"))
}

func TestReader_Text(t *testing.T) {
	pdf := &stubPDF{text: "Page 1\n\n\n\nPage 2"}
	r := NewReader(pdf)
	ctx := context.Background()

	text, err := r.Text(ctx, "notes.TXT", []byte("I liked it.\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "I liked it.", text)

	text, err = r.Text(ctx, "call.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "Page 1\n\nPage 2", text)
	assert.Equal(t, []byte("%PDF"), pdf.got)

	docx := buildDocx(t, `<w:p><w:r><w:t>Interviewer: hi</w:t></w:r></w:p><w:p><w:r><w:t>User:</w:t><w:tab/><w:t xml:space="preserve"> too slow</w:t></w:r></w:p>`)
	text, err = r.Text(ctx, "call.docx", docx)
	require.NoError(t, err)
	assert.Equal(t, "Interviewer: hi\nUser:\t too slow", text)
}

func TestReader_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewReader(nil).Text(ctx, "call.pdf", []byte("%PDF"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedDocument))

	_, err = NewReader(nil).Text(ctx, "slides.pptx", nil)
	assert.True(t, eris.Is(err, ErrUnsupportedDocument))

	boom := errors.New("pdftotext crashed")
	_, err = NewReader(&stubPDF{err: boom}).Text(ctx, "call.pdf", nil)
	assert.ErrorIs(t, err, boom)
}

func TestDocxText_Breaks(t *testing.T) {
	docx := buildDocx(t, `<w:p><w:r><w:t>line one</w:t><w:br/><w:t>line two</w:t></w:r></w:p><w:p/>`)
	text, err := DocxText(docx)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n\n", text)
}

func TestDocxText_Invalid(t *testing.T) {
	_, err := DocxText([]byte("not a zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open docx")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = DocxText(buf.Bytes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no word/document.xml")
}
