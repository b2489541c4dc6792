// Package fetcher reads tabular survey exports (XLSX and CSV) into rows.
package fetcher

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedSheet is returned for uploads that are neither XLSX nor CSV.
var ErrUnsupportedSheet = eris.New("fetcher: unsupported spreadsheet format")

// IsSheet reports whether name has a spreadsheet extension ReadSheet accepts.
func IsSheet(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".csv":
		return true
	default:
		return false
	}
}

// ReadSheet parses the first sheet of an uploaded document, choosing the
// parser from the file extension.
func ReadSheet(ctx context.Context, name string, data []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return ReadXLSXBytes(data, XLSXOptions{})
	case ".csv":
		data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
		return ReadCSV(ctx, bytes.NewReader(data), CSVOptions{
			Delimiter:  SniffDelimiter(data),
			LazyQuotes: true,
			TrimSpace:  true,
		})
	default:
		return nil, eris.Wrapf(ErrUnsupportedSheet, "fetcher: %s", name)
	}
}
