package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"OpinionsScanner/internal/ports"
)

// PDFMagic prefixes every PDF file.
var PDFMagic = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF magic.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, PDFMagic)
}

// PDFReader extracts text with ledongthuc/pdf.
type PDFReader struct{}

var _ ports.DocumentReader = PDFReader{}

// PlainText concatenates the text of pages 1..maxPages. Pages that fail to
// decode are skipped; an error is returned only when nothing could be read.
func (PDFReader) PlainText(data []byte, maxPages int) (text string, err error) {
	if !IsPDF(data) {
		return "", errors.New("not a pdf document")
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var (
		sb      strings.Builder
		pageErr error
	)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			pageErr = fmt.Errorf("page %d: %w", i, err)
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}

	text = strings.TrimSpace(sb.String())
	if text == "" && pageErr != nil {
		return "", pageErr
	}
	return text, nil
}
