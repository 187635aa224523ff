package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/scanner"
)

// Trailing column layout, counted from the end of each row so tables with
// extra leading columns still line up.
const (
	colReleaseDate = iota
	colAppealNumber
	colOrigin
	colCaseName
	colStatus
	trailingColumns
)

var dateLayouts = []string{scanner.DateLayout, "1/2/2006", time.DateOnly}

// TableExtractor turns rendered opinions-table rows into case records.
type TableExtractor struct {
	base   *url.URL
	logger *slog.Logger
}

var _ scanner.PageExtractor = (*TableExtractor)(nil)

// NewTableExtractor resolves relative document links against baseURL.
func NewTableExtractor(baseURL string, logger *slog.Logger) (*TableExtractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %s: %w", baseURL, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TableExtractor{base: base, logger: logger}, nil
}

// ExtractPage parses a <tbody> fragment. Bad rows are skipped, never fatal.
func (e *TableExtractor) ExtractPage(html string) domain.PageResult {
	// Table-section elements are dropped by the HTML parser outside a table.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table>" + html + "</table>"))
	if err != nil {
		e.logger.Warn("cannot parse table body", "error", err)
		return nil
	}

	var page domain.PageResult
	doc.Find("tr").Each(func(i int, tr *goquery.Selection) {
		record, err := e.ExtractRow(tr)
		if err != nil {
			e.logger.Debug("row skipped", "row", i, "reason", err)
			return
		}
		page = append(page, record)
	})
	return page
}

// ExtractRow reads the trailing columns of tr. Rows without a document link
// or with too few cells return domain.ErrRowSkipped.
func (e *TableExtractor) ExtractRow(tr *goquery.Selection) (domain.CaseRecord, error) {
	cells := tr.ChildrenFiltered("td")
	if cells.Length() < trailingColumns {
		return domain.CaseRecord{}, fmt.Errorf("%w: missing columns (have %d, need %d)",
			domain.ErrRowSkipped, cells.Length(), trailingColumns)
	}
	offset := cells.Length() - trailingColumns
	cell := func(col int) *goquery.Selection { return cells.Eq(offset + col) }

	link := cell(colCaseName).Find("a[href]").First()
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if link.Length() == 0 || href == "" {
		return domain.CaseRecord{}, fmt.Errorf("%w: no document link", domain.ErrRowSkipped)
	}

	ref, err := url.Parse(href)
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("%w: bad document link %q", domain.ErrRowSkipped, href)
	}

	return domain.CaseRecord{
		ReleaseDate:  parseReleaseDate(text(cell(colReleaseDate))),
		AppealNumber: text(cell(colAppealNumber)),
		CaseName:     text(link),
		Origin:       text(cell(colOrigin)),
		Status:       text(cell(colStatus)),
		DocumentURL:  e.base.ResolveReference(ref).String(),
	}, nil
}

// parseReleaseDate returns the zero time when the cell is not a known date.
func parseReleaseDate(raw string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
