package scanner

import (
	"time"

	"OpinionsScanner/internal/domain"
)

// Selectors locate the controls of the opinions table. Defaults match the
// wpDataTables markup used by the court site.
type Selectors struct {
	FromDate     string
	ToDate       string
	OriginButton string
	OriginMenu   string
	// OriginOption is a fmt template taking the 1-based option position.
	OriginOption string
	TableBody    string
	Next         string
	Processing   string
}

// DefaultSelectors returns selectors for table_1 on the opinions page.
func DefaultSelectors() Selectors {
	return Selectors{
		FromDate:     "#table_1_range_from_0",
		ToDate:       "#table_1_range_to_0",
		OriginButton: "#table_1_2_filter > span > div > button",
		OriginMenu:   "#table_1_2_filter > span > div > div > ul",
		OriginOption: "#table_1_2_filter > span > div > div > ul > li:nth-child(%d) > a",
		TableBody:    "#table_1 > tbody",
		Next:         "#table_1_next",
		Processing:   "#table_1_processing",
	}
}

// Timeouts bound every wait against the render session.
type Timeouts struct {
	Interaction time.Duration
	Table       time.Duration
	Settle      time.Duration
}

// DefaultTimeouts mirrors the waits the site needs in practice.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Interaction: 10 * time.Second,
		Table:       10 * time.Second,
		Settle:      5 * time.Second,
	}
}

// DefaultPageBound caps pagination when no bound is configured.
const DefaultPageBound = 500

// PageExtractor turns the rendered table body into records.
type PageExtractor interface {
	ExtractPage(html string) domain.PageResult
}
