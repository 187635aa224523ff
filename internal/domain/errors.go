package domain

import "errors"

// Discovery errors.
var (
	// ErrSessionUnavailable means no render session could be created; the run cannot proceed.
	ErrSessionUnavailable = errors.New("render session unavailable")

	// ErrFilterApplicationFailed is non-fatal: pagination continues against whatever filter state was reached.
	ErrFilterApplicationFailed = errors.New("filter application failed")

	// ErrExtractionUnavailable means the table body never rendered; the run yields no records.
	ErrExtractionUnavailable = errors.New("table extraction unavailable")

	// ErrRowSkipped marks a row without a document link or with missing columns.
	ErrRowSkipped = errors.New("row skipped")

	// ErrPaginationBoundExceeded is reported when the page cap stops the loop.
	ErrPaginationBoundExceeded = errors.New("pagination bound exceeded")

	// ErrPaginationStalled is non-fatal: the next page never rendered, records collected so far are kept.
	ErrPaginationStalled = errors.New("pagination stalled")

	// ErrInvalidQuery rejects a malformed date range or origin.
	ErrInvalidQuery = errors.New("invalid query")
)

// Delivery and enrichment errors.
var (
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrEnrichmentFailed = errors.New("enrichment failed")
)
