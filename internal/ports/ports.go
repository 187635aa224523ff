package ports

import (
	"context"
	"time"

	"OpinionsScanner/internal/domain"
)

// RenderSession is a live browser tab on the opinions page. Every call is
// bounded by the context; waits additionally take an explicit timeout.
type RenderSession interface {
	Navigate(ctx context.Context, url string) error
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error
	WaitHidden(ctx context.Context, selector string, timeout time.Duration) error
	// SetValue clears the input, types value and submits it with Enter.
	SetValue(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	PressEscape(ctx context.Context) error
	ScrollToBottom(ctx context.Context) error
	OuterHTML(ctx context.Context, selector string) (string, error)
	// Attribute reports the attribute value and whether the element exists.
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	Close() error
}

// SessionFactory opens a fresh render session per run.
type SessionFactory interface {
	Open(ctx context.Context) (RenderSession, error)
}

// CaseSource discovers case records for a query. Errors are reserved for
// conditions that leave no usable result.
type CaseSource interface {
	Discover(ctx context.Context, query domain.Query) (domain.Discovery, error)
}

// Sink acknowledges a discovered document URL. A nil error means an explicit success signal.
type Sink interface {
	Deliver(ctx context.Context, documentURL string) error
}

// LedgerStore hands out exclusive access to the outstanding ledger.
type LedgerStore interface {
	Acquire(ctx context.Context) (LedgerHandle, error)
}

// LedgerHandle is held for one read-modify-persist cycle.
type LedgerHandle interface {
	Load(ctx context.Context) (domain.Ledger, error)
	Save(ctx context.Context, ledger domain.Ledger) error
	Release() error
}

// DocumentFetcher downloads a document body.
type DocumentFetcher interface {
	Fetch(ctx context.Context, documentURL string) ([]byte, error)
}

// DocumentReader extracts plain text from the first maxPages pages of a PDF.
// Data that is not a PDF is an error.
type DocumentReader interface {
	PlainText(data []byte, maxPages int) (string, error)
}

// TextToTags asks a language model for a short topic list.
type TextToTags interface {
	ExtractTags(ctx context.Context, text string) ([]string, error)
}

// TagSink creates a tag downstream; an existing tag counts as success.
type TagSink interface {
	CreateTag(ctx context.Context, name string) error
}

// Notifier publishes a report of a finished run.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
