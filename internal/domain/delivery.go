package domain

import (
	"fmt"
	"time"
)

// LedgerEntry is an outstanding document URL and how many deliveries of it have failed.
type LedgerEntry struct {
	URL      string
	Attempts int
}

// Ledger is the ordered set of document URLs not yet acknowledged by the sink.
type Ledger struct {
	entries []LedgerEntry
	index   map[string]int
}

// NewLedger builds a ledger, keeping the first occurrence of each URL.
func NewLedger(entries ...LedgerEntry) Ledger {
	l := Ledger{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e.URL == "" {
			continue
		}
		if _, ok := l.index[e.URL]; ok {
			continue
		}
		l.index[e.URL] = len(l.entries)
		l.entries = append(l.entries, e)
	}
	return l
}

func (l Ledger) Len() int { return len(l.entries) }

func (l Ledger) Contains(url string) bool {
	_, ok := l.index[url]
	return ok
}

// Entry returns the entry for url, if any.
func (l Ledger) Entry(url string) (LedgerEntry, bool) {
	i, ok := l.index[url]
	if !ok {
		return LedgerEntry{}, false
	}
	return l.entries[i], true
}

// Entries returns a copy of the entries in ledger order.
func (l Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l Ledger) URLs() []string {
	urls := make([]string, len(l.entries))
	for i, e := range l.entries {
		urls[i] = e.URL
	}
	return urls
}

// DeliveryStatus is the per-URL result of a delivery pass.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusSkipped   DeliveryStatus = "skipped"
)

// DeliveryOutcome is produced once per URL in a delivery pass. It is reporting
// only; the ledger carries retry state.
type DeliveryOutcome struct {
	DocumentURL string         `json:"document_url"`
	Status      DeliveryStatus `json:"status"`
	Detail      string         `json:"detail,omitempty"`
	Attempts    int            `json:"attempts"`
	Dropped     bool           `json:"dropped,omitempty"`
}

// RunSummary is what a caller sees of one discovery or flush run.
type RunSummary struct {
	RunID       string            `json:"run_id"`
	Query       string            `json:"query,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Records     []CaseRecord      `json:"results"`
	Outcomes    []DeliveryOutcome `json:"outcomes"`
	FailedURLs  []string          `json:"failed_urls"`
	DroppedURLs []string          `json:"dropped_urls,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	Outstanding int               `json:"outstanding"`
}

// ApplyOutcomes stores outcomes and derives the failed and dropped URL lists.
func (s *RunSummary) ApplyOutcomes(outcomes []DeliveryOutcome) {
	s.Outcomes = outcomes
	s.FailedURLs = []string{}
	s.DroppedURLs = nil
	for _, o := range outcomes {
		if o.Status != StatusFailed {
			continue
		}
		s.FailedURLs = append(s.FailedURLs, o.DocumentURL)
		if o.Dropped {
			s.DroppedURLs = append(s.DroppedURLs, o.DocumentURL)
		}
	}
}

func (s RunSummary) count(status DeliveryStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (s RunSummary) Delivered() int { return s.count(StatusDelivered) }
func (s RunSummary) Failed() int    { return s.count(StatusFailed) }
func (s RunSummary) Skipped() int   { return s.count(StatusSkipped) }

// Message renders the human summary, e.g. "3 delivered, 2 failed".
func (s RunSummary) Message() string {
	msg := fmt.Sprintf("%d delivered, %d failed", s.Delivered(), s.Failed())
	if skipped := s.Skipped(); skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", skipped)
	}
	return msg
}

// PDFLinks lists the document URLs discovered in this run.
func (s RunSummary) PDFLinks() []string {
	return PageResult(s.Records).URLs()
}
