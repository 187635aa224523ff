package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

type fakeSource struct {
	discovery domain.Discovery
	err       error
}

func (f fakeSource) Discover(context.Context, domain.Query) (domain.Discovery, error) {
	return f.discovery, f.err
}

func discovered(urls ...string) domain.Discovery {
	page := make(domain.PageResult, len(urls))
	for i, u := range urls {
		page[i] = domain.CaseRecord{AppealNumber: fmt.Sprintf("24-%d", i+1), DocumentURL: u}
	}
	return domain.Discovery{Result: domain.AggregateResult{}.Fold(page)}
}

// fakeSink fails every URL in fail and records each call.
type fakeSink struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
	order []string
	block chan struct{}
}

func newFakeSink(failing ...string) *fakeSink {
	s := &fakeSink{fail: map[string]bool{}, calls: map[string]int{}}
	for _, u := range failing {
		s.fail[u] = true
	}
	return s
}

func (s *fakeSink) Deliver(ctx context.Context, url string) error {
	s.mu.Lock()
	s.calls[url]++
	s.order = append(s.order, url)
	fail := s.fail[url]
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return fmt.Errorf("%w: 503 Service Unavailable", domain.ErrDeliveryFailed)
	}
	return nil
}

func (s *fakeSink) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// memLedger is an in-memory LedgerStore that tracks lock balance.
type memLedger struct {
	mu       sync.Mutex
	ledger   domain.Ledger
	held     bool
	acquired int
	released int
	saves    int
	loadErr  error
	saveErr  error
}

func newMemLedger(entries ...domain.LedgerEntry) *memLedger {
	return &memLedger{ledger: domain.NewLedger(entries...)}
}

func (m *memLedger) Acquire(context.Context) (ports.LedgerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return nil, errors.New("ledger already held")
	}
	m.held = true
	m.acquired++
	return memHandle{m}, nil
}

func (m *memLedger) snapshot() domain.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger
}

type memHandle struct{ m *memLedger }

func (h memHandle) Load(context.Context) (domain.Ledger, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.ledger, h.m.loadErr
}

func (h memHandle) Save(ctx context.Context, l domain.Ledger) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if h.m.saveErr != nil {
		return h.m.saveErr
	}
	h.m.ledger = l
	h.m.saves++
	return nil
}

func (h memHandle) Release() error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	h.m.held = false
	h.m.released++
	return nil
}

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f[url]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	return data, nil
}

// textReader returns everything after the PDF magic as text.
// textReader treats everything after the PDF magic as the document text.
type textReader struct{}

func (textReader) PlainText(data []byte, _ int) (string, error) {
	text, ok := strings.CutPrefix(string(data), "%PDF-")
	if !ok {
		return "", errors.New("not a pdf document")
	}
	return text, nil
}

// tagsByText maps document text to the tags a model would return.
type tagsByText map[string][]string

func (t tagsByText) ExtractTags(_ context.Context, text string) ([]string, error) {
	tags, ok := t[text]
	if !ok {
		return nil, errors.New("model unavailable")
	}
	return tags, nil
}

type recordingTagSink struct {
	mu      sync.Mutex
	created []string
	fail    map[string]bool
}

func (r *recordingTagSink) CreateTag(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[name] {
		return errors.New("500 Internal Server Error")
	}
	r.created = append(r.created, name)
	return nil
}

type recordingNotifier struct {
	summaries []domain.RunSummary
	err       error
}

func (r *recordingNotifier) PublishSummary(_ context.Context, s domain.RunSummary) error {
	r.summaries = append(r.summaries, s)
	return r.err
}

func fixedClock() func() time.Time {
	t := time.Date(2024, time.January, 10, 6, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}
