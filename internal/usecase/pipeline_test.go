package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpinionsScanner/internal/domain"
)

func testQuery(t *testing.T) domain.Query {
	t.Helper()
	day := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	q, err := domain.NewQuery(day, day, []domain.OriginCode{domain.OriginCFC})
	require.NoError(t, err)
	return q
}

func newTestPipeline(source fakeSource, sink *fakeSink, ledger *memLedger, enricher *Enricher) *Pipeline {
	deps := PipelineDeps{
		Source:   source,
		Delivery: NewDeliveryQueue(sink, 2, 0, nil),
		Enricher: enricher,
		Now:      fixedClock(),
	}
	if ledger != nil {
		deps.Ledger = ledger
	}
	return NewPipeline(deps)
}

func TestRunSinkFailsTwoOfFive(t *testing.T) {
	sink := newFakeSink("https://x/2.pdf", "https://x/4.pdf")
	ledger := newMemLedger()
	p := newTestPipeline(fakeSource{discovery: discovered(
		"https://x/1.pdf", "https://x/2.pdf", "https://x/3.pdf", "https://x/4.pdf", "https://x/5.pdf",
	)}, sink, ledger, nil)

	summary, err := p.Run(context.Background(), testQuery(t))
	require.NoError(t, err)

	assert.Equal(t, "3 delivered, 2 failed", summary.Message())
	assert.Equal(t, []string{"https://x/2.pdf", "https://x/4.pdf"}, summary.FailedURLs)
	assert.Equal(t, []string{"https://x/2.pdf", "https://x/4.pdf"}, ledger.snapshot().URLs())
	assert.Equal(t, 2, summary.Outstanding)
	assert.Len(t, summary.PDFLinks(), 5)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, ledger.acquired)
	assert.Equal(t, 1, ledger.released)
}

func TestRunChainsLedgerAcrossRuns(t *testing.T) {
	ledger := newMemLedger()

	first := newTestPipeline(fakeSource{discovery: discovered("https://x/a.pdf", "https://x/b.pdf")},
		newFakeSink("https://x/b.pdf"), ledger, nil)
	_, err := first.Run(context.Background(), testQuery(t))
	require.NoError(t, err)
	require.Equal(t, []string{"https://x/b.pdf"}, ledger.snapshot().URLs())

	sink := newFakeSink()
	second := newTestPipeline(fakeSource{discovery: discovered("https://x/b.pdf", "https://x/c.pdf")},
		sink, ledger, nil)
	summary, err := second.Run(context.Background(), testQuery(t))
	require.NoError(t, err)

	assert.Equal(t, "2 delivered, 0 failed", summary.Message())
	assert.Equal(t, 1, sink.callCount("https://x/b.pdf"), "rediscovered failure is delivered once")
	assert.Equal(t, 1, sink.callCount("https://x/c.pdf"))
	assert.Equal(t, 0, sink.callCount("https://x/a.pdf"))
	assert.Zero(t, ledger.snapshot().Len())
}

func TestRunDuplicateDiscoveryDeliveredOnce(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(fakeSource{discovery: discovered("https://x/a.pdf", "https://x/a.pdf")},
		sink, newMemLedger(), nil)

	summary, err := p.Run(context.Background(), testQuery(t))
	require.NoError(t, err)
	assert.Equal(t, 1, sink.callCount("https://x/a.pdf"))
	assert.Len(t, summary.Outcomes, 1)
	assert.Len(t, summary.Records, 2, "records are reported as discovered")
}

func TestRunExtractionUnavailableLeavesLedger(t *testing.T) {
	sink := newFakeSink()
	ledger := newMemLedger(domain.LedgerEntry{URL: "https://x/old.pdf", Attempts: 1})
	p := newTestPipeline(fakeSource{
		err: fmt.Errorf("%w: table body never rendered", domain.ErrExtractionUnavailable),
	}, sink, ledger, nil)

	summary, err := p.Run(context.Background(), testQuery(t))
	require.NoError(t, err)

	assert.Empty(t, summary.Records)
	assert.Empty(t, summary.Outcomes)
	assert.Equal(t, []string{}, summary.FailedURLs)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "never rendered")
	assert.Zero(t, sink.total())
	assert.Zero(t, ledger.acquired)
	assert.Equal(t, []domain.LedgerEntry{{URL: "https://x/old.pdf", Attempts: 1}}, ledger.snapshot().Entries())
}

func TestRunSessionUnavailableIsFatal(t *testing.T) {
	p := newTestPipeline(fakeSource{
		err: fmt.Errorf("%w: chrome not found", domain.ErrSessionUnavailable),
	}, newFakeSink(), newMemLedger(), nil)

	_, err := p.Run(context.Background(), testQuery(t))
	assert.ErrorIs(t, err, domain.ErrSessionUnavailable)
}

func TestRunCarriesDiscoveryWarnings(t *testing.T) {
	d := discovered("https://x/a.pdf")
	d.Warnings = []error{
		fmt.Errorf("%w: origin selector: timeout", domain.ErrFilterApplicationFailed),
		fmt.Errorf("%w: stopped after 500 pages", domain.ErrPaginationBoundExceeded),
	}
	p := newTestPipeline(fakeSource{discovery: d}, newFakeSink(), newMemLedger(), nil)

	summary, err := p.Run(context.Background(), testQuery(t))
	require.NoError(t, err)
	assert.Len(t, summary.Warnings, 2)
	assert.Equal(t, "1 delivered, 0 failed", summary.Message())
}

func TestRunLedgerSaveErrorSurfaces(t *testing.T) {
	ledger := newMemLedger()
	ledger.saveErr = errors.New("read-only file system")
	p := newTestPipeline(fakeSource{discovery: discovered("https://x/a.pdf")}, newFakeSink(), ledger, nil)

	_, err := p.Run(context.Background(), testQuery(t))
	assert.ErrorContains(t, err, "save ledger")
	assert.Equal(t, 1, ledger.released, "lock is released on the failure path")
}

func TestRunCancelledPersistsSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ledger := newMemLedger()
	p := newTestPipeline(fakeSource{discovery: discovered("https://x/a.pdf")}, newFakeSink(), ledger, nil)

	summary, err := p.Run(ctx, testQuery(t))
	require.NoError(t, err)
	assert.Equal(t, "0 delivered, 0 failed, 1 skipped", summary.Message())
	assert.Equal(t, []string{"https://x/a.pdf"}, ledger.snapshot().URLs())
	assert.Equal(t, 1, ledger.saves)
}

func TestFlushOutstandingRetriesLedgerOnly(t *testing.T) {
	sink := newFakeSink("https://x/b.pdf")
	ledger := newMemLedger(
		domain.LedgerEntry{URL: "https://x/a.pdf", Attempts: 1},
		domain.LedgerEntry{URL: "https://x/b.pdf", Attempts: 1},
	)
	p := newTestPipeline(fakeSource{err: errors.New("must not be called")}, sink, ledger, nil)

	summary, err := p.FlushOutstanding(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1 delivered, 1 failed", summary.Message())
	assert.Equal(t, []domain.LedgerEntry{{URL: "https://x/b.pdf", Attempts: 2}}, ledger.snapshot().Entries())
	assert.Empty(t, summary.Records)
}

func TestRunEnrichesDeliveredDocuments(t *testing.T) {
	sink := newFakeSink("https://x/failed.pdf")
	tagSink := &recordingTagSink{}
	enricher := NewEnricher(EnricherDeps{
		Fetcher: fakeFetcher{
			"https://x/a.pdf":      []byte("%PDF-opinion a"),
			"https://x/failed.pdf": []byte("%PDF-opinion f"),
		},
		Reader: textReader{},
		Tagger: tagsByText{
			"opinion a": {"Obviousness"},
			"opinion f": {"Standing"},
		},
		TagSink: tagSink,
	})
	p := newTestPipeline(fakeSource{discovery: discovered("https://x/a.pdf", "https://x/failed.pdf")},
		sink, newMemLedger(), enricher)

	summary, err := p.Run(context.Background(), testQuery(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Obviousness"}, summary.Tags, "only delivered documents are tagged")
	assert.Equal(t, []string{"Obviousness"}, tagSink.created)
}

func TestRunNotifiesOnlyWhenSomethingHappened(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}

	quiet := newTestPipeline(fakeSource{discovery: discovered()}, newFakeSink(), newMemLedger(), nil)
	quiet.notifier = notifier
	_, err := quiet.Run(context.Background(), testQuery(t))
	require.NoError(t, err)
	assert.Empty(t, notifier.summaries)

	busy := newTestPipeline(fakeSource{discovery: discovered("https://x/a.pdf")}, newFakeSink(), newMemLedger(), nil)
	busy.notifier = notifier
	summary, err := busy.Run(context.Background(), testQuery(t))
	require.NoError(t, err, "notifier errors are not fatal")
	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, summary.RunID, notifier.summaries[0].RunID)
	assert.Equal(t, "1 delivered, 0 failed", notifier.summaries[0].Message())
}
