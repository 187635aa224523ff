package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

const (
	// DefaultDeliveryConcurrency bounds in-flight sink requests.
	DefaultDeliveryConcurrency = 4
	// DefaultMaxAttempts is how many failed deliveries a URL survives in the ledger.
	DefaultMaxAttempts = 10
)

// DeliveryQueue hands document URLs to the sink and computes the ledger
// that should be persisted afterwards. It does not persist anything itself.
type DeliveryQueue struct {
	sink        ports.Sink
	concurrency int
	maxAttempts int
	logger      *slog.Logger
}

// NewDeliveryQueue wires the sink. maxAttempts of 0 never drops a URL.
func NewDeliveryQueue(sink ports.Sink, concurrency, maxAttempts int, logger *slog.Logger) *DeliveryQueue {
	if concurrency <= 0 {
		concurrency = DefaultDeliveryConcurrency
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DeliveryQueue{sink: sink, concurrency: concurrency, maxAttempts: maxAttempts, logger: logger}
}

// Flush delivers the union of ledger entries and record URLs exactly once
// each and returns the ledger of URLs still awaiting acknowledgement along
// with one outcome per URL in delivery-set order.
func (q *DeliveryQueue) Flush(ctx context.Context, records []domain.CaseRecord, ledger domain.Ledger) (domain.Ledger, []domain.DeliveryOutcome) {
	pending := deliverySet(records, ledger)
	outcomes := make([]domain.DeliveryOutcome, len(pending))

	var g errgroup.Group
	g.SetLimit(q.concurrency)
	for i, entry := range pending {
		if ctx.Err() != nil {
			outcomes[i] = skipped(entry, ctx.Err())
			continue
		}
		g.Go(func() error {
			outcomes[i] = q.deliver(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()

	retained := make([]domain.LedgerEntry, 0, len(pending))
	for i, entry := range pending {
		switch o := outcomes[i]; o.Status {
		case domain.StatusDelivered:
		case domain.StatusSkipped:
			retained = append(retained, entry)
		case domain.StatusFailed:
			if o.Dropped {
				q.logger.Warn("giving up on document", "url", o.DocumentURL, "attempts", o.Attempts)
				continue
			}
			retained = append(retained, domain.LedgerEntry{URL: entry.URL, Attempts: o.Attempts})
		}
	}

	return domain.NewLedger(retained...), outcomes
}

func (q *DeliveryQueue) deliver(ctx context.Context, entry domain.LedgerEntry) domain.DeliveryOutcome {
	if ctx.Err() != nil {
		return skipped(entry, ctx.Err())
	}

	err := q.sink.Deliver(ctx, entry.URL)
	if err == nil {
		q.logger.Debug("document delivered", "url", entry.URL)
		return domain.DeliveryOutcome{DocumentURL: entry.URL, Status: domain.StatusDelivered, Attempts: entry.Attempts + 1}
	}
	// Interrupted by cancellation: the sink never gave an answer either way.
	if ctx.Err() != nil {
		return skipped(entry, err)
	}

	attempts := entry.Attempts + 1
	q.logger.Warn("delivery failed", "url", entry.URL, "attempts", attempts, "error", err)
	return domain.DeliveryOutcome{
		DocumentURL: entry.URL,
		Status:      domain.StatusFailed,
		Detail:      err.Error(),
		Attempts:    attempts,
		Dropped:     q.maxAttempts > 0 && attempts >= q.maxAttempts,
	}
}

func skipped(entry domain.LedgerEntry, cause error) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{
		DocumentURL: entry.URL,
		Status:      domain.StatusSkipped,
		Detail:      cause.Error(),
		Attempts:    entry.Attempts,
	}
}

// deliverySet puts ledger entries first, then new record URLs, first-seen wins.
func deliverySet(records []domain.CaseRecord, ledger domain.Ledger) []domain.LedgerEntry {
	entries := ledger.Entries()
	for _, r := range records {
		entries = append(entries, domain.LedgerEntry{URL: r.DocumentURL})
	}
	return domain.NewLedger(entries...).Entries()
}
