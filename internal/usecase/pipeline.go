package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/metrics"
	"OpinionsScanner/internal/ports"
)

const (
	runKindScan  = "scan"
	runKindFlush = "flush"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source   ports.CaseSource
	Ledger   ports.LedgerStore
	Delivery *DeliveryQueue
	Enricher *Enricher
	Notifier ports.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline implements the discover, deliver and enrich workflow.
type Pipeline struct {
	source   ports.CaseSource
	ledger   ports.LedgerStore
	delivery *DeliveryQueue
	enricher *Enricher
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		source:   deps.Source,
		ledger:   deps.Ledger,
		delivery: deps.Delivery,
		enricher: deps.Enricher,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		now:      deps.Now,
	}
}

// Run discovers records for query, delivers them together with the
// outstanding ledger and tags what was delivered. Only a missing render
// session or a broken ledger surface as errors; everything else is reported
// in the summary.
func (p *Pipeline) Run(ctx context.Context, query domain.Query) (domain.RunSummary, error) {
	summary := p.begin(query.String())
	logger := p.logger.With("run_id", summary.RunID)

	if p.source == nil {
		return summary, errors.New("pipeline has no case source")
	}

	discovery, err := p.source.Discover(ctx, query)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrExtractionUnavailable):
		logger.Warn("table unavailable, ledger left untouched", "query", query.String(), "error", err)
		summary.Warnings = append(summary.Warnings, err.Error())
		summary.ApplyOutcomes(nil)
		p.finish(&summary, runKindScan, "empty", logger)
		return summary, nil
	default:
		p.finish(&summary, runKindScan, "error", logger)
		return summary, fmt.Errorf("discover: %w", err)
	}

	for _, w := range discovery.Warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
	}
	summary.Records = discovery.Result.Records
	if summary.Records == nil {
		summary.Records = []domain.CaseRecord{}
	}
	metrics.RecordsDiscovered.Add(float64(discovery.Result.Len()))
	metrics.PagesScraped.Add(float64(discovery.Result.Pages))

	if err := p.deliver(ctx, summary.Records, &summary, logger); err != nil {
		p.finish(&summary, runKindScan, "error", logger)
		return summary, err
	}

	if p.enricher != nil {
		summary.Tags = p.enricher.TagAll(ctx, deliveredURLs(summary.Outcomes))
	}

	p.finish(&summary, runKindScan, "ok", logger)
	p.notify(ctx, summary, logger)
	return summary, nil
}

// FlushOutstanding retries the ledger without discovering anything new.
func (p *Pipeline) FlushOutstanding(ctx context.Context) (domain.RunSummary, error) {
	summary := p.begin("")
	logger := p.logger.With("run_id", summary.RunID)

	if err := p.deliver(ctx, nil, &summary, logger); err != nil {
		p.finish(&summary, runKindFlush, "error", logger)
		return summary, err
	}

	p.finish(&summary, runKindFlush, "ok", logger)
	p.notify(ctx, summary, logger)
	return summary, nil
}

// deliver runs one exclusive read-modify-persist cycle over the ledger.
func (p *Pipeline) deliver(ctx context.Context, records []domain.CaseRecord, summary *domain.RunSummary, logger *slog.Logger) error {
	if p.delivery == nil {
		summary.ApplyOutcomes(nil)
		return errors.New("pipeline has no delivery queue")
	}

	if p.ledger == nil {
		updated, outcomes := p.delivery.Flush(ctx, records, domain.NewLedger())
		summary.ApplyOutcomes(outcomes)
		summary.Outstanding = updated.Len()
		countOutcomes(outcomes)
		return nil
	}

	handle, err := p.ledger.Acquire(ctx)
	if err != nil {
		summary.ApplyOutcomes(nil)
		return fmt.Errorf("acquire ledger: %w", err)
	}
	defer func() {
		if rErr := handle.Release(); rErr != nil {
			logger.Warn("release ledger", "error", rErr)
		}
	}()

	current, err := handle.Load(ctx)
	if err != nil {
		summary.ApplyOutcomes(nil)
		return fmt.Errorf("load ledger: %w", err)
	}

	updated, outcomes := p.delivery.Flush(ctx, records, current)
	summary.ApplyOutcomes(outcomes)
	countOutcomes(outcomes)

	// Persist even when the run was cancelled so skipped URLs are kept.
	if err := handle.Save(context.WithoutCancel(ctx), updated); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	summary.Outstanding = updated.Len()
	metrics.LedgerSize.Set(float64(updated.Len()))
	return nil
}

func (p *Pipeline) begin(query string) domain.RunSummary {
	return domain.RunSummary{
		RunID:      uuid.NewString(),
		Query:      query,
		StartedAt:  p.now(),
		Records:    []domain.CaseRecord{},
		FailedURLs: []string{},
	}
}

func (p *Pipeline) finish(summary *domain.RunSummary, kind, result string, logger *slog.Logger) {
	summary.FinishedAt = p.now()
	metrics.RunsTotal.WithLabelValues(kind, result).Inc()
	metrics.RunDuration.WithLabelValues(kind).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	logger.Info("run finished",
		"kind", kind,
		"result", result,
		"summary", summary.Message(),
		"records", len(summary.Records),
		"outstanding", summary.Outstanding,
		"dropped", len(summary.DroppedURLs),
		"tags", len(summary.Tags),
		"warnings", len(summary.Warnings),
	)
}

// notify reports runs that found or delivered something; quiet days stay silent.
func (p *Pipeline) notify(ctx context.Context, summary domain.RunSummary, logger *slog.Logger) {
	if p.notifier == nil || (len(summary.Records) == 0 && len(summary.Outcomes) == 0) {
		return
	}
	if err := p.notifier.PublishSummary(context.WithoutCancel(ctx), summary); err != nil {
		logger.Warn("publish run report", "error", err)
	}
}

func countOutcomes(outcomes []domain.DeliveryOutcome) {
	for _, o := range outcomes {
		status := string(o.Status)
		if o.Dropped {
			status = "dropped"
		}
		metrics.DeliveriesTotal.WithLabelValues(status).Inc()
	}
}

func deliveredURLs(outcomes []domain.DeliveryOutcome) []string {
	var urls []string
	for _, o := range outcomes {
		if o.Status == domain.StatusDelivered {
			urls = append(urls, o.DocumentURL)
		}
	}
	return urls
}
