package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

const redrawPollInterval = 200 * time.Millisecond

// Paginator walks the filtered table page by page.
type Paginator struct {
	selectors    Selectors
	timeouts     Timeouts
	extractor    PageExtractor
	pageBound    int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewPaginator wires the row extractor; pageBound <= 0 means DefaultPageBound.
func NewPaginator(selectors Selectors, timeouts Timeouts, extractor PageExtractor, pageBound int, logger *slog.Logger) *Paginator {
	if pageBound <= 0 {
		pageBound = DefaultPageBound
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Paginator{
		selectors:    selectors,
		timeouts:     timeouts,
		extractor:    extractor,
		pageBound:    pageBound,
		pollInterval: redrawPollInterval,
		logger:       logger,
	}
}

// Scrape folds every page into one aggregate. Running out of rows or of a
// usable next control ends the walk normally. A table that never renders on
// the first page yields domain.ErrExtractionUnavailable with no records. The
// page cap yields domain.ErrPaginationBoundExceeded and a next page that never
// renders yields domain.ErrPaginationStalled, both with the records so far.
func (p *Paginator) Scrape(ctx context.Context, session ports.RenderSession) (domain.AggregateResult, error) {
	var (
		agg      domain.AggregateResult
		previous []string
	)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return domain.AggregateResult{}, err
		}
		if page > p.pageBound {
			return agg, fmt.Errorf("%w: stopped after %d pages", domain.ErrPaginationBoundExceeded, p.pageBound)
		}

		html, err := p.readBody(ctx, session)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.AggregateResult{}, ctxErr
			}
			if page == 1 {
				return domain.AggregateResult{}, fmt.Errorf("%w: %w", domain.ErrExtractionUnavailable, err)
			}
			p.logger.Warn("table body lost, stopping pagination", "page", page, "error", err)
			return agg, fmt.Errorf("%w: page %d: %w", domain.ErrPaginationStalled, page, err)
		}

		rows := p.extractor.ExtractPage(html)
		if len(rows) == 0 {
			p.logger.Debug("no rows on page, pagination done", "page", page)
			return agg, nil
		}

		urls := rows.URLs()
		if slices.Equal(urls, previous) {
			p.logger.Warn("page did not advance, stopping pagination", "page", page)
			return agg, fmt.Errorf("%w: page %d still shows page %d after %s",
				domain.ErrPaginationStalled, page, page-1, p.timeouts.Settle)
		}
		previous = urls

		agg = agg.Fold(rows)
		p.logger.Debug("page collected", "page", page, "rows", len(rows), "total", agg.Len())

		if !p.advance(ctx, session, page, urls) {
			return agg, nil
		}
	}
}

func (p *Paginator) readBody(ctx context.Context, session ports.RenderSession) (string, error) {
	if err := session.WaitPresent(ctx, p.selectors.TableBody, p.timeouts.Table); err != nil {
		return "", err
	}
	return session.OuterHTML(ctx, p.selectors.TableBody)
}

// advance clicks the next control when it exists and is enabled, then waits
// for the table to show rows other than shown.
func (p *Paginator) advance(ctx context.Context, session ports.RenderSession, page int, shown []string) bool {
	if err := session.ScrollToBottom(ctx); err != nil {
		p.logger.Debug("scroll failed", "page", page, "error", err)
	}

	class, exists, err := session.Attribute(ctx, p.selectors.Next, "class")
	if err != nil {
		p.logger.Debug("next control unreadable, pagination done", "page", page, "error", err)
		return false
	}
	if !exists || hasClass(class, "disabled") {
		p.logger.Debug("no next page", "page", page)
		return false
	}

	if err := session.Click(ctx, p.selectors.Next); err != nil {
		p.logger.Debug("next control not clickable, pagination done", "page", page, "error", err)
		return false
	}
	if err := session.WaitHidden(ctx, p.selectors.Processing, p.timeouts.Settle); err != nil {
		p.logger.Warn("table did not settle after paging", "page", page, "error", err)
	}
	p.awaitRedraw(ctx, session, shown)
	return true
}

// awaitRedraw polls the table body until its rows differ from shown or the
// settle timeout passes. The processing overlay may not be up yet when the
// click returns.
func (p *Paginator) awaitRedraw(ctx context.Context, session ports.RenderSession, shown []string) {
	deadline := time.Now().Add(p.timeouts.Settle)
	for {
		html, err := session.OuterHTML(ctx, p.selectors.TableBody)
		if err == nil && !slices.Equal(p.extractor.ExtractPage(html).URLs(), shown) {
			return
		}
		wait := min(p.pollInterval, time.Until(deadline))
		if wait <= 0 {
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func hasClass(classAttr, name string) bool {
	return slices.Contains(strings.Fields(classAttr), name)
}
