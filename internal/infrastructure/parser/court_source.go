package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
	"OpinionsScanner/internal/scanner"
)

// CourtSource implements CaseSource against the court's opinions table. Each
// Discover call owns one render session from open to close.
type CourtSource struct {
	sessions  ports.SessionFactory
	pageURL   string
	filter    *scanner.FilterController
	paginator *scanner.Paginator
	logger    *slog.Logger
}

var _ ports.CaseSource = (*CourtSource)(nil)

// NewCourtSource wires the session factory with filter and pagination strategies.
func NewCourtSource(sessions ports.SessionFactory, pageURL string, filter *scanner.FilterController, paginator *scanner.Paginator, log *slog.Logger) *CourtSource {
	return &CourtSource{
		sessions:  sessions,
		pageURL:   pageURL,
		filter:    filter,
		paginator: paginator,
		logger:    log,
	}
}

// Discover opens a session, applies the query and collects every page.
// Session creation failure wraps domain.ErrSessionUnavailable; a page that
// never loads or renders wraps domain.ErrExtractionUnavailable.
func (s *CourtSource) Discover(ctx context.Context, query domain.Query) (domain.Discovery, error) {
	if s.sessions == nil {
		return domain.Discovery{}, fmt.Errorf("%w: no session factory configured", domain.ErrSessionUnavailable)
	}

	session, err := s.sessions.Open(ctx)
	if err != nil {
		return domain.Discovery{}, fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.warn("close render session", "error", cerr)
		}
	}()

	s.debug("open opinions page", "url", s.pageURL, "query", query.String())
	if err := session.Navigate(ctx, s.pageURL); err != nil {
		return domain.Discovery{}, fmt.Errorf("%w: navigate %s: %w", domain.ErrExtractionUnavailable, s.pageURL, err)
	}

	var discovery domain.Discovery
	if err := s.filter.Apply(ctx, session, query); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Discovery{}, ctxErr
		}
		s.warn("filter only partially applied", "error", err)
		discovery.Warnings = append(discovery.Warnings, err)
	}

	result, err := s.paginator.Scrape(ctx, session)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPaginationBoundExceeded), errors.Is(err, domain.ErrPaginationStalled):
		s.warn("pagination incomplete", "error", err, "records", result.Len())
		discovery.Warnings = append(discovery.Warnings, err)
	default:
		return domain.Discovery{}, err
	}

	discovery.Result = result
	s.debug("court source done", "records", result.Len(), "pages", result.Pages)
	return discovery, nil
}

func (s *CourtSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *CourtSource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
