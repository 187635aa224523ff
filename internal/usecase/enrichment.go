package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/metrics"
	"OpinionsScanner/internal/ports"
)

// DefaultEnrichmentPages is how many leading pages are sent to the tagger.
const DefaultEnrichmentPages = 3

// EnricherDeps wires the adapters used to tag delivered documents.
type EnricherDeps struct {
	Fetcher  ports.DocumentFetcher
	Reader   ports.DocumentReader
	Tagger   ports.TextToTags
	TagSink  ports.TagSink
	MaxPages int
	Logger   *slog.Logger
}

// Enricher derives topic tags from opinion PDFs. It never fails a run.
type Enricher struct {
	fetcher  ports.DocumentFetcher
	reader   ports.DocumentReader
	tagger   ports.TextToTags
	tagSink  ports.TagSink
	maxPages int
	logger   *slog.Logger
}

// NewEnricher returns nil when fetching, reading or tagging is not wired.
func NewEnricher(deps EnricherDeps) *Enricher {
	if deps.Fetcher == nil || deps.Reader == nil || deps.Tagger == nil {
		return nil
	}
	if deps.MaxPages <= 0 {
		deps.MaxPages = DefaultEnrichmentPages
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Enricher{
		fetcher:  deps.Fetcher,
		reader:   deps.Reader,
		tagger:   deps.Tagger,
		tagSink:  deps.TagSink,
		maxPages: deps.MaxPages,
		logger:   deps.Logger,
	}
}

// Tag returns the tags for one document, or an empty slice on any failure.
func (e *Enricher) Tag(ctx context.Context, documentURL string) []string {
	tags, err := e.tag(ctx, documentURL)
	if err != nil {
		e.logger.Warn("enrichment skipped", "url", documentURL, "error", fmt.Errorf("%w: %w", domain.ErrEnrichmentFailed, err))
		return []string{}
	}
	return tags
}

func (e *Enricher) tag(ctx context.Context, documentURL string) ([]string, error) {
	data, err := e.fetcher.Fetch(ctx, documentURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	text, err := e.reader.PlainText(data, e.maxPages)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("no extractable text")
	}

	tags, err := e.tagger.ExtractTags(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract tags: %w", err)
	}
	return tags, nil
}

// TagAll tags each document independently and pushes the run's unique tags
// to the tag sink. Tags compare case-insensitively; the first spelling wins.
func (e *Enricher) TagAll(ctx context.Context, documentURLs []string) []string {
	seen := make(map[string]struct{})
	unique := []string{}
	for _, u := range documentURLs {
		if ctx.Err() != nil {
			break
		}
		for _, tag := range e.Tag(ctx, u) {
			key := strings.ToLower(strings.TrimSpace(tag))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			unique = append(unique, strings.TrimSpace(tag))
		}
	}

	slices.SortFunc(unique, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	e.publish(ctx, unique)
	return unique
}

func (e *Enricher) publish(ctx context.Context, tags []string) {
	if e.tagSink == nil {
		return
	}
	for _, tag := range tags {
		if err := e.tagSink.CreateTag(ctx, tag); err != nil {
			metrics.TagsCreated.WithLabelValues("error").Inc()
			e.logger.Warn("tag not created", "tag", tag, "error", err)
			continue
		}
		metrics.TagsCreated.WithLabelValues("ok").Inc()
	}
}
