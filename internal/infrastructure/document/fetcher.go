package document

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"OpinionsScanner/internal/ports"
)

// Fetcher downloads opinion documents over HTTP.
type Fetcher struct {
	client *resty.Client
}

var _ ports.DocumentFetcher = (*Fetcher)(nil)

// NewFetcher builds a fetcher; a non-positive timeout defaults to 30s.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().SetTimeout(timeout)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &Fetcher{client: client}
}

func (f *Fetcher) Fetch(ctx context.Context, documentURL string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(documentURL)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", documentURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("get %s: %s", documentURL, resp.Status())
	}
	return resp.Body(), nil
}
