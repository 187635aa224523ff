package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"OpinionsScanner/internal/config"
	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

// Sink posts discovered document URLs to a webhook.
type Sink struct {
	url    string
	auth   string
	client *resty.Client
}

var _ ports.Sink = (*Sink)(nil)

type payload struct {
	FileURL string `json:"file_url"`
}

// NewSink builds a webhook client from configuration.
func NewSink(cfg config.SinkConfig) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook sink: url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Sink{url: cfg.URL, auth: cfg.Auth, client: client}, nil
}

// Deliver succeeds only on a 2xx answer; anything else wraps domain.ErrDeliveryFailed.
func (s *Sink) Deliver(ctx context.Context, documentURL string) error {
	req := s.client.R().
		SetContext(ctx).
		SetBody(payload{FileURL: documentURL})
	if s.auth != "" {
		req.SetHeader("Authorization", s.auth)
	}

	resp, err := req.Post(s.url)
	if err != nil {
		return fmt.Errorf("%w: post: %w", domain.ErrDeliveryFailed, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: sink answered %s: %s", domain.ErrDeliveryFailed, resp.Status(), snippet(resp.String()))
	}
	return nil
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 256 {
		return body[:256] + "..."
	}
	return body
}
