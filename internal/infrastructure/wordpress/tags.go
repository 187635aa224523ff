package wordpress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"OpinionsScanner/internal/config"
	"OpinionsScanner/internal/ports"
)

const tagsPath = "/wp-json/wp/v2/tags"

// TagClient creates tags through the WordPress REST API.
type TagClient struct {
	endpoint string
	client   *resty.Client
}

var _ ports.TagSink = (*TagClient)(nil)

// NewTagClient authenticates with an application password.
func NewTagClient(cfg config.WordPressConfig) (*TagClient, error) {
	if cfg.SiteURL == "" {
		return nil, errors.New("wordpress: site url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetBasicAuth(cfg.Username, cfg.AppPassword)

	return &TagClient{
		endpoint: strings.TrimRight(cfg.SiteURL, "/") + tagsPath,
		client:   client,
	}, nil
}

type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateTag treats an already existing term as success.
func (c *TagClient) CreateTag(ctx context.Context, name string) error {
	var apiErr wpError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetError(&apiErr).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("create tag %q: %w", name, err)
	}

	switch {
	case resp.StatusCode() == http.StatusCreated:
		return nil
	case resp.StatusCode() == http.StatusBadRequest && apiErr.Code == "term_exists":
		return nil
	default:
		return fmt.Errorf("create tag %q: %s %s", name, resp.Status(), strings.TrimSpace(apiErr.Message))
	}
}
