package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"OpinionsScanner/internal/config"
	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram rejects messages longer than 4096 characters.
	maxMessageLen = 4096
	maxListed     = 20
)

// Notifier sends run reports to a Telegram chat via bot API.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *resty.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	base := cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	return &Notifier{
		apiBase:  strings.TrimRight(base, "/"),
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   resty.New().SetTimeout(5 * time.Second),
	}
}

// PublishSummary posts a plain-text run report.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.RunSummary) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":                  n.chatID,
			"text":                     formatSummary(summary),
			"disable_web_page_preview": "true",
		}).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken))
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("telegram error: %s", resp.Status())
	}

	return nil
}

func formatSummary(s domain.RunSummary) string {
	var b strings.Builder
	if s.Query != "" {
		fmt.Fprintf(&b, "Opinions %s\n", s.Query)
	} else {
		b.WriteString("Outstanding deliveries retried\n")
	}
	fmt.Fprintf(&b, "%s, %d outstanding\n", s.Message(), s.Outstanding)

	listed := 0
	for _, r := range s.Records {
		if listed == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(s.Records)-listed)
			break
		}
		fmt.Fprintf(&b, "\n%s %s\n%s\n", r.AppealNumber, r.CaseName, r.DocumentURL)
		listed++
	}

	if len(s.DroppedURLs) > 0 {
		fmt.Fprintf(&b, "\nGave up on %d document(s):\n%s\n", len(s.DroppedURLs), strings.Join(s.DroppedURLs, "\n"))
	}
	if len(s.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(s.Tags, ", "))
	}

	text := b.String()
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen-3] + "..."
	}
	return text
}
