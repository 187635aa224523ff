package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpinionsScanner/internal/config"
	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/scanner"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Site: config.SiteConfig{
			URL:     "https://www.cafc.uscourts.gov/home/case-information/opinions-orders/",
			BaseURL: "https://www.cafc.uscourts.gov",
		},
		Scan: config.ScanConfig{
			PageBound:          10,
			SettleTimeout:      time.Second,
			TableTimeout:       time.Second,
			InteractionTimeout: time.Second,
			Origins:            []string{"cfc", "PTO"},
		},
		Sink:   config.SinkConfig{URL: "http://127.0.0.1:1/hook", Concurrency: 2, MaxAttempts: 10},
		Ledger: config.LedgerConfig{Driver: config.LedgerDriverFile, Path: filepath.Join(t.TempDir(), "outstanding.txt")},
	}
}

func TestNewWiresFileLedger(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.pipeline)
	assert.Equal(t, []domain.OriginCode{domain.OriginCFC, domain.OriginPTO}, a.origins)
	assert.Nil(t, a.db)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sink.URL = ""

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "sink.url")
}

func TestFlushWithEmptyLedger(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0 delivered, 0 failed", summary.Message())
	assert.Zero(t, summary.Outstanding)
}

func TestSelectorsFromConfigOverlaysDefaults(t *testing.T) {
	s := selectorsFromConfig(config.SelectorsConfig{TableBody: "#table_2 > tbody"})
	def := scanner.DefaultSelectors()

	assert.Equal(t, "#table_2 > tbody", s.TableBody)
	assert.Equal(t, def.Next, s.Next)
	assert.Equal(t, def.OriginOption, s.OriginOption)
}

func TestParseOriginsRejectsBlank(t *testing.T) {
	_, err := parseOrigins([]string{"CFC", " "})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestEnricherDisabledWithoutKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enrichment.Enabled = true
	assert.Nil(t, newEnricher(cfg, discard()))

	cfg.ChatGPT = config.ChatGPTConfig{Endpoint: "http://127.0.0.1:1", Model: "m", APIKey: "k"}
	assert.NotNil(t, newEnricher(cfg, discard()))
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNewNotifierRequiresTokenAndChat(t *testing.T) {
	assert.Nil(t, newNotifier(config.TelegramConfig{BotToken: "t"}, discard()))
	assert.NotNil(t, newNotifier(config.TelegramConfig{BotToken: "t", ChatID: "c"}, discard()))
}
