package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, sinkURLEnv, sinkAuthEnv, pageBoundEnv, settleEnv, ledgerPathEnv,
		databaseDSNEnv, chatGPTKeyEnv, chatGPTModelEnv, wpUsernameEnv, wpPasswordEnv, logLevelEnv, telegramToken, telegramChatID,
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, 4, cfg.Sink.Concurrency)
	assert.Equal(t, 10, cfg.Sink.MaxAttempts)
	assert.Equal(t, []string{"CFC"}, cfg.Scan.Origins)
	assert.Equal(t, 500, cfg.Scan.PageBound)
	assert.Equal(t, LedgerDriverFile, cfg.Ledger.Driver)
	assert.Equal(t, "0 6 * * *", cfg.Scheduler.CronExpression)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, writeConfig(t, `
sink:
  url: https://hooks.example.org/opinions
  maxAttempts: 0
scan:
  pageBound: 20
  settleTimeout: 2s
  origins: [CFC, PTO]
scheduler:
  timezone: America/New_York
`))

	cfg := Load()
	assert.Equal(t, "https://hooks.example.org/opinions", cfg.Sink.URL)
	assert.Equal(t, 0, cfg.Sink.MaxAttempts)
	assert.Equal(t, 4, cfg.Sink.Concurrency, "keys missing from the file keep their defaults")
	assert.Equal(t, 20, cfg.Scan.PageBound)
	assert.Equal(t, 2*time.Second, cfg.Scan.SettleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Scan.TableTimeout)
	assert.Equal(t, []string{"CFC", "PTO"}, cfg.Scan.Origins)
	assert.Equal(t, "America/New_York", cfg.Scheduler.Location().String())
}

func TestLoadBrokenFileFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, writeConfig(t, "sink: [unterminated"))

	cfg := Load()
	assert.Equal(t, 500, cfg.Scan.PageBound)
	assert.Empty(t, cfg.Sink.URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(sinkURLEnv, "https://hooks.example.org/env")
	t.Setenv(sinkAuthEnv, "Bearer abc")
	t.Setenv(pageBoundEnv, "7")
	t.Setenv(settleEnv, "3")
	t.Setenv(databaseDSNEnv, "postgres://u:p@db/opinions")
	t.Setenv(logLevelEnv, "debug")
	t.Setenv(telegramToken, "123:abc")

	cfg := Load()
	assert.Equal(t, "https://hooks.example.org/env", cfg.Sink.URL)
	assert.Equal(t, "Bearer abc", cfg.Sink.Auth)
	assert.Equal(t, 7, cfg.Scan.PageBound)
	assert.Equal(t, 3*time.Second, cfg.Scan.SettleTimeout)
	assert.Equal(t, LedgerDriverPostgres, cfg.Ledger.Driver)
	assert.Equal(t, "postgres://u:p@db/opinions", cfg.Ledger.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "123:abc", cfg.Notifications.Telegram.BotToken)
}

func TestLoadIgnoresBadNumericEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(pageBoundEnv, "lots")
	t.Setenv(settleEnv, "-1")

	cfg := Load()
	assert.Equal(t, 500, cfg.Scan.PageBound)
	assert.Equal(t, 5*time.Second, cfg.Scan.SettleTimeout)
}

func TestUnknownTimezoneRevertsToUTC(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, writeConfig(t, "scheduler:\n  timezone: Mars/Olympus\n"))

	cfg := Load()
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink.url")

	cfg.Sink.URL = "https://hooks.example.org"
	assert.NoError(t, cfg.Validate())

	cfg.Ledger.Driver = LedgerDriverPostgres
	assert.ErrorContains(t, cfg.Validate(), "ledger.dsn")

	cfg.Ledger.Driver = "redis"
	assert.ErrorContains(t, cfg.Validate(), "unknown ledger driver")
}
