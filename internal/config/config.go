package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "OPINIONS_SCANNER_CONFIG"
	sinkURLEnv      = "SINK_URL"
	sinkAuthEnv     = "SINK_AUTH"
	pageBoundEnv    = "POLL_PAGE_BOUND"
	settleEnv       = "SETTLE_TIMEOUT"
	ledgerPathEnv   = "LEDGER_PATH"
	databaseDSNEnv  = "DATABASE_DSN"
	chatGPTKeyEnv   = "CHATGPT_API_KEY"
	chatGPTModelEnv = "CHATGPT_MODEL"
	wpUsernameEnv   = "WORDPRESS_USERNAME"
	wpPasswordEnv   = "WORDPRESS_APP_PASSWORD"
	logLevelEnv     = "LOG_LEVEL"
	telegramToken   = "TELEGRAM_BOT_TOKEN"
	telegramChatID  = "TELEGRAM_CHAT_ID"
)

// Ledger drivers.
const (
	LedgerDriverFile     = "file"
	LedgerDriverPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Site          SiteConfig         `yaml:"site"`
	Browser       BrowserConfig      `yaml:"browser"`
	Scan          ScanConfig         `yaml:"scan"`
	Sink          SinkConfig         `yaml:"sink"`
	Ledger        LedgerConfig       `yaml:"ledger"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	WordPress     WordPressConfig    `yaml:"wordpress"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Server        ServerConfig       `yaml:"server"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// SiteConfig points at the opinions page. Empty selectors keep the built-in defaults.
type SiteConfig struct {
	URL       string          `yaml:"url"`
	BaseURL   string          `yaml:"baseUrl"`
	Selectors SelectorsConfig `yaml:"selectors"`
}

// SelectorsConfig overrides individual CSS selectors of the table controls.
type SelectorsConfig struct {
	FromDate     string `yaml:"fromDate"`
	ToDate       string `yaml:"toDate"`
	OriginButton string `yaml:"originButton"`
	OriginMenu   string `yaml:"originMenu"`
	OriginOption string `yaml:"originOption"`
	TableBody    string `yaml:"tableBody"`
	Next         string `yaml:"next"`
	Processing   string `yaml:"processing"`
}

// BrowserConfig drives the headless Chrome instance.
type BrowserConfig struct {
	Headless     bool          `yaml:"headless"`
	ExecPath     string        `yaml:"execPath"`
	UserAgent    string        `yaml:"userAgent"`
	WindowWidth  int           `yaml:"windowWidth"`
	WindowHeight int           `yaml:"windowHeight"`
	StartTimeout time.Duration `yaml:"startTimeout"`
	NavTimeout   time.Duration `yaml:"navTimeout"`
}

// ScanConfig bounds the filter and pagination waits.
type ScanConfig struct {
	PageBound          int           `yaml:"pageBound"`
	SettleTimeout      time.Duration `yaml:"settleTimeout"`
	TableTimeout       time.Duration `yaml:"tableTimeout"`
	InteractionTimeout time.Duration `yaml:"interactionTimeout"`
	Origins            []string      `yaml:"origins"`
}

// SinkConfig describes the webhook that acknowledges document URLs.
type SinkConfig struct {
	URL         string        `yaml:"url"`
	Auth        string        `yaml:"auth"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	// MaxAttempts drops a URL from the ledger after that many failures; 0 keeps it forever.
	MaxAttempts int `yaml:"maxAttempts"`
}

// LedgerConfig selects where outstanding URLs are persisted.
type LedgerConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// EnrichmentConfig toggles PDF tagging of delivered documents.
type EnrichmentConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxPages     int           `yaml:"maxPages"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// WordPressConfig wires the tag endpoint of the publishing site.
type WordPressConfig struct {
	SiteURL     string        `yaml:"siteUrl"`
	Username    string        `yaml:"username"`
	AppPassword string        `yaml:"appPassword"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SchedulerConfig defines when the scan should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ServerConfig holds the trigger API listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	APIBase  string `yaml:"apiBase"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LoggingConfig selects level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			// Decoding over the defaults keeps every key the file omits.
			fileCfg := cfg
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.normalize()

	return cfg
}

// Validate reports settings without which no run can succeed.
func (c Config) Validate() error {
	var errs []error
	if c.Site.URL == "" {
		errs = append(errs, errors.New("site.url is required"))
	}
	if c.Sink.URL == "" {
		errs = append(errs, fmt.Errorf("sink.url is required (or %s)", sinkURLEnv))
	}
	switch c.Ledger.Driver {
	case LedgerDriverFile:
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("ledger.path is required for the file driver"))
		}
	case LedgerDriverPostgres:
		if c.Ledger.DSN == "" {
			errs = append(errs, fmt.Errorf("ledger.dsn is required for the postgres driver (or %s)", databaseDSNEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(sinkURLEnv); v != "" {
		c.Sink.URL = v
	}

	if v := os.Getenv(sinkAuthEnv); v != "" {
		c.Sink.Auth = v
	}

	if v := os.Getenv(pageBoundEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scan.PageBound = n
		} else {
			log.Printf("config: ignoring %s=%q", pageBoundEnv, v)
		}
	}

	if v := os.Getenv(settleEnv); v != "" {
		if d, ok := parseSeconds(v); ok {
			c.Scan.SettleTimeout = d
		} else {
			log.Printf("config: ignoring %s=%q", settleEnv, v)
		}
	}

	if v := os.Getenv(ledgerPathEnv); v != "" {
		c.Ledger.Path = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Ledger.DSN = v
		if os.Getenv(ledgerPathEnv) == "" {
			c.Ledger.Driver = LedgerDriverPostgres
		}
	}

	if v := os.Getenv(chatGPTKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(wpUsernameEnv); v != "" {
		c.WordPress.Username = v
	}

	if v := os.Getenv(wpPasswordEnv); v != "" {
		c.WordPress.AppPassword = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramToken); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatID); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

// parseSeconds accepts Go durations ("5s") as well as bare seconds ("5", "2.5").
func parseSeconds(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// normalize puts non-positive numbers back to their defaults.
func (c *Config) normalize() {
	def := defaultConfig()
	if c.Scan.PageBound <= 0 {
		c.Scan.PageBound = def.Scan.PageBound
	}
	if c.Sink.Concurrency <= 0 {
		c.Sink.Concurrency = def.Sink.Concurrency
	}
	if c.Sink.MaxAttempts < 0 {
		c.Sink.MaxAttempts = 0
	}
	if c.Enrichment.MaxPages <= 0 {
		c.Enrichment.MaxPages = def.Enrichment.MaxPages
	}
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = LedgerDriverFile
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Site: SiteConfig{
			URL:     "https://www.cafc.uscourts.gov/home/case-information/opinions-orders/",
			BaseURL: "https://www.cafc.uscourts.gov",
		},
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1920,
			WindowHeight: 1080,
			StartTimeout: 30 * time.Second,
			NavTimeout:   30 * time.Second,
		},
		Scan: ScanConfig{
			PageBound:          500,
			SettleTimeout:      5 * time.Second,
			TableTimeout:       10 * time.Second,
			InteractionTimeout: 10 * time.Second,
			Origins:            []string{"CFC"},
		},
		Sink: SinkConfig{
			Timeout:     15 * time.Second,
			Concurrency: 4,
			MaxAttempts: 10,
		},
		Ledger: LedgerConfig{
			Driver: LedgerDriverFile,
			Path:   "data/outstanding.txt",
		},
		Enrichment: EnrichmentConfig{
			Enabled:      false,
			MaxPages:     3,
			FetchTimeout: 30 * time.Second,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You label court opinions with patent-law topics.",
			Timeout:      30 * time.Second,
		},
		WordPress: WordPressConfig{Timeout: 15 * time.Second},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Server:    ServerConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}
