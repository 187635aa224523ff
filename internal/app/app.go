package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"OpinionsScanner/internal/config"
	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/httpapi"
	"OpinionsScanner/internal/infrastructure/browser"
	"OpinionsScanner/internal/infrastructure/document"
	"OpinionsScanner/internal/infrastructure/llm"
	"OpinionsScanner/internal/infrastructure/parser"
	"OpinionsScanner/internal/infrastructure/scheduler"
	"OpinionsScanner/internal/infrastructure/storage"
	"OpinionsScanner/internal/infrastructure/telegram"
	"OpinionsScanner/internal/infrastructure/webhook"
	"OpinionsScanner/internal/infrastructure/wordpress"
	"OpinionsScanner/internal/logging"
	"OpinionsScanner/internal/ports"
	"OpinionsScanner/internal/scanner"
	"OpinionsScanner/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	origins  []domain.OriginCode
	pipeline *usecase.Pipeline
	db       *sql.DB
}

// New builds a runnable application instance. The returned Application owns
// the database pool, if any; call Close when done.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	origins, err := parseOrigins(cfg.Scan.Origins)
	if err != nil {
		return nil, err
	}

	source, err := newCourtSource(cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, origins: origins}

	ledger, err := a.newLedgerStore(ctx)
	if err != nil {
		return nil, err
	}

	sink, err := webhook.NewSink(cfg.Sink)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:   source,
		Ledger:   ledger,
		Delivery: usecase.NewDeliveryQueue(sink, cfg.Sink.Concurrency, cfg.Sink.MaxAttempts, baseLogger.With("component", "delivery")),
		Enricher: newEnricher(cfg, baseLogger),
		Notifier: newNotifier(cfg.Notifications.Telegram, baseLogger),
		Logger:   baseLogger.With("component", "pipeline"),
	})
	return a, nil
}

func newCourtSource(cfg config.Config, logger *slog.Logger) (*parser.CourtSource, error) {
	selectors := selectorsFromConfig(cfg.Site.Selectors)
	timeouts := scanner.Timeouts{
		Interaction: cfg.Scan.InteractionTimeout,
		Table:       cfg.Scan.TableTimeout,
		Settle:      cfg.Scan.SettleTimeout,
	}

	extractor, err := parser.NewTableExtractor(cfg.Site.BaseURL, logger.With("component", "extractor"))
	if err != nil {
		return nil, err
	}

	sessions := browser.NewFactory(browser.Options{
		Headless:      cfg.Browser.Headless,
		ExecPath:      cfg.Browser.ExecPath,
		UserAgent:     cfg.Browser.UserAgent,
		WindowWidth:   cfg.Browser.WindowWidth,
		WindowHeight:  cfg.Browser.WindowHeight,
		StartTimeout:  cfg.Browser.StartTimeout,
		NavTimeout:    cfg.Browser.NavTimeout,
		ActionTimeout: cfg.Scan.InteractionTimeout,
	}, logger.With("component", "browser"))

	return parser.NewCourtSource(
		sessions,
		cfg.Site.URL,
		scanner.NewFilterController(selectors, timeouts, logger.With("component", "filter")),
		scanner.NewPaginator(selectors, timeouts, extractor, cfg.Scan.PageBound, logger.With("component", "paginator")),
		logger.With("component", "source"),
	), nil
}

func (a *Application) newLedgerStore(ctx context.Context) (ports.LedgerStore, error) {
	switch a.cfg.Ledger.Driver {
	case config.LedgerDriverPostgres:
		db, err := storage.OpenPostgres(ctx, a.cfg.Ledger.DSN)
		if err != nil {
			return nil, err
		}
		store := storage.NewPostgresLedgerStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		return store, nil
	default:
		return storage.NewFileLedgerStore(a.cfg.Ledger.Path, a.logger.With("component", "ledger"))
	}
}

func newEnricher(cfg config.Config, logger *slog.Logger) *usecase.Enricher {
	if !cfg.Enrichment.Enabled {
		return nil
	}
	logger = logger.With("component", "enrichment")
	if cfg.ChatGPT.APIKey == "" {
		logger.Warn("enrichment enabled without a chatgpt api key, disabling")
		return nil
	}

	var tagSink ports.TagSink
	if cfg.WordPress.SiteURL != "" {
		client, err := wordpress.NewTagClient(cfg.WordPress)
		if err != nil {
			logger.Warn("wordpress tag sink disabled", "error", err)
		} else {
			tagSink = client
		}
	}

	return usecase.NewEnricher(usecase.EnricherDeps{
		Fetcher:  document.NewFetcher(cfg.Enrichment.FetchTimeout, cfg.Browser.UserAgent),
		Reader:   document.PDFReader{},
		Tagger:   llm.NewChatGPTClient(cfg.ChatGPT),
		TagSink:  tagSink,
		MaxPages: cfg.Enrichment.MaxPages,
		Logger:   logger,
	})
}

func newNotifier(cfg config.TelegramConfig, logger *slog.Logger) ports.Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil
	}
	logger.Info("telegram run reports enabled", "chat_id", cfg.ChatID)
	return telegram.NewNotifier(cfg)
}

// RunDay scans one calendar day. Empty origins fall back to the configured ones.
func (a *Application) RunDay(ctx context.Context, day time.Time, origins []domain.OriginCode) (domain.RunSummary, error) {
	if len(origins) == 0 {
		origins = a.origins
	}
	query, err := domain.NewQuery(day, day, origins)
	if err != nil {
		return domain.RunSummary{}, err
	}
	return a.pipeline.Run(ctx, query)
}

// Today is the current date in the scheduler time zone.
func (a *Application) Today() time.Time {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Flush retries outstanding deliveries only.
func (a *Application) Flush(ctx context.Context) (domain.RunSummary, error) {
	return a.pipeline.FlushOutstanding(ctx)
}

// Serve runs the trigger API and the cron schedule until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	loc := a.cfg.Scheduler.Location()
	handler := httpapi.NewHandler(a.pipeline, a.origins, loc, a.logger.With("component", "http"))
	server := httpapi.NewServer(handler, a.logger.With("component", "http"))

	sched := usecase.NewScheduler(
		scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, loc, a.logger.With("component", "cron")),
		a.pipeline,
		a.origins,
		a.logger.With("component", "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := server.Start(a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Close releases the database pool.
func (a *Application) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
	a.db = nil
}

func parseOrigins(raw []string) ([]domain.OriginCode, error) {
	origins := make([]domain.OriginCode, 0, len(raw))
	for _, r := range raw {
		code, err := domain.ParseOriginCode(r)
		if err != nil {
			return nil, fmt.Errorf("scan.origins: %w", err)
		}
		origins = append(origins, code)
	}
	return origins, nil
}

// selectorsFromConfig overlays configured selectors on the defaults.
func selectorsFromConfig(c config.SelectorsConfig) scanner.Selectors {
	s := scanner.DefaultSelectors()
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&s.FromDate, c.FromDate)
	override(&s.ToDate, c.ToDate)
	override(&s.OriginButton, c.OriginButton)
	override(&s.OriginMenu, c.OriginMenu)
	override(&s.OriginOption, c.OriginOption)
	override(&s.TableBody, c.TableBody)
	override(&s.Next, c.Next)
	override(&s.Processing, c.Processing)
	return s
}
