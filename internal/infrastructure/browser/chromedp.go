package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"OpinionsScanner/internal/ports"
)

// runActions is chromedp.Run; tests replace it to observe contexts.
var runActions = chromedp.Run

// Options configures the headless Chrome instance.
type Options struct {
	Headless      bool
	ExecPath      string
	UserAgent     string
	WindowWidth   int
	WindowHeight  int
	StartTimeout  time.Duration
	NavTimeout    time.Duration
	ActionTimeout time.Duration
}

// Factory starts one Chrome process per session.
type Factory struct {
	opts   Options
	logger *slog.Logger
}

var _ ports.SessionFactory = (*Factory)(nil)

// NewFactory fills zero options with defaults.
func NewFactory(opts Options, logger *slog.Logger) *Factory {
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = 1920, 1080
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Factory{opts: opts, logger: logger}
}

// Open launches Chrome and returns a session bound to a fresh tab. The
// browser is torn down when ctx is cancelled or the session is closed.
func (f *Factory) Open(ctx context.Context) (ports.RenderSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(f.opts.WindowWidth, f.opts.WindowHeight),
	)
	if f.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(f.opts.ExecPath))
	}
	if f.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(f.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			f.logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	// chromedp's tab cancel blocks when called twice on a tab that never
	// allocated a browser.
	var once sync.Once
	s := &Session{
		tabCtx:     tabCtx,
		cancel:     func() { once.Do(func() { tabCancel(); allocCancel() }) },
		navTimeout: f.opts.NavTimeout,
		actTimeout: f.opts.ActionTimeout,
		logger:     f.logger,
	}

	if err := s.start(ctx, f.opts.StartTimeout); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	f.logger.Debug("render session opened", "headless", f.opts.Headless)
	return s, nil
}

// Session is a RenderSession over a single chromedp tab.
type Session struct {
	tabCtx     context.Context
	cancel     func()
	navTimeout time.Duration
	actTimeout time.Duration
	logger     *slog.Logger
}

var _ ports.RenderSession = (*Session)(nil)

// start runs an empty action list on the tab context, which launches Chrome.
// The browser process lives as long as the context of this first Run, so no
// timeout is derived here; a timer kills the browser if startup is too slow.
func (s *Session) start(ctx context.Context, timeout time.Duration) error {
	timer := time.AfterFunc(timeout, s.cancel)
	err := runActions(s.tabCtx)
	if !timer.Stop() {
		return fmt.Errorf("browser not ready after %s: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// run executes actions bounded by timeout and by the caller's ctx. Only the
// derived context is cancelled, so the tab survives a timed-out action.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := runActions(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navTimeout, chromedp.Navigate(url))
}

func (s *Session) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// WaitHidden treats a missing element as hidden.
func (s *Session) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return true;
		const style = window.getComputedStyle(el);
		return style.display === "none" || style.visibility === "hidden" || el.offsetParent === null;
	})()`, jsString(selector))

	var hidden bool
	return s.run(ctx, timeout, chromedp.Poll(expr, &hidden,
		chromedp.WithPollingInterval(200*time.Millisecond),
		chromedp.WithPollingTimeout(timeout),
	))
}

func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx, s.actTimeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value+kb.Enter, chromedp.ByQuery),
	)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, s.actTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *Session) PressEscape(ctx context.Context) error {
	return s.run(ctx, s.actTimeout, chromedp.KeyEvent(kb.Escape))
}

func (s *Session) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx, s.actTimeout,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (s *Session) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := s.run(ctx, s.actTimeout, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Attribute does not wait for the element; absence is reported, not an error.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? {exists: true, value: el.getAttribute(%s) || ""} : {exists: false, value: ""};
	})()`, jsString(selector), jsString(name))

	var res struct {
		Exists bool   `json:"exists"`
		Value  string `json:"value"`
	}
	if err := s.run(ctx, s.actTimeout, chromedp.Evaluate(expr, &res)); err != nil {
		return "", false, err
	}
	return res.Value, res.Exists, nil
}

// Close shuts the tab down gracefully and then kills the browser process.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.cancel()
	if err != nil {
		return fmt.Errorf("close tab: %w", err)
	}
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
