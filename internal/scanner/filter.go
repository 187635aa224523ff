package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

// DateLayout is the date format the site's range inputs expect.
const DateLayout = "01/02/2006"

// FilterController applies a query to the table's date and origin controls.
type FilterController struct {
	selectors Selectors
	timeouts  Timeouts
	logger    *slog.Logger
}

// NewFilterController wires selectors and waits; a nil logger discards output.
func NewFilterController(selectors Selectors, timeouts Timeouts, logger *slog.Logger) *FilterController {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FilterController{selectors: selectors, timeouts: timeouts, logger: logger}
}

// Apply sets the date range, toggles the query's origins by label and waits
// for the table to settle. Every step is attempted; failures are joined under
// domain.ErrFilterApplicationFailed so the caller can continue degraded.
func (f *FilterController) Apply(ctx context.Context, session ports.RenderSession, query domain.Query) error {
	var errs []error

	if err := f.setDate(ctx, session, f.selectors.FromDate, query.From()); err != nil {
		errs = append(errs, fmt.Errorf("from date: %w", err))
	}
	if err := f.setDate(ctx, session, f.selectors.ToDate, query.To()); err != nil {
		errs = append(errs, fmt.Errorf("to date: %w", err))
	}

	if origins := query.Origins(); len(origins) > 0 {
		if err := f.selectOrigins(ctx, session, origins); err != nil {
			errs = append(errs, err)
		}
		if err := session.PressEscape(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close origin selector: %w", err))
		}
	}

	if err := session.WaitHidden(ctx, f.selectors.Processing, f.timeouts.Settle); err != nil {
		errs = append(errs, fmt.Errorf("wait for table to settle: %w", err))
	}

	if len(errs) == 0 {
		f.logger.Debug("filter applied", "query", query.String())
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrFilterApplicationFailed, errors.Join(errs...))
}

func (f *FilterController) setDate(ctx context.Context, session ports.RenderSession, selector string, day time.Time) error {
	if err := session.WaitPresent(ctx, selector, f.timeouts.Interaction); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Interaction)
	defer cancel()
	return session.SetValue(ctx, selector, day.Format(DateLayout))
}

func (f *FilterController) selectOrigins(ctx context.Context, session ports.RenderSession, origins []domain.OriginCode) error {
	if err := session.WaitPresent(ctx, f.selectors.OriginButton, f.timeouts.Interaction); err != nil {
		return fmt.Errorf("origin selector: %w", err)
	}
	if err := session.Click(ctx, f.selectors.OriginButton); err != nil {
		return fmt.Errorf("open origin selector: %w", err)
	}
	if err := session.WaitPresent(ctx, f.selectors.OriginMenu, f.timeouts.Interaction); err != nil {
		return fmt.Errorf("origin menu: %w", err)
	}

	menu, err := session.OuterHTML(ctx, f.selectors.OriginMenu)
	if err != nil {
		return fmt.Errorf("read origin menu: %w", err)
	}
	options, err := parseOriginOptions(menu)
	if err != nil {
		return fmt.Errorf("parse origin menu: %w", err)
	}

	var errs []error
	for _, origin := range origins {
		opt, ok := options[normalizeLabel(origin.Label())]
		if !ok {
			errs = append(errs, fmt.Errorf("origin %s: no option labelled %q", origin, origin.Label()))
			continue
		}
		if opt.selected {
			f.logger.Debug("origin already selected", "origin", origin)
			continue
		}
		if err := session.Click(ctx, fmt.Sprintf(f.selectors.OriginOption, opt.position)); err != nil {
			errs = append(errs, fmt.Errorf("origin %s: %w", origin, err))
		}
	}
	return errors.Join(errs...)
}

type originOption struct {
	position int
	selected bool
}

// parseOriginOptions indexes the menu entries by normalized label. Positions
// are 1-based over all element children, matching :nth-child.
func parseOriginOptions(menuHTML string) (map[string]originOption, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(menuHTML))
	if err != nil {
		return nil, err
	}

	options := map[string]originOption{}
	doc.Find("ul").First().Children().Each(func(i int, li *goquery.Selection) {
		if goquery.NodeName(li) != "li" {
			return
		}
		label := normalizeLabel(li.Text())
		if label == "" {
			return
		}
		if _, dup := options[label]; dup {
			return
		}
		options[label] = originOption{position: i + 1, selected: li.HasClass("selected")}
	})
	return options, nil
}

func normalizeLabel(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
