package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"OpinionsScanner/internal/domain"
)

var errWaitTimeout = errors.New("wait timeout")

// fakeTable simulates the rendered opinions table. Each page is a list of
// document URLs; the body HTML is one URL per line.
type fakeTable struct {
	sel      Selectors
	pages    [][]string
	current  int
	endless  bool // next is always enabled and every page is new
	stuck    bool // next is enabled but clicking it does not change the page
	noNext   bool
	lag      int // reads of the body that still show the old page after a next click
	stale    int
	missing  map[string]bool
	menuHTML string
	values   map[string]string
	clicks   []string
}

func newFakeTable(pages ...[]string) *fakeTable {
	return &fakeTable{
		sel:     DefaultSelectors(),
		pages:   pages,
		missing: map[string]bool{},
		values:  map[string]string{},
	}
}

func (f *fakeTable) Navigate(context.Context, string) error { return nil }

func (f *fakeTable) WaitPresent(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.missing[selector] {
		return fmt.Errorf("%s: %w", selector, errWaitTimeout)
	}
	return nil
}

func (f *fakeTable) WaitHidden(context.Context, string, time.Duration) error { return nil }

func (f *fakeTable) SetValue(_ context.Context, selector, value string) error {
	f.values[selector] = value
	return nil
}

func (f *fakeTable) Click(_ context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	if selector == f.sel.Next && !f.stuck {
		f.current++
		f.stale = f.lag
	}
	return nil
}

func (f *fakeTable) PressEscape(context.Context) error    { return nil }
func (f *fakeTable) ScrollToBottom(context.Context) error { return nil }

func (f *fakeTable) OuterHTML(_ context.Context, selector string) (string, error) {
	switch selector {
	case f.sel.TableBody:
		shown := f.current
		if f.stale > 0 {
			f.stale--
			shown--
		}
		if f.endless {
			return fmt.Sprintf("https://example.test/doc-%d.pdf", shown), nil
		}
		if shown >= len(f.pages) {
			return "", nil
		}
		return strings.Join(f.pages[shown], "\n"), nil
	case f.sel.OriginMenu:
		return f.menuHTML, nil
	}
	return "", fmt.Errorf("unexpected selector %s", selector)
}

func (f *fakeTable) Attribute(_ context.Context, selector, name string) (string, bool, error) {
	if selector != f.sel.Next || name != "class" {
		return "", false, nil
	}
	if f.noNext {
		return "", false, nil
	}
	if f.endless || f.stuck || f.current < len(f.pages)-1 {
		return "paginate_button next", true, nil
	}
	return "paginate_button next disabled", true, nil
}

func (f *fakeTable) Close() error { return nil }

func (f *fakeTable) clicked(selector string) bool {
	for _, c := range f.clicks {
		if c == selector {
			return true
		}
	}
	return false
}

// lineExtractor maps each non-empty line to a record.
type lineExtractor struct{}

func (lineExtractor) ExtractPage(html string) domain.PageResult {
	var page domain.PageResult
	for _, line := range strings.Split(html, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		page = append(page, domain.CaseRecord{DocumentURL: line, Origin: "CFC"})
	}
	return page
}
