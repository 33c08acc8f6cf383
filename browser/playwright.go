package browser

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/playwright-community/playwright-go"

	"github.com/jorgecela/ironman-races-analysis/config"
)

// Selectors for the results widget. The table is a MUI data grid rendered
// inside an embedding iframe on the race entry page.
const (
	selResultsFrame = "iframe.coh-iframe"
	selDateCombobox = "div[role='combobox']"
	selDateOptions  = "ul[role='listbox'] li[role='option']"
	selPageSize     = "div.MuiTablePagination-select"
	selPageSizeMax  = "xpath=//li[contains(text(),'100')]"
	selRows         = "div[role='row'][data-rowindex]"
	selNextButton   = "button[aria-label='Go to next page']"
)

const widgetCacheSize = 256

// PlaywrightFactory opens sessions through a shared Playwright runtime.
// Resolved widget URLs are cached per entry URL so that session recycles can
// re-enter the results frame without reloading the embedding page.
type PlaywrightFactory struct {
	cfg     *config.Config
	pw      *playwright.Playwright
	widgets *lru.Cache[string, string]
}

// NewPlaywrightFactory starts the Playwright runtime. The returned factory
// must be closed by the caller; closing it stops the runtime.
func NewPlaywrightFactory(cfg *config.Config) (*PlaywrightFactory, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright (run `playwright install chromium` if missing): %w", err)
	}
	widgets, err := lru.New[string, string](widgetCacheSize)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("widget url cache: %w", err)
	}
	return &PlaywrightFactory{cfg: cfg, pw: pw, widgets: widgets}, nil
}

// Open launches a browser, navigates to the race entry URL, resolves the
// embedded results frame and navigates into it.
func (f *PlaywrightFactory) Open(ctx context.Context, entryURL string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := f.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.cfg.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(f.cfg.ShortTimeout.Milliseconds()))

	widgetURL, err := f.resolveWidgetURL(page, entryURL)
	if err != nil {
		browser.Close()
		return nil, err
	}

	if _, err := page.Goto(widgetURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(f.cfg.LongTimeout.Milliseconds())),
	}); err != nil {
		browser.Close()
		return nil, fmt.Errorf("enter results widget: %w", err)
	}

	return &playwrightSession{cfg: f.cfg, browser: browser, page: page}, nil
}

func (f *PlaywrightFactory) resolveWidgetURL(page playwright.Page, entryURL string) (string, error) {
	if cached, ok := f.widgets.Get(entryURL); ok {
		return cached, nil
	}

	if _, err := page.Goto(entryURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(f.cfg.LongTimeout.Milliseconds())),
	}); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", entryURL, err)
	}

	src, err := page.Locator(selResultsFrame).GetAttribute("src")
	if err != nil {
		return "", fmt.Errorf("locate results frame: %w", err)
	}
	if src == "" {
		return "", fmt.Errorf("results frame has no source on %s", entryURL)
	}

	f.widgets.Add(entryURL, src)
	return src, nil
}

// Close stops the Playwright runtime.
func (f *PlaywrightFactory) Close() error {
	return f.pw.Stop()
}

type playwrightSession struct {
	cfg     *config.Config
	browser playwright.Browser
	page    playwright.Page
}

func (s *playwrightSession) short() *float64 {
	return playwright.Float(float64(s.cfg.ShortTimeout.Milliseconds()))
}

func (s *playwrightSession) long() *float64 {
	return playwright.Float(float64(s.cfg.LongTimeout.Milliseconds()))
}

func (s *playwrightSession) DateLabels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options, err := s.openDateSelector()
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(options))
	for _, option := range options {
		text, err := option.InnerText(playwright.LocatorInnerTextOptions{Timeout: s.short()})
		if err != nil {
			s.closeDateSelector()
			return nil, fmt.Errorf("read date option %d: %w", len(labels), err)
		}
		labels = append(labels, strings.TrimSpace(text))
	}

	s.closeDateSelector()
	return labels, nil
}

func (s *playwrightSession) SelectDate(ctx context.Context, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	options, err := s.openDateSelector()
	if err != nil {
		return "", err
	}
	if index >= len(options) {
		s.closeDateSelector()
		return "", fmt.Errorf("date option %d out of range (%d options)", index, len(options))
	}

	option := options[index]
	label, err := option.InnerText(playwright.LocatorInnerTextOptions{Timeout: s.short()})
	if err != nil {
		s.closeDateSelector()
		return "", fmt.Errorf("read date option %d: %w", index, err)
	}

	// Clicking the option the widget already has applied only closes the
	// dropdown; the table keeps showing this date and never rebuilds, so a
	// staleness wait would time out.
	selected, err := option.GetAttribute("aria-selected")
	if err != nil {
		selected = ""
	}
	if dateAlreadyApplied(selected) {
		if err := option.Click(playwright.LocatorClickOptions{Timeout: s.short()}); err != nil {
			return "", fmt.Errorf("select date option %d: %w", index, err)
		}
		return strings.TrimSpace(label), nil
	}

	// Pin a row before the click; its detachment proves the table swapped to
	// the new date instead of still rendering the previous one.
	stale, err := s.pinFirstRow()
	if err != nil {
		s.closeDateSelector()
		return "", fmt.Errorf("pin current row set: %w", err)
	}
	if err := option.Click(playwright.LocatorClickOptions{Timeout: s.short()}); err != nil {
		return "", fmt.Errorf("select date option %d: %w", index, err)
	}
	if err := s.waitStale(stale); err != nil {
		return "", fmt.Errorf("table did not rebuild after selecting date option %d: %w", index, err)
	}

	return strings.TrimSpace(label), nil
}

// dateAlreadyApplied reports whether a date option click is a no-op for the
// table because the option carries the selected marker.
func dateAlreadyApplied(ariaSelected string) bool {
	return ariaSelected == "true"
}

// openDateSelector clicks the combobox open and resolves the option list.
// The selector DOM is rebuilt on every visit, so options are never cached.
func (s *playwrightSession) openDateSelector() ([]playwright.Locator, error) {
	if err := s.page.Locator(selDateCombobox).Click(playwright.LocatorClickOptions{Timeout: s.short()}); err != nil {
		return nil, fmt.Errorf("open date selector: %w", err)
	}

	list := s.page.Locator(selDateOptions)
	if err := list.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: s.short(),
	}); err != nil {
		return nil, fmt.Errorf("date options did not appear: %w", err)
	}

	options, err := list.All()
	if err != nil {
		return nil, fmt.Errorf("enumerate date options: %w", err)
	}
	return options, nil
}

func (s *playwrightSession) closeDateSelector() {
	// Best effort, same as the widget's own escape handling.
	s.page.Keyboard().Press("Escape")
}

func (s *playwrightSession) MaximizePageSize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.page.Locator(selPageSize).Click(playwright.LocatorClickOptions{Timeout: s.short()}); err != nil {
		return fmt.Errorf("open page size selector: %w", err)
	}

	stale, err := s.pinFirstRow()
	if err != nil {
		return fmt.Errorf("pin current row set: %w", err)
	}
	if err := s.page.Locator(selPageSizeMax).First().Click(playwright.LocatorClickOptions{Timeout: s.short()}); err != nil {
		return fmt.Errorf("pick maximum page size: %w", err)
	}

	// The table reloads completely after a page-size change; the old row set
	// must detach before the new one counts as loaded.
	if err := s.waitStale(stale); err != nil {
		return fmt.Errorf("table did not reload after page size change: %w", err)
	}
	if err := s.page.Locator(selRows).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: s.long(),
	}); err != nil {
		return fmt.Errorf("rows did not come back after page size change: %w", err)
	}
	return nil
}

func (s *playwrightSession) Rows(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list := s.page.Locator(selRows)
	if err := list.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: s.long(),
	}); err != nil {
		return nil, fmt.Errorf("result rows did not appear: %w", err)
	}

	count, err := list.Count()
	if err != nil {
		return nil, fmt.Errorf("count result rows: %w", err)
	}

	rows := make([]Row, count)
	for i := 0; i < count; i++ {
		rows[i] = &playwrightRow{session: s, ordinal: i}
	}
	return rows, nil
}

func (s *playwrightSession) NextPage(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	next := s.page.Locator(selNextButton)
	count, err := next.Count()
	if err != nil {
		return false, fmt.Errorf("probe next page control: %w", err)
	}
	if count == 0 {
		return false, nil
	}

	class, err := next.GetAttribute("class")
	if err != nil {
		return false, fmt.Errorf("probe next page control: %w", err)
	}
	if strings.Contains(class, "Mui-disabled") {
		return false, nil
	}

	// Hold a handle on the first row before clicking; its detachment is the
	// proof that the table actually transitioned, not just that the click
	// fired.
	stale, err := s.pinFirstRow()
	if err != nil {
		return false, fmt.Errorf("pin current row set: %w", err)
	}

	if err := next.Click(playwright.LocatorClickOptions{Timeout: s.short()}); err != nil {
		return false, fmt.Errorf("click next page: %w", err)
	}

	if err := s.waitStale(stale); err != nil {
		return false, fmt.Errorf("row set never went stale after next page click: %w", err)
	}
	return true, nil
}

// pinFirstRow grabs an element handle on the first rendered result row. The
// handle going hidden later proves the grid rebuilt its row set.
func (s *playwrightSession) pinFirstRow() (playwright.ElementHandle, error) {
	return s.page.Locator(selRows).First().ElementHandle(playwright.LocatorElementHandleOptions{
		Timeout: s.short(),
	})
}

func (s *playwrightSession) waitStale(stale playwright.ElementHandle) error {
	return stale.WaitForElementState(*playwright.ElementStateHidden, playwright.ElementHandleWaitForElementStateOptions{
		Timeout: s.long(),
	})
}

func (s *playwrightSession) Close() error {
	return s.browser.Close()
}

// playwrightRow addresses a row by ordinal and re-resolves its locator on
// every interaction; handles held across the grid's async settling are not
// assumed stable.
type playwrightRow struct {
	session *playwrightSession
	ordinal int
}

func (r *playwrightRow) locator() playwright.Locator {
	return r.session.page.Locator(selRows).Nth(r.ordinal)
}

func (r *playwrightRow) Ordinal() int {
	return r.ordinal
}

func (r *playwrightRow) Expand(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	row := r.locator()
	if err := row.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: r.session.short(),
	}); err != nil {
		return fmt.Errorf("scroll row %d into view: %w", r.ordinal, err)
	}
	if err := row.Click(playwright.LocatorClickOptions{Timeout: r.session.short()}); err != nil {
		return fmt.Errorf("expand row %d: %w", r.ordinal, err)
	}
	return nil
}

func (r *playwrightRow) Collapse(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.locator().Click(playwright.LocatorClickOptions{Timeout: r.session.short()}); err != nil {
		return fmt.Errorf("collapse row %d: %w", r.ordinal, err)
	}
	return nil
}

func (r *playwrightRow) Cell(ctx context.Context, field string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	index, err := r.locator().GetAttribute("data-rowindex")
	if err != nil {
		return "", fmt.Errorf("row %d index: %w", r.ordinal, err)
	}

	// Cell text nests either directly in a <p> or inside a wrapping span;
	// both variants occur in the same grid.
	variants := []string{
		fmt.Sprintf("xpath=//div[@data-rowindex='%s']//div[@data-field='%s']/p", index, field),
		fmt.Sprintf("xpath=//div[@data-rowindex='%s']//div[@data-field='%s']/span/p", index, field),
	}

	var lastErr error
	for _, selector := range variants {
		text, err := r.session.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
			Timeout: r.session.short(),
		})
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("cell %s of row %d: %w", field, r.ordinal, lastErr)
}

func (r *playwrightRow) Detail(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The expanded panel renders value/label sibling pairs; anchoring on the
	// label keeps the read correct when the panel layout reorders.
	selector := fmt.Sprintf("xpath=//h6[contains(text(),'%s')]/preceding-sibling::h6", label)
	text, err := r.session.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: r.session.short(),
	})
	if err != nil {
		return "", fmt.Errorf("detail %q of row %d: %w", label, r.ordinal, err)
	}
	return strings.TrimSpace(text), nil
}
