package browser

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher starts Chromium through Playwright and hands out one
// browser context per Launch.
type PlaywrightLauncher struct {
	mu          sync.Mutex
	opts        LaunchOptions
	playwright  *playwright.Playwright
	browser     playwright.Browser
	tabs        map[*playwrightTab]struct{}
	initialized bool
}

// NewPlaywrightLauncher creates a launcher. Initialize must be called before use.
func NewPlaywrightLauncher(opts LaunchOptions) *PlaywrightLauncher {
	return &PlaywrightLauncher{
		opts: opts.withDefaults(),
		tabs: make(map[*playwrightTab]struct{}),
	}
}

// Initialize installs the Playwright driver if needed, starts it and launches
// Chromium.
func (l *PlaywrightLauncher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	// Driver output would interleave with our own log lines
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	headless := l.opts.Headless
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	l.playwright = pw
	l.browser = browser
	l.initialized = true
	return nil
}

// Launch opens a fresh browser context with a single page.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, fmt.Errorf("playwright launcher not initialized")
	}

	bctx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  l.opts.Viewport.Width,
			Height: l.opts.Viewport.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(l.opts.Timeout)

	tab := &playwrightTab{launcher: l, context: bctx, page: page}
	l.tabs[tab] = struct{}{}
	return tab, nil
}

// Shutdown closes all open tabs, the browser and the Playwright driver.
func (l *PlaywrightLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for tab := range l.tabs {
		tab.closeResources()
		delete(l.tabs, tab)
	}

	if !l.initialized {
		return nil
	}
	_ = l.browser.Close() // Ignore errors, continue cleanup
	if err := l.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	l.initialized = false
	return nil
}

func (l *PlaywrightLauncher) forget(tab *playwrightTab) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tabs, tab)
}

type playwrightTab struct {
	launcher  *PlaywrightLauncher
	context   playwright.BrowserContext
	page      playwright.Page
	closeOnce sync.Once
}

func (t *playwrightTab) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState("domcontentloaded")
	if _, err := t.page.Goto(url, playwright.PageGotoOptions{WaitUntil: &waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (t *playwrightTab) URL() string {
	return t.page.URL()
}

func (t *playwrightTab) QueryAll(ctx context.Context, sel Selector) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := t.page.QuerySelectorAll(playwrightSelector(sel))
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		el := playwrightElement{handle: h}
		// :has-text() only applies to the CSS engine
		if sel.XPath != "" && sel.HasText != "" {
			text, err := el.Text()
			if err != nil || !containsFold(text, sel.HasText) {
				continue
			}
		}
		elements = append(elements, el)
	}
	return elements, nil
}

func (t *playwrightTab) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.page.Content()
}

func (t *playwrightTab) Scroll(ctx context.Context, deltaY float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.page.Mouse().Wheel(0, deltaY)
}

func (t *playwrightTab) Close() error {
	t.closeResources()
	t.launcher.forget(t)
	return nil
}

func (t *playwrightTab) closeResources() {
	t.closeOnce.Do(func() {
		_ = t.page.Close()    // Ignore errors, continue cleanup
		_ = t.context.Close() // Ignore errors, continue cleanup
	})
}

// playwrightSelector converts a Selector into Playwright selector syntax.
func playwrightSelector(sel Selector) string {
	if sel.XPath != "" {
		return "xpath=" + sel.XPath
	}
	if sel.HasText != "" {
		return sel.CSS + ":has-text(" + strconv.Quote(sel.HasText) + ")"
	}
	return sel.CSS
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e playwrightElement) IsVisible() (bool, error) { return e.handle.IsVisible() }
func (e playwrightElement) IsEnabled() (bool, error) { return e.handle.IsEnabled() }
func (e playwrightElement) Click() error             { return e.handle.Click() }
func (e playwrightElement) Fill(value string) error  { return e.handle.Fill(value) }
func (e playwrightElement) Type(text string) error   { return e.handle.Type(text) }
func (e playwrightElement) Text() (string, error)    { return e.handle.InnerText() }

func (e playwrightElement) Attribute(name string) (string, error) {
	return e.handle.GetAttribute(name)
}
