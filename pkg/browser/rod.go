package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodLauncher drives Chromium over the DevTools protocol. Each Launch opens an
// incognito browser context so sessions never share cookies.
type RodLauncher struct {
	mu      sync.Mutex
	opts    LaunchOptions
	browser *rod.Browser
	tabs    map[*rodTab]struct{}
}

// NewRodLauncher creates a launcher. Initialize must be called before use.
func NewRodLauncher(opts LaunchOptions) *RodLauncher {
	return &RodLauncher{
		opts: opts.withDefaults(),
		tabs: make(map[*rodTab]struct{}),
	}
}

// Initialize connects to ControlURL, or launches a local Chromium when it is empty.
func (l *RodLauncher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		return nil
	}

	controlURL := l.opts.ControlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(l.opts.Headless).Launch()
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	l.browser = browser
	return nil
}

// Launch opens a new incognito context with one blank page.
func (l *RodLauncher) Launch(ctx context.Context) (Tab, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser == nil {
		return nil, fmt.Errorf("rod launcher not initialized")
	}

	incognito, err := l.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             l.opts.Viewport.Width,
		Height:            l.opts.Viewport.Height,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		_ = page.Close()
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	tab := &rodTab{
		launcher: l,
		context:  incognito,
		page:     page,
		timeout:  time.Duration(l.opts.Timeout) * time.Millisecond,
	}
	l.tabs[tab] = struct{}{}
	return tab, nil
}

// Shutdown closes every open context and the browser connection.
func (l *RodLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for tab := range l.tabs {
		tab.closeResources()
		delete(l.tabs, tab)
	}
	if l.browser == nil {
		return nil
	}
	err := l.browser.Close()
	l.browser = nil
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (l *RodLauncher) forget(tab *rodTab) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tabs, tab)
}

type rodTab struct {
	launcher  *RodLauncher
	context   *rod.Browser
	page      *rod.Page
	timeout   time.Duration
	closeOnce sync.Once
}

// bound returns the page scoped to ctx and the default operation timeout.
func (t *rodTab) bound(ctx context.Context) *rod.Page {
	return t.page.Context(ctx).Timeout(t.timeout)
}

func (t *rodTab) Navigate(ctx context.Context, url string) error {
	page := t.bound(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (t *rodTab) URL() string {
	info, err := t.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (t *rodTab) QueryAll(ctx context.Context, sel Selector) ([]Element, error) {
	page := t.bound(ctx)

	var (
		found rod.Elements
		err   error
	)
	if sel.XPath != "" {
		found, err = page.ElementsX(sel.XPath)
	} else {
		found, err = page.Elements(sel.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}

	elements := make([]Element, 0, len(found))
	for _, el := range found {
		e := rodElement{el: el}
		if sel.HasText != "" {
			text, err := e.Text()
			if err != nil || !containsFold(text, sel.HasText) {
				continue
			}
		}
		elements = append(elements, e)
	}
	return elements, nil
}

func (t *rodTab) Content(ctx context.Context) (string, error) {
	return t.bound(ctx).HTML()
}

func (t *rodTab) Scroll(ctx context.Context, deltaY float64) error {
	return t.bound(ctx).Mouse.Scroll(0, deltaY, 1)
}

func (t *rodTab) Close() error {
	t.closeResources()
	t.launcher.forget(t)
	return nil
}

func (t *rodTab) closeResources() {
	t.closeOnce.Do(func() {
		_ = t.page.Close()    // Ignore errors, continue cleanup
		_ = t.context.Close() // Ignore errors, continue cleanup
	})
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) IsVisible() (bool, error) { return e.el.Visible() }

func (e rodElement) IsEnabled() (bool, error) {
	disabled, err := e.el.Disabled()
	if err != nil {
		return false, err
	}
	return !disabled, nil
}

func (e rodElement) Click() error { return e.el.Click(proto.InputMouseButtonLeft, 1) }

func (e rodElement) Fill(value string) error {
	if err := e.el.SelectAllText(); err != nil {
		return err
	}
	return e.el.Input(value)
}

func (e rodElement) Type(text string) error { return e.el.Input(text) }

func (e rodElement) Text() (string, error) { return e.el.Text() }

func (e rodElement) Attribute(name string) (string, error) {
	value, err := e.el.Attribute(name)
	if err != nil || value == nil {
		return "", err
	}
	return *value, nil
}
