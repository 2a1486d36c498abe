// Package browsertest provides a scriptable in-memory browser.Page for tests.
//
// A Page holds one Screen per URL. Elements are registered on a screen under
// the exact Selector used to query them; the fake does not interpret CSS.
// Clicking an element runs its OnClick hook, which may change the URL (and so
// the active screen) or mutate other elements.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/entrhq/forumreply/pkg/browser"
)

// ErrDetached is returned by Element methods after Detach was called.
var ErrDetached = errors.New("element is detached from the document")

// Page is a fake browser.Page.
type Page struct {
	mu        sync.Mutex
	url       string
	screens   map[string]*Screen
	navigated []string
	queries   map[string]int
	scrolls   []float64
	closed    bool

	// NavigateErr, when set, is returned by every Navigate call.
	NavigateErr error
}

// NewPage returns a Page positioned at url.
func NewPage(url string) *Page {
	return &Page{
		url:     url,
		screens: make(map[string]*Screen),
		queries: make(map[string]int),
	}
}

// Screen returns the screen for url, creating it when missing.
func (p *Page) Screen(url string) *Screen {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.screens[url]
	if !ok {
		s = &Screen{elements: make(map[string][]*Element)}
		p.screens[url] = s
	}
	return s
}

// SetURL moves the page to url without recording a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Navigated returns every URL passed to Navigate, in order.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Queries returns how many times sel was queried.
func (p *Page) Queries(sel browser.Selector) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[sel.String()]
}

// Scrolls returns the deltas of every Scroll call.
func (p *Page) Scrolls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.scrolls...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.url = url
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) QueryAll(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	key := sel.String()
	p.queries[key]++
	s := p.screens[p.url]
	p.mu.Unlock()

	if s == nil {
		return nil, nil
	}
	if err := s.queryErr(key); err != nil {
		return nil, err
	}
	var out []browser.Element
	for _, el := range s.lookup(key) {
		out = append(out, el)
	}
	return out, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	s := p.screens[p.url]
	p.mu.Unlock()
	if s == nil {
		return "<html><body></body></html>", nil
	}
	return s.html(), nil
}

func (p *Page) Scroll(ctx context.Context, deltaY float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, deltaY)
	return nil
}

// Close satisfies browser.Tab.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Screen is the DOM state of one URL.
type Screen struct {
	mu        sync.Mutex
	elements  map[string][]*Element
	errs      map[string]error
	htmlValue string
}

// Add registers elements under sel.
func (s *Screen) Add(sel browser.Selector, elements ...*Element) *Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sel.String()
	s.elements[key] = append(s.elements[key], elements...)
	return s
}

// Remove unregisters every element under sel.
func (s *Screen) Remove(sel browser.Selector) *Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, sel.String())
	return s
}

// FailQuery makes queries for sel return err.
func (s *Screen) FailQuery(sel browser.Selector, err error) *Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	s.errs[sel.String()] = err
	return s
}

// SetHTML sets the document returned by Page.Content on this screen.
func (s *Screen) SetHTML(doc string) *Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.htmlValue = doc
	return s
}

func (s *Screen) lookup(key string) []*Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Element(nil), s.elements[key]...)
}

func (s *Screen) queryErr(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[key]
}

func (s *Screen) html() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.htmlValue == "" {
		return "<html><body></body></html>"
	}
	return s.htmlValue
}

// Element is a fake browser.Element. The zero value is visible and enabled.
type Element struct {
	mu       sync.Mutex
	hidden   bool
	disabled bool
	// enableAfter counts IsEnabled checks until a disabled element enables itself.
	enableAfter int
	detached    bool
	text        string
	attrs       map[string]string
	value       strings.Builder
	clicks      int
	typeCalls   int

	// OnClick runs after every successful click.
	OnClick func()
}

// NewElement returns a visible, enabled element with the given text.
func NewElement(text string) *Element {
	return &Element{text: text, attrs: make(map[string]string)}
}

// Link returns an element with an href attribute.
func Link(href string) *Element {
	return NewElement(href).WithAttr("href", href)
}

// Hidden marks the element as not visible.
func (e *Element) Hidden() *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = true
	return e
}

// Disabled marks the element as disabled. When after is positive the element
// becomes enabled on the after-th IsEnabled check.
func (e *Element) Disabled(after int) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled = true
	e.enableAfter = after
	return e
}

// WithAttr sets an attribute.
func (e *Element) WithAttr(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[name] = value
	return e
}

// Detach makes every later call fail, like a handle to a removed node.
func (e *Element) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached = true
}

// Clicks returns the number of clicks received.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Value returns what was filled or typed into the element.
func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value.String()
}

// TypeCalls returns the number of Type calls received.
func (e *Element) TypeCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typeCalls
}

func (e *Element) IsVisible() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return false, ErrDetached
	}
	return !e.hidden, nil
}

func (e *Element) IsEnabled() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return false, ErrDetached
	}
	if e.disabled && e.enableAfter > 0 {
		e.enableAfter--
		if e.enableAfter == 0 {
			e.disabled = false
		}
	}
	return !e.disabled, nil
}

func (e *Element) Click() error {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return ErrDetached
	}
	e.clicks++
	hook := e.OnClick
	e.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Fill(value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return ErrDetached
	}
	e.value.Reset()
	e.value.WriteString(value)
	return nil
}

func (e *Element) Type(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return ErrDetached
	}
	e.typeCalls++
	e.value.WriteString(text)
	return nil
}

func (e *Element) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return "", ErrDetached
	}
	return e.text, nil
}

func (e *Element) Attribute(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return "", ErrDetached
	}
	return e.attrs[name], nil
}

var (
	_ browser.Tab     = (*Page)(nil)
	_ browser.Element = (*Element)(nil)
)
