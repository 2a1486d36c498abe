package browser

import (
	"context"
	"strings"
)

// Page is the browsing surface the engine drives. Implementations are not safe
// for concurrent use; one flow owns a page at a time.
type Page interface {
	// Navigate loads url and waits until the document is ready.
	Navigate(ctx context.Context, url string) error

	// URL returns the URL of the current document.
	URL() string

	// QueryAll returns every element currently matching sel, in document order.
	// It never waits for elements to appear.
	QueryAll(ctx context.Context, sel Selector) ([]Element, error)

	// Content returns the serialized HTML of the current document.
	Content(ctx context.Context) (string, error)

	// Scroll scrolls the viewport vertically by deltaY pixels.
	Scroll(ctx context.Context, deltaY float64) error
}

// Element is a handle to one DOM element on a Page.
type Element interface {
	// IsVisible reports whether the element has a non-empty box and is not
	// hidden by styling, as judged by the browser.
	IsVisible() (bool, error)

	// IsEnabled reports whether the element is not disabled.
	IsEnabled() (bool, error)

	Click() error

	// Fill replaces the element's value in one write.
	Fill(value string) error

	// Type sends text as key input, appending at the cursor.
	Type(text string) error

	// Text returns the rendered text of the element.
	Text() (string, error)

	// Attribute returns the attribute value, or "" when it is absent.
	Attribute(name string) (string, error)
}

// Tab is a Page backed by its own isolated browsing context. Closing the tab
// discards cookies and storage of that context.
type Tab interface {
	Page
	Close() error
}

// Launcher opens isolated browsing contexts.
type Launcher interface {
	// Initialize starts the underlying browser. It must be called before Launch.
	Initialize() error

	// Launch opens a new isolated tab.
	Launch(ctx context.Context) (Tab, error)

	// Shutdown closes every tab and stops the browser.
	Shutdown() error
}

// Selector addresses elements on a page. Exactly one of CSS or XPath should be
// set. HasText additionally keeps only elements whose rendered text contains
// the given string, compared case-insensitively.
type Selector struct {
	CSS     string `yaml:"css,omitempty"`
	XPath   string `yaml:"xpath,omitempty"`
	HasText string `yaml:"text,omitempty"`
}

// CSS returns a selector matching a CSS expression.
func CSS(expr string) Selector {
	return Selector{CSS: expr}
}

// CSSText returns a selector matching a CSS expression whose text contains text.
func CSSText(expr, text string) Selector {
	return Selector{CSS: expr, HasText: text}
}

// XPath returns a selector matching an XPath expression.
func XPath(expr string) Selector {
	return Selector{XPath: expr}
}

// IsZero reports whether the selector addresses nothing.
func (s Selector) IsZero() bool {
	return s.CSS == "" && s.XPath == ""
}

// String renders the selector for logs and as a stable lookup key.
func (s Selector) String() string {
	var b strings.Builder
	if s.XPath != "" {
		b.WriteString("xpath=")
		b.WriteString(s.XPath)
	} else {
		b.WriteString(s.CSS)
	}
	if s.HasText != "" {
		b.WriteString(` >> text~"`)
		b.WriteString(s.HasText)
		b.WriteString(`"`)
	}
	return b.String()
}

// containsFold reports whether text contains sub, ignoring case.
func containsFold(text, sub string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(sub))
}
