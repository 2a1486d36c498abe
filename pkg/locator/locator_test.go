package locator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/browser/browsertest"
)

const pageURL = "https://forum.example.com/t/help/42"

var (
	primary   = browser.CSS("button.create")
	secondary = browser.CSSText("button", "Reply")
	tertiary  = browser.XPath("//button[contains(., 'Reply')]")

	replyButton = New("reply button", primary, secondary, tertiary)
)

// countingSleep records poll waits instead of sleeping.
type countingSleep struct {
	calls int
	total time.Duration
}

func (c *countingSleep) sleep(ctx context.Context, d time.Duration) error {
	c.calls++
	c.total += d
	return ctx.Err()
}

func newResolver(c *countingSleep) *Resolver {
	return NewResolver(WithEnableWait(DefaultEnableAttempts, DefaultEnableInterval), WithSleep(c.sleep))
}

func TestResolvePriorityOrder(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	first := browsertest.NewElement("first")
	second := browsertest.NewElement("second")
	page.Screen(pageURL).Add(primary, first).Add(secondary, second)

	el, ok := newResolver(&countingSleep{}).Resolve(context.Background(), page, replyButton)

	require.True(t, ok)
	assert.Same(t, first, el)
	assert.Zero(t, page.Queries(secondary), "later candidates are not consulted after a match")
}

func TestResolveSkipsHiddenMatches(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	hidden := browsertest.NewElement("hidden").Hidden()
	shown := browsertest.NewElement("shown")
	page.Screen(pageURL).Add(primary, hidden).Add(secondary, shown)

	el, ok := newResolver(&countingSleep{}).Resolve(context.Background(), page, replyButton)

	require.True(t, ok)
	assert.Same(t, shown, el)
}

func TestResolvePrefersEnabledWithinCandidate(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	disabled := browsertest.NewElement("disabled").Disabled(0)
	enabled := browsertest.NewElement("enabled")
	page.Screen(pageURL).Add(primary, disabled, enabled)

	sleeper := &countingSleep{}
	el, ok := newResolver(sleeper).Resolve(context.Background(), page, replyButton)

	require.True(t, ok)
	assert.Same(t, enabled, el)
	assert.Zero(t, sleeper.calls)
}

func TestResolveWaitsForDisabledToEnable(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	// Enables on the third IsEnabled check: the scan plus two polls.
	button := browsertest.NewElement("Post").Disabled(3)
	page.Screen(pageURL).Add(primary, button)

	sleeper := &countingSleep{}
	el, ok := newResolver(sleeper).Resolve(context.Background(), page, replyButton)

	require.True(t, ok)
	assert.Same(t, button, el)
	assert.Equal(t, 2, sleeper.calls)
}

func TestResolveFallsThroughWhenStillDisabled(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	stuck := browsertest.NewElement("stuck").Disabled(0)
	next := browsertest.NewElement("next")
	page.Screen(pageURL).Add(primary, stuck).Add(tertiary, next)

	sleeper := &countingSleep{}
	el, ok := newResolver(sleeper).Resolve(context.Background(), page, replyButton)

	require.True(t, ok)
	assert.Same(t, next, el)
	assert.Equal(t, DefaultEnableAttempts, sleeper.calls)
}

func TestResolveNotFoundIsBounded(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	page.Screen(pageURL).
		Add(primary, browsertest.NewElement("a").Disabled(0)).
		Add(secondary, browsertest.NewElement("b").Disabled(0)).
		Add(tertiary, browsertest.NewElement("c").Disabled(0))

	sleeper := &countingSleep{}
	r := newResolver(sleeper)
	el, ok := r.Resolve(context.Background(), page, replyButton)

	assert.False(t, ok)
	assert.Nil(t, el)
	assert.Equal(t, r.MaxWait(replyButton), sleeper.total)
	assert.Equal(t, 3*DefaultEnableAttempts, sleeper.calls)
}

func TestResolveNothingOnPage(t *testing.T) {
	page := browsertest.NewPage(pageURL)

	sleeper := &countingSleep{}
	_, ok := newResolver(sleeper).Resolve(context.Background(), page, replyButton)

	assert.False(t, ok)
	assert.Zero(t, sleeper.calls, "no waiting without a disabled match")
	for _, sel := range replyButton.Candidates {
		assert.Equal(t, 1, page.Queries(sel))
	}
}

func TestResolveQueryErrorIsAMiss(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	want := browsertest.NewElement("fallback")
	page.Screen(pageURL).
		FailQuery(primary, errors.New("selector syntax")).
		Add(secondary, want)

	el, ok := newResolver(&countingSleep{}).Resolve(context.Background(), page, replyButton)

	require.True(t, ok)
	assert.Same(t, want, el)
}

func TestResolveDetachedElementIsIgnored(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	gone := browsertest.NewElement("gone")
	gone.Detach()
	page.Screen(pageURL).Add(primary, gone)

	_, ok := newResolver(&countingSleep{}).Resolve(context.Background(), page, replyButton)
	assert.False(t, ok)
}

func TestResolveCancelledContext(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	page.Screen(pageURL).Add(primary, browsertest.NewElement("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := newResolver(&countingSleep{}).Resolve(ctx, page, replyButton)
	assert.False(t, ok)
}

func TestVisible(t *testing.T) {
	page := browsertest.NewPage(pageURL)
	indicator := New("solved badge", browser.CSS(".solved"), browser.CSS(".accepted-answer"))

	r := newResolver(&countingSleep{})
	assert.False(t, r.Visible(context.Background(), page, indicator))

	page.Screen(pageURL).Add(browser.CSS(".accepted-answer"), browsertest.NewElement("Solved").Disabled(0))
	assert.True(t, r.Visible(context.Background(), page, indicator), "disabled elements still count as present")

	page.Screen(pageURL).Remove(browser.CSS(".accepted-answer")).
		Add(browser.CSS(".solved"), browsertest.NewElement("").Hidden())
	assert.False(t, r.Visible(context.Background(), page, indicator))
}

func TestMaxWait(t *testing.T) {
	r := NewResolver(WithEnableWait(4, 250*time.Millisecond))
	assert.Equal(t, 3*time.Second, r.MaxWait(replyButton))

	r = NewResolver(WithEnableWait(0, time.Second))
	assert.Zero(t, r.MaxWait(replyButton))
}

func TestDescriptorIsZero(t *testing.T) {
	assert.True(t, Descriptor{Name: "empty"}.IsZero())
	assert.False(t, replyButton.IsZero())
}
