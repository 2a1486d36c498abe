package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/browser/browsertest"
	"github.com/entrhq/forumreply/pkg/generator"
	"github.com/entrhq/forumreply/pkg/ledger"
	"github.com/entrhq/forumreply/pkg/locator"
	"github.com/entrhq/forumreply/pkg/pacing"
	"github.com/entrhq/forumreply/pkg/processor"
	"github.com/entrhq/forumreply/pkg/session"
	"github.com/entrhq/forumreply/pkg/site"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const boardURL = "https://forums.ea.com/t5/fc-24/bd-p/fc-24-general"

var (
	linkSel    = browser.CSS(`a[href*="/t5/"]`)
	contentSel = browser.CSS(".lia-message-body-content")
	replySel   = browser.CSSText("a", "Reply")
	editorSel  = browser.CSS(".lia-form-type-text")
	submitSel  = browser.CSS(`input[type="submit"]`)
	signInSel  = browser.CSSText("a", "Sign In")
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// fakeLauncher hands out prepared pages in order.
type fakeLauncher struct {
	mu       sync.Mutex
	pages    []*browsertest.Page
	launched int
}

func (l *fakeLauncher) Initialize() error { return nil }
func (l *fakeLauncher) Shutdown() error   { return nil }

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Tab, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launched >= len(l.pages) {
		return nil, errors.New("no more pages")
	}
	p := l.pages[l.launched]
	l.launched++
	return p, nil
}

func postURL(n int) string {
	return fmt.Sprintf("https://forums.ea.com/t5/fc-24/topic-%d/td-p/%d", n, n)
}

// board builds a listing page linking to n open threads.
func board(n int) *browsertest.Page {
	page := browsertest.NewPage("about:blank")
	var links []*browsertest.Element
	for i := 1; i <= n; i++ {
		links = append(links, browsertest.Link(fmt.Sprintf("/t5/fc-24/topic-%d/td-p/%d", i, i)))

		scr := page.Screen(postURL(i))
		editor := browsertest.NewElement("")
		reply := browsertest.NewElement("Reply")
		reply.OnClick = func() { scr.Add(editorSel, editor) }
		submit := browsertest.NewElement("Post")
		submit.OnClick = func() { scr.Remove(editorSel) }
		scr.Add(contentSel, browsertest.NewElement(fmt.Sprintf("question %d", i))).
			Add(replySel, reply).
			Add(submitSel, submit)
	}
	page.Screen(boardURL).Add(linkSel, links...)
	return page
}

type harness struct {
	launcher *fakeLauncher
	ledger   *ledger.SQLite
	gen      generator.Func
	genCalls int
}

func newHarness(t *testing.T, pages ...*browsertest.Page) *harness {
	t.Helper()
	l, err := ledger.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	h := &harness{launcher: &fakeLauncher{pages: pages}, ledger: l}
	h.gen = func(context.Context, generator.Request) (string, error) {
		h.genCalls++
		return "Have you tried repairing the install?", nil
	}
	return h
}

func (h *harness) runner(cfg Config, led ledger.Ledger) *Runner {
	if led == nil {
		led = h.ledger
	}
	return New(cfg, Deps{
		Launcher:  h.launcher,
		Resolver:  locator.NewResolver(locator.WithSleep(noSleep)),
		Pacer:     pacing.New(pacing.DefaultConfig(), pacing.WithSleep(noSleep)),
		Generator: h.gen,
		Ledger:    led,
	})
}

func target(name string) Target {
	return Target{Name: name, URL: boardURL, Profile: site.Khoros()}
}

func TestRunSiteQuota(t *testing.T) {
	page := board(3)
	h := newHarness(t, page)

	sum, err := h.runner(Config{MaxRepliesPerSession: 1}, nil).RunSite(context.Background(), target("ea"))

	require.NoError(t, err)
	assert.Equal(t, 3, sum.Discovered)
	assert.Equal(t, 1, sum.Submitted())
	require.Len(t, sum.Results, 1, "processing halts once the quota is met")
	assert.Equal(t, processor.Submitted, sum.Results[0].Outcome)
	assert.Equal(t, []string{boardURL, boardURL, postURL(1)}, page.Navigated(),
		"the remaining candidates are never visited")
	assert.Equal(t, session.AuthenticationUncertain, sum.State)
	assert.True(t, page.Closed())

	n, err := h.ledger.Count(context.Background(), "ea")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunSiteDeduplicatedDoesNotCountTowardQuota(t *testing.T) {
	page := board(3)
	h := newHarness(t, page)
	_, err := h.ledger.Record(context.Background(), ledger.Record{Platform: "ea", PostID: "1", PostURL: postURL(1), Reply: "old"})
	require.NoError(t, err)

	sum, err := h.runner(Config{MaxRepliesPerSession: 1}, nil).RunSite(context.Background(), target("ea"))

	require.NoError(t, err)
	require.Len(t, sum.Results, 2)
	assert.Equal(t, processor.Deduplicated, sum.Results[0].Outcome)
	assert.Equal(t, processor.Submitted, sum.Results[1].Outcome)
	assert.Equal(t, "2", sum.Results[1].Candidate.ID)
	assert.NotContains(t, page.Navigated(), postURL(3))
}

func TestRunSiteProcessesAllUnderQuota(t *testing.T) {
	h := newHarness(t, board(2))

	sum, err := h.runner(Config{MaxRepliesPerSession: 5}, nil).RunSite(context.Background(), target("ea"))

	require.NoError(t, err)
	assert.Equal(t, 2, sum.Submitted())
	assert.Equal(t, 2, h.genCalls)
}

func TestRunSiteSecondRunDeduplicates(t *testing.T) {
	h := newHarness(t, board(2), board(2))
	r := h.runner(Config{MaxRepliesPerSession: 5}, nil)

	_, err := r.RunSite(context.Background(), target("ea"))
	require.NoError(t, err)
	sum, err := r.RunSite(context.Background(), target("ea"))
	require.NoError(t, err)

	assert.Zero(t, sum.Submitted())
	assert.Equal(t, 2, sum.Counts[processor.Deduplicated])
	assert.Equal(t, 2, h.genCalls, "no generation on the second run")
}

func TestRunContinuesAfterAuthenticationFailure(t *testing.T) {
	locked := board(1)
	locked.Screen(boardURL).Add(signInSel, browsertest.NewElement("Sign In"))
	h := newHarness(t, locked, board(1))

	// sign-in is offered but no credentials are configured
	first := target("ea-locked")
	sums, err := h.runner(Config{}, nil).Run(context.Background(), []Target{first, target("ea")})

	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, session.Failed, sums[0].State)
	assert.ErrorIs(t, sums[0].Err, session.ErrAuthentication)
	assert.Zero(t, sums[0].Discovered)
	assert.Equal(t, 1, sums[1].Submitted())
	assert.True(t, locked.Closed())
}

// downLedger reports every operation as unavailable.
type downLedger struct {
	ledger.Ledger
}

func (downLedger) HasInteracted(context.Context, string, string) (bool, error) {
	return false, fmt.Errorf("%w: disk I/O error", ledger.ErrUnavailable)
}

func TestRunStopsWhenLedgerUnavailable(t *testing.T) {
	h := newHarness(t, board(2), board(2))

	sums, err := h.runner(Config{}, downLedger{}).Run(context.Background(), []Target{target("a"), target("b")})

	assert.ErrorIs(t, err, ledger.ErrUnavailable)
	require.Len(t, sums, 1, "later sites are never visited")
	assert.Equal(t, 1, h.launcher.launched)
	assert.Equal(t, processor.Failed, sums[0].Results[0].Outcome)
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t, board(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner(Config{}, nil).Run(ctx, []Target{target("ea")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSiteLaunchFailure(t *testing.T) {
	h := newHarness(t)

	sum, err := h.runner(Config{}, nil).RunSite(context.Background(), target("ea"))

	assert.Error(t, err)
	assert.Equal(t, err, sum.Err)
	assert.Equal(t, session.Anonymous, sum.State)
}

func TestRunSiteShuffleKeepsCandidates(t *testing.T) {
	h := newHarness(t, board(4))

	sum, err := h.runner(Config{MaxRepliesPerSession: 10, ShuffleCandidates: true}, nil).RunSite(context.Background(), target("ea"))

	require.NoError(t, err)
	ids := make([]string, 0, len(sum.Results))
	for _, r := range sum.Results {
		ids = append(ids, r.Candidate.ID)
	}
	assert.ElementsMatch(t, []string{"1", "2", "3", "4"}, ids)
}

func TestRender(t *testing.T) {
	sums := []Summary{
		{Site: "ea", State: session.Authenticated, Discovered: 3, Counts: map[processor.Outcome]int{processor.Submitted: 1}},
		{Site: "hf", State: session.Failed, Counts: map[processor.Outcome]int{}, Err: errors.New("login to hf failed")},
	}

	out := Render(sums)
	assert.Contains(t, out, "ea")
	assert.Contains(t, out, "Authenticated")
	assert.Contains(t, out, "login to hf failed")
	assert.True(t, strings.Contains(sums[0].String(), "submitted=1"))
}
