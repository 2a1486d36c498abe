// Package processor runs the per-post pipeline: deduplicate, read, check for
// a resolution, generate, submit, verify and record.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/forumreply/pkg/audit"
	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/generator"
	"github.com/entrhq/forumreply/pkg/ledger"
	"github.com/entrhq/forumreply/pkg/locator"
	"github.com/entrhq/forumreply/pkg/logging"
	"github.com/entrhq/forumreply/pkg/pacing"
	"github.com/entrhq/forumreply/pkg/site"
)

// DefaultExcerptChars bounds the post text sent for generation.
const DefaultExcerptChars = 500

// FailurePolicy decides what happens when generation fails.
type FailurePolicy string

const (
	// PolicyFallback submits the configured fallback reply.
	PolicyFallback FailurePolicy = "fallback"
	// PolicySkip leaves the post alone.
	PolicySkip FailurePolicy = "skip"
)

// Config holds per-site processing settings.
type Config struct {
	// Platform keys ledger records.
	Platform string

	ExcerptChars        int
	OnGenerationFailure FailurePolicy
	FallbackReply       string

	// DryRun generates replies but never opens the editor or records anything.
	DryRun bool
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Resolver  *locator.Resolver
	Pacer     *pacing.Pacer
	Generator generator.TextGenerator
	Ledger    ledger.Ledger
	// Audit is optional.
	Audit  *audit.Log
	Logger *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Processor handles candidates of one site.
type Processor struct {
	profile site.Profile
	filter  *site.URLFilter
	deps    Deps
	cfg     Config
	log     *logging.Logger
}

// New creates a Processor for profile.
func New(profile site.Profile, deps Deps, cfg Config) (*Processor, error) {
	if deps.Resolver == nil || deps.Pacer == nil || deps.Generator == nil || deps.Ledger == nil {
		return nil, errors.New("processor: resolver, pacer, generator and ledger are required")
	}
	if cfg.Platform == "" {
		return nil, errors.New("processor: platform is required")
	}
	filter, err := profile.Filter()
	if err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}

	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = DefaultExcerptChars
	}
	if cfg.OnGenerationFailure == "" {
		cfg.OnGenerationFailure = PolicyFallback
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = generator.DefaultApology
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Processor{profile: profile, filter: filter, deps: deps, cfg: cfg, log: log}, nil
}

// Discover scrolls the current page and collects post candidates from its
// links. Only links allowed by the profile's URL filter and carrying a
// derivable id are kept, once per id, in page order.
func (p *Processor) Discover(ctx context.Context, page browser.Page) ([]Candidate, error) {
	if err := p.deps.Pacer.ScrollNaturally(ctx, page); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warnf("scrolling %s failed: %v", page.URL(), err)
	}

	base, err := url.Parse(page.URL())
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", page.URL(), err)
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, sel := range p.profile.Locator(site.PostLink).Candidates {
		links, err := page.QueryAll(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Debugf("post link query %s failed: %v", sel, err)
			continue
		}
		for _, link := range links {
			href, err := link.Attribute("href")
			if err != nil || strings.TrimSpace(href) == "" {
				continue
			}
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				continue
			}
			abs := base.ResolveReference(ref)
			abs.Fragment = ""
			postURL := abs.String()

			if !p.filter.Allows(postURL) {
				continue
			}
			id, ok := p.profile.PostID(postURL)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, Candidate{ID: id, URL: postURL})
		}
	}

	p.log.Infof("discovered %d candidate posts on %s", len(out), page.URL())
	return out, nil
}

// Process runs the pipeline for c. Every per-post problem is reported in the
// Result; the returned error is non-nil only when the ledger is unavailable,
// which must stop the run.
func (p *Processor) Process(ctx context.Context, page browser.Page, c Candidate) (Result, error) {
	seen, err := p.deps.Ledger.HasInteracted(ctx, p.cfg.Platform, c.ID)
	if err != nil {
		return p.failed(c, ReasonLedger, err), err
	}
	if seen {
		p.log.Debugf("post %s already answered", c.ID)
		return Result{Candidate: c, Outcome: Deduplicated, Reason: ReasonAlreadyInteracted}, nil
	}

	p.log.Infof("opening post %s", c.URL)
	if err := page.Navigate(ctx, c.URL); err != nil {
		return p.failed(c, ReasonNavigation, err), nil
	}
	if err := p.deps.Pacer.Act(ctx); err != nil {
		return p.failed(c, ReasonNavigation, err), nil
	}

	body, ok := p.readBody(ctx, page)
	if !ok {
		return p.failed(c, ReasonNoContent, nil), nil
	}
	c.Body = body

	if p.isSolved(ctx, page) {
		p.log.Infof("post %s is already solved", c.ID)
		return Result{Candidate: c, Outcome: Skipped, Reason: ReasonAlreadySolved}, nil
	}

	reply, fallback, err := p.generate(ctx, c)
	if err != nil {
		return Result{Candidate: c, Outcome: Skipped, Reason: ReasonGenerationFailed, Err: err}, nil
	}
	if p.cfg.DryRun {
		p.log.Infof("dry run, would reply to %s: %s", c.ID, audit.Truncate(reply, 80))
		return Result{Candidate: c, Outcome: Skipped, Reason: ReasonDryRun, Reply: reply, Fallback: fallback}, nil
	}

	if reason, err := p.submit(ctx, page, reply); reason != "" {
		r := p.failed(c, reason, err)
		r.Reply = reply
		return r, nil
	}

	inserted, err := p.deps.Ledger.Record(ctx, ledger.Record{
		Platform:  p.cfg.Platform,
		PostID:    c.ID,
		PostURL:   c.URL,
		Reply:     reply,
		CreatedAt: p.deps.Now(),
	})
	if err != nil {
		return p.failed(c, ReasonLedger, err), err
	}
	if !inserted {
		p.log.Warnf("post %s was recorded concurrently", c.ID)
	}
	if err := p.deps.Audit.Append(audit.Entry{
		Time:     p.deps.Now(),
		Platform: p.cfg.Platform,
		PostID:   c.ID,
		PostURL:  c.URL,
		Reply:    reply,
	}); err != nil {
		p.log.Warnf("audit entry for %s not written: %v", c.ID, err)
	}

	p.log.Infof("replied to post %s", c.ID)
	return Result{Candidate: c, Outcome: Submitted, Reply: reply, Fallback: fallback}, nil
}

func (p *Processor) failed(c Candidate, reason string, err error) Result {
	if err != nil {
		p.log.Warnf("post %s failed (%s): %v", c.ID, reason, err)
	} else {
		p.log.Warnf("post %s failed (%s)", c.ID, reason)
	}
	return Result{Candidate: c, Outcome: Failed, Reason: reason, Err: err}
}

func (p *Processor) readBody(ctx context.Context, page browser.Page) (string, bool) {
	el, ok := p.deps.Resolver.Resolve(ctx, page, p.profile.Locator(site.Content))
	if !ok {
		return "", false
	}
	text, err := el.Text()
	if err != nil {
		p.log.Debugf("reading post body: %v", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// isSolved checks the solved indicator first, then the visible page text
// for a resolution marker.
func (p *Processor) isSolved(ctx context.Context, page browser.Page) bool {
	if p.deps.Resolver.Visible(ctx, page, p.profile.Locator(site.Solved)) {
		return true
	}
	if len(p.profile.ResolutionMarkers) == 0 {
		return false
	}
	doc, err := page.Content(ctx)
	if err != nil {
		p.log.Debugf("reading page content: %v", err)
		return false
	}
	text, err := browser.VisibleText(doc)
	if err != nil {
		p.log.Debugf("parsing page content: %v", err)
		return false
	}
	return p.profile.HasResolutionMarker(text)
}

func (p *Processor) generate(ctx context.Context, c Candidate) (reply string, fallback bool, err error) {
	excerpt := audit.Truncate(c.Body, p.cfg.ExcerptChars)
	reply, err = p.deps.Generator.Generate(ctx, generator.ReplyRequest(excerpt))
	if err == nil {
		return reply, false, nil
	}
	if p.cfg.OnGenerationFailure == PolicySkip {
		p.log.Warnf("generation for %s failed, skipping: %v", c.ID, err)
		return "", false, err
	}
	p.log.Warnf("generation for %s failed, using fallback reply: %v", c.ID, err)
	return p.cfg.FallbackReply, true, nil
}

// submit opens the editor, types reply and submits it. A non-empty reason
// reports the step that failed.
func (p *Processor) submit(ctx context.Context, page browser.Page, reply string) (reason string, err error) {
	resolve := func(a site.Affordance) (browser.Element, bool) {
		return p.deps.Resolver.Resolve(ctx, page, p.profile.Locator(a))
	}

	replyBtn, ok := resolve(site.Reply)
	if !ok {
		return ReasonNoReplyAffordance, ctx.Err()
	}
	if err := p.click(ctx, replyBtn); err != nil {
		return ReasonInteraction, err
	}

	editor, ok := resolve(site.Editor)
	if !ok {
		return ReasonNoEditor, ctx.Err()
	}
	if err := p.click(ctx, editor); err != nil {
		return ReasonInteraction, err
	}
	if err := p.deps.Pacer.TypeIncrementally(ctx, editor, reply); err != nil {
		return ReasonInteraction, err
	}
	if err := p.deps.Pacer.Act(ctx); err != nil {
		return ReasonInteraction, err
	}

	submitBtn, ok := resolve(site.Submit)
	if !ok {
		return ReasonNoSubmit, ctx.Err()
	}
	if err := p.click(ctx, submitBtn); err != nil {
		return ReasonInteraction, err
	}

	// An editor that stays open usually means the first click did not
	// register; click once more and accept the result.
	if p.deps.Resolver.Visible(ctx, page, p.profile.Locator(site.Editor)) {
		p.log.Debugf("editor still open after submit, retrying once")
		if again, ok := resolve(site.Submit); ok {
			if err := p.click(ctx, again); err != nil {
				p.log.Debugf("second submit click failed: %v", err)
			}
		}
	}
	return "", nil
}

func (p *Processor) click(ctx context.Context, el browser.Element) error {
	if err := el.Click(); err != nil {
		return err
	}
	return p.deps.Pacer.Act(ctx)
}
