// Package locator finds UI affordances on pages whose markup drifts between
// sites and UI states.
//
// A Descriptor lists several plausible selectors for one logical affordance,
// such as "the reply button", in priority order. The Resolver walks the list
// and returns the first element that is visible and enabled right now, so a
// single resolution algorithm replaces per-call-site fallback chains.
package locator

import (
	"context"
	"time"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/logging"
	"github.com/entrhq/forumreply/pkg/pacing"
)

// Descriptor is an ordered list of candidate selectors for one affordance.
type Descriptor struct {
	// Name labels the affordance in logs (e.g. "reply button").
	Name string

	// Candidates are tried in order; earlier entries win.
	Candidates []browser.Selector
}

// New returns a Descriptor named name with the given candidates.
func New(name string, candidates ...browser.Selector) Descriptor {
	return Descriptor{Name: name, Candidates: candidates}
}

// IsZero reports whether the descriptor has no candidates.
func (d Descriptor) IsZero() bool {
	return len(d.Candidates) == 0
}

// Default enable-wait budget
const (
	DefaultEnableAttempts = 20
	DefaultEnableInterval = 500 * time.Millisecond
)

// Resolver resolves Descriptors against a page.
type Resolver struct {
	// attempts caps the enable polls per disabled match; 0 disables waiting
	attempts int
	interval time.Duration
	sleep    pacing.SleepFunc
	log      *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEnableWait sets how often and how long to wait for a visible but
// disabled match to become enabled. attempts <= 0 disables waiting.
func WithEnableWait(attempts int, interval time.Duration) Option {
	return func(r *Resolver) {
		r.attempts = attempts
		r.interval = interval
	}
}

// WithSleep replaces the function used between enable polls.
func WithSleep(sleep pacing.SleepFunc) Option {
	return func(r *Resolver) {
		r.sleep = sleep
	}
}

// WithLogger sets the logger used for query failures.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

// NewResolver creates a Resolver with the default enable-wait budget.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		attempts: DefaultEnableAttempts,
		interval: DefaultEnableInterval,
		sleep:    pacing.Sleep,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxWait is the longest Resolve can spend polling for one descriptor.
func (r *Resolver) MaxWait(d Descriptor) time.Duration {
	if r.attempts <= 0 {
		return 0
	}
	return time.Duration(len(d.Candidates)*r.attempts) * r.interval
}

// Resolve returns the first visible, enabled element matched by d's
// candidates. A visible match that is disabled is polled until it enables or
// the attempt budget runs out, then the next candidate is tried. ok is false
// when nothing matched; that is not an error.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, d Descriptor) (el browser.Element, ok bool) {
	for _, sel := range d.Candidates {
		if ctx.Err() != nil {
			return nil, false
		}

		visible, disabled := r.scan(ctx, page, d.Name, sel)
		if visible != nil {
			r.log.Debugf("resolved %s via %s", d.Name, sel)
			return visible, true
		}
		if disabled == nil {
			continue
		}
		if r.awaitEnabled(ctx, disabled) {
			r.log.Debugf("resolved %s via %s after enable wait", d.Name, sel)
			return disabled, true
		}
		r.log.Debugf("%s via %s stayed disabled", d.Name, sel)
	}
	return nil, false
}

// Visible reports whether any candidate of d currently matches a visible
// element, enabled or not. It never waits.
func (r *Resolver) Visible(ctx context.Context, page browser.Page, d Descriptor) bool {
	for _, sel := range d.Candidates {
		if ctx.Err() != nil {
			return false
		}
		enabled, disabled := r.scan(ctx, page, d.Name, sel)
		if enabled != nil || disabled != nil {
			return true
		}
	}
	return false
}

// scan queries sel and returns the first visible enabled element, or failing
// that the first visible disabled one.
func (r *Resolver) scan(ctx context.Context, page browser.Page, name string, sel browser.Selector) (enabled, disabled browser.Element) {
	elements, err := page.QueryAll(ctx, sel)
	if err != nil {
		r.log.Debugf("query for %s via %s failed: %v", name, sel, err)
		return nil, nil
	}

	for _, el := range elements {
		visible, err := el.IsVisible()
		if err != nil || !visible {
			continue
		}
		ok, err := el.IsEnabled()
		if err != nil {
			continue
		}
		if ok {
			return el, nil
		}
		if disabled == nil {
			disabled = el
		}
	}
	return nil, disabled
}

func (r *Resolver) awaitEnabled(ctx context.Context, el browser.Element) bool {
	for i := 0; i < r.attempts; i++ {
		if err := r.sleep(ctx, r.interval); err != nil {
			return false
		}
		ok, err := el.IsEnabled()
		if err != nil {
			return false
		}
		if ok {
			return true
		}
	}
	return false
}
