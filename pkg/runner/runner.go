// Package runner visits configured sites one after another, logs in, and
// answers discovered posts until the per-session reply quota is met.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/forumreply/pkg/audit"
	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/generator"
	"github.com/entrhq/forumreply/pkg/ledger"
	"github.com/entrhq/forumreply/pkg/locator"
	"github.com/entrhq/forumreply/pkg/logging"
	"github.com/entrhq/forumreply/pkg/pacing"
	"github.com/entrhq/forumreply/pkg/processor"
	"github.com/entrhq/forumreply/pkg/session"
	"github.com/entrhq/forumreply/pkg/site"
)

// DefaultMaxReplies is the per-session quota when none is configured.
const DefaultMaxReplies = 3

// Target is one site to visit.
type Target struct {
	// Name keys ledger records and labels logs.
	Name    string
	URL     string
	Profile site.Profile

	Session   session.Config
	Processor processor.Config
}

// Config holds run-wide settings.
type Config struct {
	MaxRepliesPerSession int
	ShuffleCandidates    bool

	// LoadWait follows the first navigation to a site.
	LoadWait pacing.Range
	// CandidatePause separates posts that were actually visited.
	CandidatePause pacing.Range
	// SitePause separates sites.
	SitePause pacing.Range
}

// Deps are the collaborators shared by every site visit.
type Deps struct {
	Launcher  browser.Launcher
	Resolver  *locator.Resolver
	Pacer     *pacing.Pacer
	Codes     session.CodeProvider
	Generator generator.TextGenerator
	Ledger    ledger.Ledger
	Audit     *audit.Log
	Logger    *logging.Logger
}

// Runner drives site visits.
type Runner struct {
	deps Deps
	cfg  Config
	log  *logging.Logger
}

// New creates a Runner.
func New(cfg Config, deps Deps) *Runner {
	if cfg.MaxRepliesPerSession <= 0 {
		cfg.MaxRepliesPerSession = DefaultMaxReplies
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{deps: deps, cfg: cfg, log: log}
}

// Run visits targets in order with a pause between them. A site whose login
// or browsing fails is recorded and skipped; an unavailable ledger or a
// cancelled context stops the run and is returned.
func (r *Runner) Run(ctx context.Context, targets []Target) ([]Summary, error) {
	summaries := make([]Summary, 0, len(targets))
	for i, t := range targets {
		if i > 0 {
			if err := r.deps.Pacer.Delay(ctx, r.cfg.SitePause); err != nil {
				return summaries, err
			}
		}

		sum, err := r.RunSite(ctx, t)
		summaries = append(summaries, sum)
		if err == nil {
			continue
		}
		if errors.Is(err, ledger.ErrUnavailable) {
			r.log.Errorf("stopping run: %v", err)
			return summaries, err
		}
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}
		r.log.Errorf("site %s: %v", t.Name, err)
	}
	return summaries, nil
}

// RunSite performs one session against t: launch a fresh browsing context,
// log in, discover posts and process them until the quota is met. Per-post
// problems are only counted; the returned error reports why the site visit
// itself could not complete.
func (r *Runner) RunSite(ctx context.Context, t Target) (sum Summary, err error) {
	sum = newSummary(t.Name)
	defer func() {
		sum.Finished = time.Now()
		sum.Err = err
		r.log.Infof("%s", sum)
	}()
	log := r.log.With(t.Name)

	tab, err := r.deps.Launcher.Launch(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to open browsing context: %w", err)
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			log.Warnf("closing browsing context: %v", cerr)
		}
	}()

	log.Infof("visiting %s", t.URL)
	if err := tab.Navigate(ctx, t.URL); err != nil {
		return sum, fmt.Errorf("failed to open %s: %w", t.URL, err)
	}
	if err := r.deps.Pacer.Delay(ctx, r.cfg.LoadWait); err != nil {
		return sum, err
	}

	sm := session.NewManager(t.Profile, r.deps.Resolver, r.deps.Pacer, r.deps.Codes, t.Session,
		session.WithLogger(log.With("session")))
	sess, err := sm.Login(ctx, tab, t.Name, t.URL)
	sum.State = sess.State()
	if err != nil {
		return sum, err
	}

	pcfg := t.Processor
	if pcfg.Platform == "" {
		pcfg.Platform = t.Name
	}
	proc, err := processor.New(t.Profile, processor.Deps{
		Resolver:  r.deps.Resolver,
		Pacer:     r.deps.Pacer,
		Generator: r.deps.Generator,
		Ledger:    r.deps.Ledger,
		Audit:     r.deps.Audit,
		Logger:    log.With("posts"),
	}, pcfg)
	if err != nil {
		return sum, err
	}

	candidates, err := proc.Discover(ctx, tab)
	if err != nil {
		return sum, fmt.Errorf("failed to discover posts: %w", err)
	}
	sum.Discovered = len(candidates)
	if r.cfg.ShuffleCandidates {
		r.deps.Pacer.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}

	for _, c := range candidates {
		if sum.Submitted() >= r.cfg.MaxRepliesPerSession {
			log.Infof("reached limit of %d replies", r.cfg.MaxRepliesPerSession)
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := proc.Process(ctx, tab, c)
		sum.add(res)
		if err != nil {
			return sum, err
		}
		if res.Outcome == processor.Deduplicated {
			continue
		}
		if err := r.deps.Pacer.Delay(ctx, r.cfg.CandidatePause); err != nil {
			return sum, err
		}
	}
	return sum, nil
}
