package config

import (
	"fmt"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/generator"
	"github.com/entrhq/forumreply/pkg/locator"
	"github.com/entrhq/forumreply/pkg/mailcode"
	"github.com/entrhq/forumreply/pkg/pacing"
	"github.com/entrhq/forumreply/pkg/processor"
	"github.com/entrhq/forumreply/pkg/runner"
	"github.com/entrhq/forumreply/pkg/session"
	"github.com/entrhq/forumreply/pkg/site"
)

// PacingConfig returns the pacer settings.
func (c *Config) PacingConfig() pacing.Config {
	return pacing.Config{
		Typing: c.TypingDelayRange,
		Action: c.Pacing.Action,
		Scroll: c.Pacing.Scroll,
	}
}

// RunnerConfig returns the run-wide settings.
func (c *Config) RunnerConfig() runner.Config {
	return runner.Config{
		MaxRepliesPerSession: c.MaxRepliesPerSession,
		ShuffleCandidates:    c.ShuffleCandidates,
		LoadWait:             c.Pacing.LoadWait,
		CandidatePause:       c.Pacing.CandidatePause,
		SitePause:            c.Pacing.SitePause,
	}
}

// Backend returns the configured browser backend.
func (c *Config) Backend() browser.Backend {
	return browser.Backend(c.Browser.Backend)
}

// LaunchOptions returns the browser launch settings.
func (c *Config) LaunchOptions() browser.LaunchOptions {
	opts := browser.LaunchOptions{
		Headless:   c.Browser.Headless,
		Timeout:    float64(c.Browser.Timeout.Milliseconds()),
		ControlURL: c.Browser.ControlURL,
	}
	if c.Browser.Width > 0 && c.Browser.Height > 0 {
		opts.Viewport = &browser.Viewport{Width: c.Browser.Width, Height: c.Browser.Height}
	}
	return opts
}

// LocatorOptions returns the resolver settings.
func (c *Config) LocatorOptions() []locator.Option {
	return []locator.Option{
		locator.WithEnableWait(c.Locator.EnableAttempts, c.Locator.EnableInterval),
	}
}

// GeneratorOptions returns the settings of the OpenAI-compatible generator.
func (c *Config) GeneratorOptions() []generator.Option {
	opts := []generator.Option{
		generator.WithMaxTokens(c.LLM.MaxTokens),
		generator.WithTemperature(c.LLM.Temperature),
		generator.WithMaxRetries(c.LLM.MaxRetries),
	}
	if c.LLM.BaseURL != "" {
		opts = append(opts, generator.WithBaseURL(c.LLM.BaseURL))
	}
	if c.LLM.Model != "" {
		opts = append(opts, generator.WithModel(c.LLM.Model))
	}
	if c.LLM.Timeout > 0 {
		opts = append(opts, generator.WithTimeout(c.LLM.Timeout))
	}
	return opts
}

// IMAPSource returns the mailbox reader, or nil when no mailbox is configured.
func (c *Config) IMAPSource() *mailcode.IMAPSource {
	if !c.Mail.Enabled() {
		return nil
	}
	return &mailcode.IMAPSource{
		Addr:     c.Mail.Addr,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		Mailbox:  c.Mail.Mailbox,
	}
}

// Targets builds the run targets for the named sites, in configuration order.
// No names selects every site.
func (c *Config) Targets(names ...string) ([]runner.Target, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := c.Site(n); !ok {
			return nil, fmt.Errorf("%w: no site named %q", ErrInvalid, n)
		}
		want[n] = true
	}

	var targets []runner.Target
	for _, s := range c.Sites {
		if len(want) > 0 && !want[s.Name] {
			continue
		}
		t, err := c.target(s)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", s.Name, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (c *Config) target(s SiteConfig) (runner.Target, error) {
	profile, err := site.Lookup(s.Profile)
	if err != nil {
		return runner.Target{}, err
	}
	if len(s.Selectors) > 0 {
		if profile, err = profile.Override(s.Selectors); err != nil {
			return runner.Target{}, err
		}
	}
	profile = profile.WithPatterns(s.Include, s.Exclude)
	if _, err := profile.Filter(); err != nil {
		return runner.Target{}, err
	}

	return runner.Target{
		Name:    s.Name,
		URL:     s.URL,
		Profile: profile,
		Session: session.Config{
			Credentials:         session.Credentials{Username: s.Username, Password: s.Password},
			CodeSender:          s.CodeSender,
			SecondFactorTimeout: c.SecondaryFactorTimeout,
			StrictVerification:  c.Auth.StrictVerification,
		},
		Processor: processor.Config{
			Platform:            s.Name,
			ExcerptChars:        c.Generation.ExcerptChars,
			OnGenerationFailure: processor.FailurePolicy(c.Generation.OnFailure),
			FallbackReply:       c.Generation.FallbackText,
			DryRun:              c.Generation.DryRun,
		},
	}, nil
}
