// Package config loads the YAML run configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/generator"
	"github.com/entrhq/forumreply/pkg/logging"
	"github.com/entrhq/forumreply/pkg/mailcode"
	"github.com/entrhq/forumreply/pkg/pacing"
	"github.com/entrhq/forumreply/pkg/processor"
	"github.com/entrhq/forumreply/pkg/runner"
	"github.com/entrhq/forumreply/pkg/session"
	"github.com/entrhq/forumreply/pkg/site"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration of a run.
type Config struct {
	// MaxRepliesPerSession caps submitted replies per site visit.
	MaxRepliesPerSession int `yaml:"max_replies_per_session"`

	// TypingDelayRange is the pause after each typed character.
	TypingDelayRange pacing.Range `yaml:"typing_delay_range"`

	// SecondaryFactorTimeout bounds the wait for a mailed second-factor code.
	SecondaryFactorTimeout time.Duration `yaml:"secondary_factor_timeout"`

	// ShuffleCandidates randomizes the order in which discovered posts are visited.
	ShuffleCandidates bool `yaml:"shuffle_candidates"`

	Pacing     PacingConfig     `yaml:"pacing"`
	Browser    BrowserConfig    `yaml:"browser"`
	Locator    LocatorConfig    `yaml:"locator"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Audit      AuditConfig      `yaml:"audit"`
	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Mail       MailConfig       `yaml:"mail"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`

	Sites []SiteConfig `yaml:"sites"`
}

// PacingConfig holds the randomized waits between actions.
type PacingConfig struct {
	Action         pacing.Range  `yaml:"action"`
	Scroll         pacing.Scroll `yaml:"scroll"`
	LoadWait       pacing.Range  `yaml:"load_wait"`
	CandidatePause pacing.Range  `yaml:"candidate_pause"`
	SitePause      pacing.Range  `yaml:"site_pause"`
}

// BrowserConfig selects and configures the automation backend.
type BrowserConfig struct {
	Backend  string        `yaml:"backend"`
	Headless bool          `yaml:"headless"`
	Timeout  time.Duration `yaml:"timeout"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`

	// ControlURL attaches to a running browser (rod only).
	ControlURL string `yaml:"control_url"`
}

// LocatorConfig tunes the wait for disabled elements to become enabled.
type LocatorConfig struct {
	EnableAttempts int           `yaml:"enable_attempts"`
	EnableInterval time.Duration `yaml:"enable_interval"`
}

// LedgerConfig locates the interaction database.
type LedgerConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig locates the reply history file. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// GenerationConfig controls what is sent to and done with the generator.
type GenerationConfig struct {
	ExcerptChars int    `yaml:"excerpt_chars"`
	OnFailure    string `yaml:"on_failure"`
	FallbackText string `yaml:"fallback_text"`
	DryRun       bool   `yaml:"dry_run"`
}

// MailConfig is the IMAP mailbox second-factor codes are delivered to.
type MailConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Mailbox      string        `yaml:"mailbox"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Enabled reports whether a mailbox is configured.
func (m MailConfig) Enabled() bool {
	return m.Addr != "" && m.Username != ""
}

// AuthConfig controls login verification.
type AuthConfig struct {
	// StrictVerification fails logins whose success cannot be confirmed.
	StrictVerification bool `yaml:"strict_verification"`
}

// LoggingConfig controls the run log.
type LoggingConfig struct {
	Verbosity string `yaml:"verbosity"`
	Dir       string `yaml:"dir"`
	Console   bool   `yaml:"console"`
}

// SiteConfig is one forum to visit.
type SiteConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Profile string `yaml:"profile"`

	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	CodeSender string `yaml:"code_sender"`

	Include   []string                      `yaml:"include"`
	Exclude   []string                      `yaml:"exclude"`
	Selectors map[string][]browser.Selector `yaml:"selectors"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	p := pacing.DefaultConfig()
	return &Config{
		MaxRepliesPerSession:   runner.DefaultMaxReplies,
		TypingDelayRange:       p.Typing,
		SecondaryFactorTimeout: session.DefaultSecondFactorTimeout,
		Pacing: PacingConfig{
			Action:         p.Action,
			Scroll:         p.Scroll,
			LoadWait:       pacing.Range{Min: 5 * time.Second, Max: 10 * time.Second},
			CandidatePause: pacing.Range{Min: 10 * time.Second, Max: 20 * time.Second},
			SitePause:      pacing.Range{Min: 30 * time.Second, Max: 60 * time.Second},
		},
		Browser: BrowserConfig{
			Backend: string(browser.BackendPlaywright),
			Timeout: 30 * time.Second,
			Width:   browser.DefaultViewportWidth,
			Height:  browser.DefaultViewportHeight,
		},
		Locator: LocatorConfig{
			EnableAttempts: 20,
			EnableInterval: 500 * time.Millisecond,
		},
		Ledger: LedgerConfig{
			Path:        "bot_data.db",
			BusyTimeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Path: "reply_history.txt",
		},
		LLM: LLMConfig{
			BaseURL:     generator.DefaultBaseURL,
			Model:       generator.DefaultModel,
			MaxTokens:   generator.DefaultMaxTokens,
			Temperature: generator.DefaultTemperature,
			Timeout:     30 * time.Second,
			MaxRetries:  2,
		},
		Generation: GenerationConfig{
			ExcerptChars: processor.DefaultExcerptChars,
			OnFailure:    string(processor.PolicyFallback),
			FallbackText: generator.DefaultApology,
		},
		Mail: MailConfig{
			Addr:         "imap.gmail.com:993",
			Mailbox:      "INBOX",
			PollInterval: mailcode.DefaultPollInterval,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
			Console:   true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxRepliesPerSession <= 0 {
		return invalid("max_replies_per_session must be positive")
	}
	if err := c.TypingDelayRange.Validate(); err != nil {
		return invalid("typing_delay_range: %v", err)
	}
	if c.SecondaryFactorTimeout <= 0 {
		return invalid("secondary_factor_timeout must be positive")
	}

	ranges := map[string]pacing.Range{
		"pacing.action":          c.Pacing.Action,
		"pacing.load_wait":       c.Pacing.LoadWait,
		"pacing.candidate_pause": c.Pacing.CandidatePause,
		"pacing.site_pause":      c.Pacing.SitePause,
		"pacing.scroll.pause":    c.Pacing.Scroll.Pause,
	}
	for name, r := range ranges {
		if err := r.Validate(); err != nil {
			return invalid("%s: %v", name, err)
		}
	}
	if c.Pacing.Scroll.MinSteps < 0 || c.Pacing.Scroll.MaxSteps < c.Pacing.Scroll.MinSteps {
		return invalid("pacing.scroll: steps must satisfy 0 <= min_steps <= max_steps")
	}

	switch browser.Backend(c.Browser.Backend) {
	case browser.BackendPlaywright, browser.BackendRod:
	default:
		return invalid("browser.backend must be %q or %q", browser.BackendPlaywright, browser.BackendRod)
	}
	if c.Browser.Width < 0 || c.Browser.Height < 0 {
		return invalid("browser viewport must not be negative")
	}

	if c.Locator.EnableAttempts < 0 || c.Locator.EnableInterval < 0 {
		return invalid("locator settings must not be negative")
	}

	if c.Ledger.Path == "" {
		return invalid("ledger.path is required")
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			return invalid("llm.base_url: %v", err)
		}
	}
	if c.LLM.MaxTokens <= 0 {
		return invalid("llm.max_tokens must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return invalid("llm.temperature must be between 0 and 2")
	}

	if c.Generation.ExcerptChars <= 0 {
		return invalid("generation.excerpt_chars must be positive")
	}
	switch processor.FailurePolicy(c.Generation.OnFailure) {
	case processor.PolicyFallback:
		if c.Generation.FallbackText == "" {
			return invalid("generation.fallback_text is required when on_failure is %q", processor.PolicyFallback)
		}
	case processor.PolicySkip:
	default:
		return invalid("generation.on_failure must be %q or %q", processor.PolicyFallback, processor.PolicySkip)
	}

	if c.Mail.Enabled() && c.Mail.PollInterval <= 0 {
		return invalid("mail.poll_interval must be positive")
	}

	if _, err := logging.ParseVerbosity(c.Logging.Verbosity); err != nil {
		return invalid("logging.verbosity: %v", err)
	}

	if len(c.Sites) == 0 {
		return invalid("at least one site is required")
	}
	seen := make(map[string]bool, len(c.Sites))
	for i, s := range c.Sites {
		if err := s.validate(); err != nil {
			return invalid("sites[%d]: %v", i, err)
		}
		if seen[s.Name] {
			return invalid("sites[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func (s SiteConfig) validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q must be absolute", s.URL)
	}
	if _, err := site.Lookup(s.Profile); err != nil {
		return err
	}
	if (s.Username == "") != (s.Password == "") {
		return errors.New("username and password must be set together")
	}
	return nil
}

// Site returns the site named name.
func (c *Config) Site(name string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteConfig{}, false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
