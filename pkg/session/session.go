// Package session drives the login flow of one site visit:
//
//	Anonymous -> CredentialsEntered -> AwaitingSecondFactor -> Authenticated
//
// with Failed reachable from every state and AuthenticationUncertain when the
// page offers neither a sign-in affordance nor a logged-in indicator.
// A failed login is never retried within the same session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/locator"
	"github.com/entrhq/forumreply/pkg/logging"
	"github.com/entrhq/forumreply/pkg/pacing"
	"github.com/entrhq/forumreply/pkg/site"
)

// DefaultSecondFactorTimeout bounds the wait for a mailed code.
const DefaultSecondFactorTimeout = 60 * time.Second

// CodeProvider supplies second-factor codes.
type CodeProvider interface {
	// GetCode blocks until a code from senderFilter arrives or timeout
	// elapses; ok is false on timeout.
	GetCode(ctx context.Context, senderFilter string, timeout time.Duration) (code string, ok bool)
}

// Credentials authenticate against one site.
type Credentials struct {
	Username string
	Password string
}

// String never reveals the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s:****", c.Username)
}

// Config is the per-site login configuration.
type Config struct {
	Credentials Credentials

	// CodeSender filters mailbox messages for second-factor codes. Empty
	// uses the profile's sender.
	CodeSender string

	SecondFactorTimeout time.Duration

	// StrictVerification turns AuthenticationUncertain into Failed.
	StrictVerification bool
}

// Session is the login state of one site visit.
type Session struct {
	Site      string
	TargetURL string

	// SecondFactorAttempts counts code requests made in this session.
	SecondFactorAttempts int

	state   State
	history []State
}

func newSession(siteName, targetURL string) *Session {
	return &Session{
		Site:      siteName,
		TargetURL: targetURL,
		state:     Anonymous,
		history:   []State{Anonymous},
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// History returns every state visited, in order, starting with Anonymous.
func (s *Session) History() []State {
	return append([]State(nil), s.history...)
}

// CanProceed reports whether post processing may run in this session.
func (s *Session) CanProceed() bool {
	return s.state == Authenticated || s.state == AuthenticationUncertain
}

func (s *Session) enter(next State) {
	s.state = next
	s.history = append(s.history, next)
}

// Manager runs the login state machine for one site profile.
type Manager struct {
	profile  site.Profile
	resolver *locator.Resolver
	pacer    *pacing.Pacer
	codes    CodeProvider
	cfg      Config
	log      *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for transitions and failures.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager creates a Manager. codes may be nil for sites without a second
// factor; a second-factor prompt then fails the login.
func NewManager(profile site.Profile, resolver *locator.Resolver, pacer *pacing.Pacer, codes CodeProvider, cfg Config, opts ...Option) *Manager {
	if cfg.SecondFactorTimeout <= 0 {
		cfg.SecondFactorTimeout = DefaultSecondFactorTimeout
	}
	if cfg.CodeSender == "" {
		cfg.CodeSender = profile.CodeSender
	}
	m := &Manager{
		profile:  profile,
		resolver: resolver,
		pacer:    pacer,
		codes:    codes,
		cfg:      cfg,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login drives page from Anonymous to a terminal state, then navigates back
// to targetURL unless the login failed. The returned error is an
// *AuthenticationError exactly when the session ends in Failed.
func (m *Manager) Login(ctx context.Context, page browser.Page, siteName, targetURL string) (*Session, error) {
	s := newSession(siteName, targetURL)

	for !s.state.Terminal() {
		from := s.state
		next, err := m.step(ctx, page, s)
		if err != nil {
			return m.fail(s, from, err)
		}
		m.log.Infof("%s: %s -> %s", siteName, from, next)
		s.enter(next)
	}

	if s.state == AuthenticationUncertain {
		if m.cfg.StrictVerification {
			return m.fail(s, AuthenticationUncertain, ErrUnverified)
		}
		m.log.Warnf("%s: login not verified; continuing as %s", siteName, s.state)
	}

	if err := page.Navigate(ctx, targetURL); err != nil {
		return m.fail(s, s.state, fmt.Errorf("failed to return to %s: %w", targetURL, err))
	}
	return s, nil
}

func (m *Manager) fail(s *Session, from State, err error) (*Session, error) {
	s.enter(Failed)
	authErr := &AuthenticationError{Site: s.Site, From: from, Err: err}
	m.log.Errorf("%v", authErr)
	return s, authErr
}

func (m *Manager) step(ctx context.Context, page browser.Page, s *Session) (State, error) {
	switch s.state {
	case Anonymous:
		return m.enterCredentials(ctx, page)
	case CredentialsEntered:
		return m.detectSecondFactor(ctx, page)
	case AwaitingSecondFactor:
		return m.completeSecondFactor(ctx, page, s)
	default:
		return Failed, fmt.Errorf("no transition from %s", s.state)
	}
}

func (m *Manager) enterCredentials(ctx context.Context, page browser.Page) (State, error) {
	signIn, ok := m.resolve(ctx, page, site.SignIn)
	if !ok {
		if m.resolver.Visible(ctx, page, m.profile.Locator(site.LoggedIn)) {
			return Authenticated, nil
		}
		return AuthenticationUncertain, ctx.Err()
	}

	if m.cfg.Credentials.Username == "" || m.cfg.Credentials.Password == "" {
		return Failed, ErrNoCredentials
	}

	if err := m.click(ctx, signIn, site.SignIn); err != nil {
		return Failed, err
	}
	// Some sites open a modal with a second sign-in button before the form.
	if !m.resolver.Visible(ctx, page, m.profile.Locator(site.Username)) {
		if secondary, ok := m.resolve(ctx, page, site.SignInSecondary); ok {
			if err := m.click(ctx, secondary, site.SignInSecondary); err != nil {
				return Failed, err
			}
		}
	}

	if err := m.fill(ctx, page, site.Username, m.cfg.Credentials.Username); err != nil {
		return Failed, err
	}
	// Two-step forms ask for the password on a second screen.
	if cont, ok := m.resolve(ctx, page, site.UsernameContinue); ok {
		if err := m.click(ctx, cont, site.UsernameContinue); err != nil {
			return Failed, err
		}
	}
	if err := m.fill(ctx, page, site.Password, m.cfg.Credentials.Password); err != nil {
		return Failed, err
	}

	submit, ok := m.resolve(ctx, page, site.LoginSubmit)
	if !ok {
		return Failed, missing(site.LoginSubmit)
	}
	if err := m.click(ctx, submit, site.LoginSubmit); err != nil {
		return Failed, err
	}
	return CredentialsEntered, nil
}

func (m *Manager) detectSecondFactor(ctx context.Context, page browser.Page) (State, error) {
	if err := m.pacer.Act(ctx); err != nil {
		return Failed, err
	}
	if m.profile.IsSecondFactorURL(page.URL()) ||
		m.resolver.Visible(ctx, page, m.profile.Locator(site.SendCode)) ||
		m.resolver.Visible(ctx, page, m.profile.Locator(site.CodeInput)) {
		return AwaitingSecondFactor, nil
	}
	return Authenticated, ctx.Err()
}

func (m *Manager) completeSecondFactor(ctx context.Context, page browser.Page, s *Session) (State, error) {
	if m.codes == nil {
		return Failed, ErrNoCodeProvider
	}

	if send, ok := m.resolve(ctx, page, site.SendCode); ok {
		if err := m.click(ctx, send, site.SendCode); err != nil {
			return Failed, err
		}
	}

	s.SecondFactorAttempts++
	m.log.Infof("%s: waiting up to %s for a code from %s", s.Site, m.cfg.SecondFactorTimeout, m.cfg.CodeSender)
	code, ok := m.codes.GetCode(ctx, m.cfg.CodeSender, m.cfg.SecondFactorTimeout)
	if !ok {
		if err := ctx.Err(); err != nil {
			return Failed, err
		}
		return Failed, ErrNoCode
	}

	if err := m.fill(ctx, page, site.CodeInput, code); err != nil {
		return Failed, err
	}
	submit, ok := m.resolve(ctx, page, site.CodeSubmit)
	if !ok {
		return Failed, missing(site.CodeSubmit)
	}
	if err := m.click(ctx, submit, site.CodeSubmit); err != nil {
		return Failed, err
	}
	return Authenticated, nil
}

func (m *Manager) resolve(ctx context.Context, page browser.Page, a site.Affordance) (browser.Element, bool) {
	d := m.profile.Locator(a)
	if d.IsZero() {
		return nil, false
	}
	return m.resolver.Resolve(ctx, page, d)
}

func (m *Manager) click(ctx context.Context, el browser.Element, a site.Affordance) error {
	if err := el.Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", a, err)
	}
	return m.pacer.Act(ctx)
}

func (m *Manager) fill(ctx context.Context, page browser.Page, a site.Affordance, value string) error {
	el, ok := m.resolve(ctx, page, a)
	if !ok {
		return missing(a)
	}
	if err := el.Fill(value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", a, err)
	}
	return m.pacer.Act(ctx)
}

func missing(a site.Affordance) error {
	return fmt.Errorf("%s: %w", a, errMissingElement)
}
