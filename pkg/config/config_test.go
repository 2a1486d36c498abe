package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/processor"
	"github.com/entrhq/forumreply/pkg/site"
)

const sampleYAML = `
max_replies_per_session: 2
typing_delay_range: {min: 40ms, max: 120ms}
secondary_factor_timeout: 90s
shuffle_candidates: true

pacing:
  candidate_pause: {min: 1s, max: 2s}

browser:
  backend: rod
  headless: true
  timeout: 15s

llm:
  api_key: ${TEST_LLM_KEY}
  model: llama3.1-70b

generation:
  on_failure: skip

mail:
  username: bot@example.com
  password: ${TEST_MAIL_PASS}

auth:
  strict_verification: true

sites:
  - name: ea
    url: https://forums.ea.com/category/fc-en
    profile: khoros
    username: ${TEST_EA_USER}
    password: ${TEST_EA_PASS}
    exclude: ["*/blog/*"]
    selectors:
      reply:
        - css: 'a[href$="/reply"]'
        - text: Reply
          css: button
  - name: hf
    url: https://discuss.huggingface.co/latest
    profile: discourse
`

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

var sampleEnv = env(map[string]string{
	"TEST_LLM_KEY":   "sk-test",
	"TEST_MAIL_PASS": "app-password",
	"TEST_EA_USER":   "player@example.com",
	"TEST_EA_PASS":   `p@ss: #1 "quoted"`,
})

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sites = []SiteConfig{{
		Name:    "hf",
		URL:     "https://discuss.huggingface.co/latest",
		Profile: "discourse",
	}}
	return cfg
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), sampleEnv)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxRepliesPerSession)
	assert.Equal(t, 40*time.Millisecond, cfg.TypingDelayRange.Min)
	assert.Equal(t, 120*time.Millisecond, cfg.TypingDelayRange.Max)
	assert.Equal(t, 90*time.Second, cfg.SecondaryFactorTimeout)
	assert.True(t, cfg.ShuffleCandidates)

	// Partially specified sections keep their defaults.
	assert.Equal(t, time.Second, cfg.Pacing.CandidatePause.Min)
	assert.Equal(t, DefaultConfig().Pacing.SitePause, cfg.Pacing.SitePause)
	assert.Equal(t, "imap.gmail.com:993", cfg.Mail.Addr)
	assert.Equal(t, DefaultConfig().LLM.BaseURL, cfg.LLM.BaseURL)

	assert.Equal(t, "rod", cfg.Browser.Backend)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "llama3.1-70b", cfg.LLM.Model)
	assert.Equal(t, "skip", cfg.Generation.OnFailure)
	assert.True(t, cfg.Auth.StrictVerification)

	require.Len(t, cfg.Sites, 2)
	ea := cfg.Sites[0]
	assert.Equal(t, "player@example.com", ea.Username)
	assert.Equal(t, `p@ss: #1 "quoted"`, ea.Password)
	assert.Equal(t, []browser.Selector{
		{CSS: `a[href$="/reply"]`},
		{CSS: "button", HasText: "Reply"},
	}, ea.Selectors["reply"])
}

func TestParseExpandsIntoTypedFields(t *testing.T) {
	data := `
max_replies_per_session: ${TEST_MAX}
sites:
  - {name: hf, url: "https://discuss.huggingface.co", profile: discourse}
`
	cfg, err := Parse([]byte(data), env(map[string]string{"TEST_MAX": "7"}))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRepliesPerSession)
}

func TestParseUnsetVariables(t *testing.T) {
	_, err := Parse([]byte(sampleYAML), env(map[string]string{"TEST_LLM_KEY": "k"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "[TEST_EA_PASS TEST_EA_USER TEST_MAIL_PASS]")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	data := `
max_replies: 3
sites:
  - {name: hf, url: "https://discuss.huggingface.co", profile: discourse}
`
	_, err := Parse([]byte(data), env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_replies")
}

func TestParseEmptyDocument(t *testing.T) {
	_, err := Parse(nil, env(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid), "defaults alone have no sites")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "forumreply.yaml")
	envPath := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(cfgPath, []byte(sampleYAML), 0o600))
	require.NoError(t, os.WriteFile(envPath, []byte(
		"TEST_LLM_KEY=from-dotenv\nTEST_MAIL_PASS=m\nTEST_EA_USER=u\nTEST_EA_PASS=p\n"), 0o600))
	for _, name := range []string{"TEST_LLM_KEY", "TEST_MAIL_PASS", "TEST_EA_USER", "TEST_EA_PASS"} {
		t.Cleanup(func() { os.Unsetenv(name) })
	}

	cfg, err := Load(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, "u", cfg.Sites[0].Username)
}

func TestLoadEnvironmentWinsOverDotenv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "forumreply.yaml")
	envPath := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(cfgPath, []byte(`
llm: {api_key: "${TEST_LOAD_KEY}"}
sites:
  - {name: hf, url: "https://discuss.huggingface.co", profile: discourse}
`), 0o600))
	require.NoError(t, os.WriteFile(envPath, []byte("TEST_LOAD_KEY=dotenv\n"), 0o600))
	t.Setenv("TEST_LOAD_KEY", "shell")

	cfg, err := Load(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "shell", cfg.LLM.APIKey)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "forumreply.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
sites:
  - {name: hf, url: "https://discuss.huggingface.co", profile: discourse}
`), 0o600))

	_, err := Load(cfgPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "zero quota",
			mutate:  func(c *Config) { c.MaxRepliesPerSession = 0 },
			wantErr: "max_replies_per_session",
		},
		{
			name:    "inverted typing range",
			mutate:  func(c *Config) { c.TypingDelayRange.Min = time.Second },
			wantErr: "typing_delay_range",
		},
		{
			name:    "zero second factor timeout",
			mutate:  func(c *Config) { c.SecondaryFactorTimeout = 0 },
			wantErr: "secondary_factor_timeout",
		},
		{
			name:    "negative site pause",
			mutate:  func(c *Config) { c.Pacing.SitePause.Min = -time.Second },
			wantErr: "pacing.site_pause",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Browser.Backend = "selenium" },
			wantErr: "browser.backend",
		},
		{
			name:    "no ledger",
			mutate:  func(c *Config) { c.Ledger.Path = "" },
			wantErr: "ledger.path",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.LLM.Temperature = 3 },
			wantErr: "llm.temperature",
		},
		{
			name:    "unknown failure policy",
			mutate:  func(c *Config) { c.Generation.OnFailure = "retry" },
			wantErr: "generation.on_failure",
		},
		{
			name:    "fallback without text",
			mutate:  func(c *Config) { c.Generation.FallbackText = "" },
			wantErr: "fallback_text",
		},
		{
			name: "skip without text",
			mutate: func(c *Config) {
				c.Generation.OnFailure = string(processor.PolicySkip)
				c.Generation.FallbackText = ""
			},
		},
		{
			name:    "bad verbosity",
			mutate:  func(c *Config) { c.Logging.Verbosity = "loud" },
			wantErr: "logging.verbosity",
		},
		{
			name:    "no sites",
			mutate:  func(c *Config) { c.Sites = nil },
			wantErr: "at least one site",
		},
		{
			name:    "relative site url",
			mutate:  func(c *Config) { c.Sites[0].URL = "/latest" },
			wantErr: "must be absolute",
		},
		{
			name:    "unknown profile",
			mutate:  func(c *Config) { c.Sites[0].Profile = "phpbb" },
			wantErr: "unknown site profile",
		},
		{
			name:    "username without password",
			mutate:  func(c *Config) { c.Sites[0].Username = "me" },
			wantErr: "set together",
		},
		{
			name:    "duplicate site",
			mutate:  func(c *Config) { c.Sites = append(c.Sites, c.Sites[0]) },
			wantErr: "duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTargets(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), sampleEnv)
	require.NoError(t, err)

	targets, err := cfg.Targets()
	require.NoError(t, err)
	require.Len(t, targets, 2)

	ea := targets[0]
	assert.Equal(t, "ea", ea.Name)
	assert.Equal(t, "khoros", ea.Profile.Name)
	assert.Equal(t, "player@example.com", ea.Session.Credentials.Username)
	assert.Equal(t, 90*time.Second, ea.Session.SecondFactorTimeout)
	assert.True(t, ea.Session.StrictVerification)
	assert.Equal(t, "ea", ea.Processor.Platform)
	assert.Equal(t, processor.PolicySkip, ea.Processor.OnGenerationFailure)

	reply := ea.Profile.Locator(site.Reply)
	require.Len(t, reply.Candidates, 2)
	assert.Equal(t, `a[href$="/reply"]`, reply.Candidates[0].CSS)

	filter, err := ea.Profile.Filter()
	require.NoError(t, err)
	assert.False(t, filter.Allows("https://forums.ea.com/t5/blog/news/ba-p/1"))
	assert.True(t, filter.Allows("https://forums.ea.com/t5/fc-26/crash/td-p/42"))

	only, err := cfg.Targets("hf")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "discourse", only[0].Profile.Name)

	_, err = cfg.Targets("nope")
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestTargetsUnknownAffordance(t *testing.T) {
	cfg := validConfig()
	cfg.Sites[0].Selectors = map[string][]browser.Selector{"like": {{CSS: ".like"}}}

	_, err := cfg.Targets()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site hf")
}

func TestRuntimeSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Browser.Timeout = 15 * time.Second

	launch := cfg.LaunchOptions()
	assert.Equal(t, 15000.0, launch.Timeout)
	require.NotNil(t, launch.Viewport)
	assert.Equal(t, browser.DefaultViewportWidth, launch.Viewport.Width)

	rc := cfg.RunnerConfig()
	assert.Equal(t, cfg.MaxRepliesPerSession, rc.MaxRepliesPerSession)
	assert.Equal(t, cfg.Pacing.SitePause, rc.SitePause)

	pc := cfg.PacingConfig()
	assert.Equal(t, cfg.TypingDelayRange, pc.Typing)

	assert.Nil(t, cfg.IMAPSource())
	cfg.Mail.Username = "bot@example.com"
	src := cfg.IMAPSource()
	require.NotNil(t, src)
	assert.Equal(t, "imap.gmail.com:993", src.Addr)
	assert.Equal(t, "INBOX", src.Mailbox)
}

func TestExampleConfig(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "forumreply.example.yaml"))
	require.NoError(t, err)

	cfg, err := Parse(data, func(name string) (string, bool) { return "set-" + name, true })
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pacing, cfg.Pacing)
	assert.Equal(t, "set-GMAIL_USER", cfg.Mail.Username)

	targets, err := cfg.Targets()
	require.NoError(t, err)
	assert.Len(t, targets, 2)
}
