package generator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL is the OpenAI-compatible endpoint used when none is set.
	DefaultBaseURL = "https://api.cerebras.ai/v1"

	// DefaultModel is the model used when none is set.
	DefaultModel = "llama3.1-8b"

	DefaultMaxTokens   = 150
	DefaultTemperature = 0.7
)

// OpenAI generates text with any OpenAI-compatible chat-completion API.
type OpenAI struct {
	client      openai.Client
	baseURL     string
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	maxRetries  int
	httpClient  *http.Client
}

// Option configures an OpenAI generator.
type Option func(*OpenAI)

// WithModel sets the model to use for completions.
func WithModel(model string) Option {
	return func(g *OpenAI) {
		g.model = model
	}
}

// WithBaseURL sets the API base URL, e.g. a local or hosted compatible service.
func WithBaseURL(baseURL string) Option {
	return func(g *OpenAI) {
		g.baseURL = baseURL
	}
}

// WithMaxTokens caps the reply length in tokens.
func WithMaxTokens(n int64) Option {
	return func(g *OpenAI) {
		g.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *OpenAI) {
		g.temperature = t
	}
}

// WithTimeout bounds each generation call. Zero means no extra bound.
func WithTimeout(d time.Duration) Option {
	return func(g *OpenAI) {
		g.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests.
func WithMaxRetries(n int) Option {
	return func(g *OpenAI) {
		g.maxRetries = n
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *OpenAI) {
		g.httpClient = c
	}
}

// NewOpenAI creates a generator authenticated with apiKey.
//
// If apiKey is empty, it is read from the OPENAI_API_KEY environment variable.
func NewOpenAI(apiKey string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required (provide via llm.api_key or OPENAI_API_KEY environment variable)")
	}

	g := &OpenAI{
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		maxRetries:  2,
	}
	for _, opt := range opts {
		opt(g)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(g.baseURL),
		option.WithMaxRetries(g.maxRetries),
	}
	if g.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(g.httpClient))
	}
	g.client = openai.NewClient(reqOpts...)

	return g, nil
}

// Model returns the model name being used.
func (g *OpenAI) Model() string {
	return g.model
}

// Generate sends req as a system and a user message and returns the trimmed
// reply. Every failure, including an empty reply, matches ErrProvider.
func (g *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    messages,
		MaxTokens:   openai.Int(g.maxTokens),
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrProvider)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrProvider)
	}
	return reply, nil
}

var _ TextGenerator = (*OpenAI)(nil)
