package mailcode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		body   string
		want   string
		wantOK bool
	}{
		{body: "Your EA security code is: 482913", want: "482913", wantOK: true},
		{body: "Order 1234567 ships soon. Code 000111.", want: "000111", wantOK: true},
		{body: "first 123456 then 654321", want: "123456", wantOK: true},
		{body: "no digits here", wantOK: false},
		{body: "12345 is too short", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := ExtractCode(tt.body)
		assert.Equal(t, tt.wantOK, ok, tt.body)
		assert.Equal(t, tt.want, got, tt.body)
	}
}

// scriptedSource returns one scripted response per Fetch call.
type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	senders []string
	script  []func() ([]string, error)
}

func (s *scriptedSource) Fetch(_ context.Context, sender string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders = append(s.senders, sender)
	i := s.calls
	s.calls++
	if i < len(s.script) {
		return s.script[i]()
	}
	return nil, nil
}

func TestPollerFindsCodeAfterRetries(t *testing.T) {
	src := &scriptedSource{script: []func() ([]string, error){
		func() ([]string, error) { return nil, nil },
		func() ([]string, error) { return nil, errors.New("connection reset") },
		func() ([]string, error) { return []string{"newsletter", "Your code: 246810"}, nil },
	}}
	p := NewPoller(src, WithInterval(time.Millisecond))

	code, ok := p.GetCode(context.Background(), "noreply@ea.com", 5*time.Second)

	require.True(t, ok)
	assert.Equal(t, "246810", code)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, []string{"noreply@ea.com", "noreply@ea.com", "noreply@ea.com"}, src.senders)
}

func TestPollerTimesOut(t *testing.T) {
	src := &scriptedSource{}
	p := NewPoller(src, WithInterval(5*time.Millisecond))

	start := time.Now()
	code, ok := p.GetCode(context.Background(), "noreply@ea.com", 30*time.Millisecond)

	assert.False(t, ok)
	assert.Empty(t, code)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.GreaterOrEqual(t, src.calls, 2)
}

func TestPollerHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := NewPoller(&scriptedSource{}, WithInterval(time.Hour)).GetCode(ctx, "x", time.Hour)
	assert.False(t, ok)
}

func TestPlainText(t *testing.T) {
	msg := strings.Join([]string{
		"From: EA <noreply@ea.com>",
		"To: bot@example.com",
		"Subject: Your security code",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="XYZ"`,
		"",
		"--XYZ",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Your code is <b>999999</b></p>",
		"--XYZ",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Your code is 135790.",
		"--XYZ--",
		"",
	}, "\r\n")

	body, err := plainText(strings.NewReader(msg))
	require.NoError(t, err)
	assert.NotContains(t, body, "999999")

	code, ok := ExtractCode(body)
	require.True(t, ok)
	assert.Equal(t, "135790", code)
}

func TestPlainTextSinglePart(t *testing.T) {
	msg := "From: noreply@ea.com\r\nContent-Type: text/plain\r\n\r\nCode: 112233\r\n"

	body, err := plainText(strings.NewReader(msg))
	require.NoError(t, err)
	assert.Contains(t, body, "112233")
}
