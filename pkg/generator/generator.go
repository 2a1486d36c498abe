// Package generator turns forum post text into a reply through a
// chat-completion model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrProvider marks any failure of the text generation provider.
var ErrProvider = errors.New("text generation failed")

// DefaultSystemInstruction is sent as the system message.
const DefaultSystemInstruction = "You are a helpful and concise forum assistant."

// DefaultApology is submitted in place of a generated reply when generation
// fails and the fallback policy is in effect.
const DefaultApology = "I'm sorry, I couldn't generate a response at this time. Please check back later or contact support."

const promptTemplate = `You are a helpful community assistant. Read the following forum post and provide a helpful,
summarized, and polite response that solves the user's query.
Keep the tone professional yet friendly.
Limit the response to 2-3 concise sentences.

Post Content:
%s

Helpful Reply:`

// Request is one generation call.
type Request struct {
	SystemInstruction string
	UserPrompt        string
}

// TextGenerator produces reply text for a request.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ReplyRequest builds the request for replying to a post excerpt.
func ReplyRequest(excerpt string) Request {
	return Request{
		SystemInstruction: DefaultSystemInstruction,
		UserPrompt:        fmt.Sprintf(promptTemplate, strings.TrimSpace(excerpt)),
	}
}

// Func adapts a function to TextGenerator.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
