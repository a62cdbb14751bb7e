// Package ai calls an external language model to judge relevance, clean up
// fields and rank product candidates. Every operation can fail; callers are
// expected to fall back rather than abort.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Completer turns a prompt into the model's text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CapabilityError reports a failed or unusable model call. Op names the
// operation: "relevance", "enhance" or "analyze".
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("model returned no completion")

// OpenAICompleter talks to any OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter builds a completer. baseURL may be empty for the OpenAI
// default; httpClient may be nil.
func NewOpenAICompleter(apiKey, baseURL, model string, httpClient *http.Client) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete sends prompt as a single user message.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
