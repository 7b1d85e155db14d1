// Package oracle wraps the text-generation service used to turn utterances
// into structured commands. The contract is a single prompt in, a single
// completion out: no streaming and no function calling.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	appLog "nlcal/internal/log"
)

// Oracle completes a prompt.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Oracle. Handy for fixtures.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config holds the OpenAI-compatible endpoint settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// ErrEmptyCompletion is returned when the service answers without choices.
var ErrEmptyCompletion = errors.New("oracle returned no choices")

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewOpenAI builds a client. An empty BaseURL means api.openai.com.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("oracle model is empty")
	}
	occ := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		occ.BaseURL = base
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(occ),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete sends prompt as a single user message and returns the content of
// the first choice.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	appLog.Debug("oracle completion",
		"model", o.model,
		"elapsed_ms", time.Since(started).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}
