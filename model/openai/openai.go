// Package openai provides a Completer backed by the OpenAI Chat Completions
// API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/memmesh/model"
)

// Options configures the OpenAI completer. Request parameters (temperature,
// max tokens) travel with each model.Request.
type Options struct {
	Model string
}

// Completer wraps the OpenAI Chat Completions API behind the model.Completer
// interface.
type Completer struct {
	client *openai.Client
	opts   Options
}

var _ model.Completer = (*Completer)(nil)

// NewCompleter creates a new OpenAI completer using the official client.
func NewCompleter(optFns ...func(o *Options)) *Completer {
	client := openai.NewClient()
	return NewCompleterFromClient(&client, optFns...)
}

// NewCompleterFromClient creates a new OpenAI completer from an existing
// client.
func NewCompleterFromClient(client *openai.Client, optFns ...func(o *Options)) *Completer {
	opts := Options{
		Model: openai.ChatModelGPT4oMini,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, req model.Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Role != "" {
		messages = append(messages, openai.SystemMessage(req.Role))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    c.opts.Model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &model.CompletionError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &model.CompletionError{Provider: "openai", Err: fmt.Errorf("response contains no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
