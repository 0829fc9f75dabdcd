// Package anthropic provides a Completer backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/memmesh/model"
)

// Options configures the Anthropic completer (model id, API key). Request
// parameters (temperature, max tokens) travel with each model.Request.
type Options struct {
	Model  anthropic.Model
	APIKey string
}

// Completer wraps the Anthropic Messages API behind the model.Completer
// interface.
type Completer struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Completer = (*Completer)(nil)

// NewCompleter creates a new Anthropic completer using the official client.
func NewCompleter(optFns ...func(o *Options)) *Completer {
	opts := Options{
		Model: anthropic.ModelClaude3_5Sonnet20241022,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Completer{client: &client, opts: opts}
}

// NewCompleterFromClient creates a new Anthropic completer from an existing
// client.
func NewCompleterFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Completer {
	opts := Options{
		Model: anthropic.ModelClaude3_5Sonnet20241022,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, req model.Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.opts.Model,
		MaxTokens: req.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.Role != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Role}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", &model.CompletionError{Provider: "anthropic", Err: err}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", &model.CompletionError{Provider: "anthropic", Err: fmt.Errorf("response contains no text content")}
	}
	return sb.String(), nil
}
