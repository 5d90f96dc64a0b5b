package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider drives extraction completions through the Anthropic
// Messages API. A single client is shared across all namespace workers; the
// SDK's client is safe for concurrent use.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
	apiKey string
}

// NewAnthropicProvider builds a Provider against baseURL (empty for the
// default) using apiKey. model selects the completion model; callers
// typically pass config.LLM.Model.
func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
		apiKey: apiKey,
	}
}

// IsAvailable reports whether this provider was configured with credentials
// at all. It does not probe the network.
func (p *AnthropicProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Complete sends prompt as a single user turn and returns the concatenated
// text of the response's text blocks. When opts.Format == "json" a system
// instruction is prepended asking for a bare JSON object, matching how the
// teacher's llm.Service steers its provider toward parseable output.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.Format == "json" {
		params.System = []anthropic.TextBlockParam{
			{Text: "Respond with a single JSON object and nothing else: no prose, no markdown code fences."},
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("extractor: anthropic response contained no text content")
	}
	return sb.String(), nil
}
