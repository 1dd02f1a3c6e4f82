package infer

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider calls the Anthropic API. Selected with LLM_PROVIDER=claude.
type ClaudeProvider struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude-backed provider. Returns ErrNoProvider when
// no API key is configured.
func NewClaude(apiKey, model string) (*ClaudeProvider, error) {
	if apiKey == "" {
		return nil, ErrNoProvider
	}
	return &ClaudeProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// GenerateText implements Provider.
func (p *ClaudeProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("infer.ClaudeProvider: %w", err)
	}
	return collectText(message)
}

// GenerateVision implements Provider.
func (p *ClaudeProvider) GenerateVision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, encoded),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("infer.ClaudeProvider: %w", err)
	}
	return collectText(message)
}

func collectText(message *anthropic.Message) (string, error) {
	if message == nil || len(message.Content) == 0 {
		return "", fmt.Errorf("infer.ClaudeProvider: empty response")
	}
	var out string
	for _, block := range message.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("infer.ClaudeProvider: no text blocks in response")
	}
	return out, nil
}
