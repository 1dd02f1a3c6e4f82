package infer

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider calls Gemini for both text and vision completions. It is
// the default provider.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed provider. Returns ErrNoProvider when
// no API key is configured, so the pipeline can run degraded.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNoProvider
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("infer.NewGemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// GenerateText implements Provider.
func (p *GeminiProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("infer.GeminiProvider: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("infer.GeminiProvider: empty response from model")
	}
	return text, nil
}

// GenerateVision implements Provider.
func (p *GeminiProvider) GenerateVision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
			},
		},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("infer.GeminiProvider: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("infer.GeminiProvider: empty response from model")
	}
	return text, nil
}
