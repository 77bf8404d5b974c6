package evaluator

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"quorum/internal/logging"
)

// GenAIClient implements types.LLMClient on Google's Gemini API. It backs
// both the decision service and the LLM-dependent workers.
type GenAIClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAIClient creates a Gemini-backed completion client.
func NewGenAIClient(apiKey, model string, timeout time.Duration) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{client: client, model: model, timeout: timeout}, nil
}

// Complete sends a single-turn prompt.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, nil, prompt)
}

// CompleteWithSystem sends a prompt under a system instruction.
func (c *GenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	return c.generate(ctx, cfg, userPrompt)
}

func (c *GenAIClient) generate(ctx context.Context, cfg *genai.GenerateContentConfig, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", c.model)
	}

	logging.API("GenAI completion: model=%s prompt_len=%d response_len=%d elapsed=%v",
		c.model, len(prompt), len(text), time.Since(started))
	return text, nil
}
