package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clenja-agent-go/internal/llm"

	"google.golang.org/genai"
)

const defaultModelName = "gemini-2.0-flash"

// Client extracts intents through the Gemini API in JSON response mode.
type Client struct {
	client *genai.Client
	model  string
}

var _ llm.Client = (*Client)(nil)

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = defaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Extract(ctx context.Context, text string) (*llm.Extraction, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(llm.SystemPrompt, genai.RoleUser),
	}

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return nil, errors.New("gemini response content is empty")
	}

	extraction, err := llm.ParseExtraction(content)
	if err != nil {
		return nil, fmt.Errorf("parse gemini extraction: %w", err)
	}
	return extraction, nil
}
