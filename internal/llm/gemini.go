package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"gundog/internal/logging"
)

// GeminiConfig tunes the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// DefaultGeminiConfig returns production defaults. The low temperature keeps
// the suffix-tag protocol stable; safety filters are disabled because the
// scenario text trips them constantly.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:      apiKey,
		Model:       "gemini-2.0-flash",
		Temperature: 0.3,
		Timeout:     120 * time.Second,
	}
}

// GeminiClient is the production Client over the Gemini API.
type GeminiClient struct {
	client *genai.Client
	config GeminiConfig
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logging.API("gemini client ready, model=%s temp=%.2f", config.Model, config.Temperature)
	return &GeminiClient{client: client, config: config}, nil
}

func (c *GeminiClient) generateConfig(systemInstruction string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(c.config.Temperature),
		SafetySettings: permissiveSafety(),
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return cfg
}

func permissiveSafety() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, cat := range categories {
		settings[i] = &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockNone,
		}
	}
	return settings
}

// StartChat opens a rolling Gemini chat seeded from a prior transcript.
func (c *GeminiClient) StartChat(ctx context.Context, systemInstruction string, history []Turn) (ChatSession, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		role := genai.RoleUser
		if t.FromModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(role)))
	}

	chat, err := c.client.Chats.Create(ctx, c.config.Model, c.generateConfig(systemInstruction), contents)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	logging.API("chat session opened with %d history turns", len(history))
	return &geminiChat{chat: chat, timeout: c.config.Timeout}, nil
}

// Generate runs a single stateless prompt.
func (c *GeminiClient) Generate(ctx context.Context, systemInstruction, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "Generate")
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model,
		genai.Text(prompt), c.generateConfig(systemInstruction))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrBackendUnavailable)
	}
	return text, nil
}

type geminiChat struct {
	chat    *genai.Chat
	timeout time.Duration
}

func (g *geminiChat) Send(ctx context.Context, message string) (string, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "SendMessage")
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		logging.APIError("send failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrBackendUnavailable)
	}
	return text, nil
}
