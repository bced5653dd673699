package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	googlegenai "google.golang.org/genai"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of the Gemini models API we use.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*googlegenai.Content, config *googlegenai.GenerateContentConfig) (*googlegenai.GenerateContentResponse, error)
}

// GeminiClient is the Gemini-backed assistant.
type GeminiClient struct {
	models       contentGenerator
	model        string
	temperature  float32
	systemPrompt string
	debugMode    bool
	stateDir     string
}

// NewGeminiClient creates a Gemini assistant. The API key must be given via WithAPIKey.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	cfg := applyOpts(opts)
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNoAPIKey)
	}
	client, err := googlegenai.NewClient(ctx, &googlegenai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: googlegenai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	slog.Debug("Gemini client created", "model", cfg.Model)
	return &GeminiClient{
		models:       client.Models,
		model:        cfg.Model,
		temperature:  float32(cfg.Temperature),
		systemPrompt: cfg.SystemPrompt,
		debugMode:    cfg.DebugMode,
		stateDir:     cfg.StateDir,
	}, nil
}

// Reply sends the history to Gemini and returns the concatenated text parts.
func (g *GeminiClient) Reply(ctx context.Context, sender string, history []models.ChatMessage) (string, error) {
	contents := make([]*googlegenai.Content, 0, len(history))
	for _, m := range history {
		role := googlegenai.RoleUser
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &googlegenai.Content{Role: role, Parts: []*googlegenai.Part{{Text: m.Content}}})
	}
	cfg := &googlegenai.GenerateContentConfig{Temperature: googlegenai.Ptr(g.temperature)}
	if g.systemPrompt != "" {
		cfg.SystemInstruction = &googlegenai.Content{Parts: []*googlegenai.Part{{Text: g.systemPrompt}}}
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		slog.Warn("Gemini Reply failed", "sender", sender, "error", err)
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	out := strings.TrimSpace(builder.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	if g.debugMode {
		writeDebug(g.stateDir, "gemini", sender, history, out)
	}
	return out, nil
}
