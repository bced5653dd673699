// Package genai provides the optional conversational-AI fallback used when the
// rule-based interview is bypassed. OpenAI and Gemini backends are supported.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// Defaults for the OpenAI client.
const (
	DefaultModel       = openai.ChatModelGPT4oMini
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 150
)

var (
	ErrNoAPIKey          = errors.New("API key not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyResponse     = errors.New("empty response from model")
)

// chatService is the subset of the OpenAI chat completions API we use.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the AI clients.
type Opts struct {
	APIKey       string
	Model        string
	Temperature  float64
	MaxTokens    int64
	SystemPrompt string
	DebugMode    bool
	StateDir     string
}

// Option configures an AI client.
type Option func(*Opts)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option { return func(o *Opts) { o.APIKey = key } }

// WithModel overrides the model name.
func WithModel(model string) Option { return func(o *Opts) { o.Model = model } }

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option { return func(o *Opts) { o.Temperature = t } }

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int64) Option { return func(o *Opts) { o.MaxTokens = n } }

// WithSystemPrompt sets the instructions sent ahead of the conversation.
func WithSystemPrompt(p string) Option { return func(o *Opts) { o.SystemPrompt = p } }

// WithDebug writes every exchange as JSON under stateDir/debug.
func WithDebug(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = stateDir != ""
		o.StateDir = stateDir
	}
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Client is the OpenAI-backed assistant.
type Client struct {
	chat         chatService
	model        string
	temperature  float64
	maxTokens    int64
	systemPrompt string
	debugMode    bool
	stateDir     string
}

// NewClient creates an OpenAI assistant. The API key must be given via WithAPIKey.
func NewClient(opts ...Option) (*Client, error) {
	cfg := applyOpts(opts)
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model, "debug", cfg.DebugMode)
	return &Client{
		chat:         &cli.Chat.Completions,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
		debugMode:    cfg.DebugMode,
		stateDir:     cfg.StateDir,
	}, nil
}

// Reply sends the system prompt and history and returns the model's answer.
func (c *Client) Reply(ctx context.Context, sender string, history []models.ChatMessage) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if c.systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(c.systemPrompt))
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    msgs,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}
	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Warn("GenAI Reply failed", "sender", sender, "error", err)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}
	slog.Debug("GenAI Reply succeeded", "sender", sender, "elapsed", time.Since(start))
	if c.debugMode {
		writeDebug(c.stateDir, "openai", sender, history, out)
	}
	return out, nil
}

type debugRecord struct {
	Provider string               `json:"provider"`
	Sender   string               `json:"sender"`
	History  []models.ChatMessage `json:"history"`
	Reply    string               `json:"reply"`
	Time     time.Time            `json:"time"`
}

func writeDebug(stateDir, provider, sender string, history []models.ChatMessage, reply string) {
	dir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("GenAI debug dir create failed", "error", err)
		return
	}
	rec := debugRecord{Provider: provider, Sender: sender, History: history, Reply: reply, Time: time.Now()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return
	}
	name := fmt.Sprintf("%s_%d.json", provider, rec.Time.UnixNano())
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("GenAI debug write failed", "error", err)
	}
}
