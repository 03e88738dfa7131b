// Package genai wraps the OpenAI chat completions API for the assistant
// components (intent classification, FAQ matching and reply generation).
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default model parameters.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 800
	DefaultTimeout     = 30 * time.Second
)

var (
	// ErrNoChoicesReturned is returned when the API responds without any choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrMissingAPIKey is returned by NewClient when no key is configured.
	ErrMissingAPIKey = errors.New("OpenAI API key not set")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK completion service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// ClientInterface is the surface used by the assistant package.
type ClientInterface interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Client wraps the OpenAI ChatCompletion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	debugMode   bool
	stateDir    string
}

// Opts holds configuration for the client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	DebugMode   bool
	StateDir    string
}

// Option configures a Client.
type Option func(*Opts)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithTimeout bounds every API call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithDebug writes every request/response pair under stateDir/debug.
func WithDebug(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = true
		o.StateDir = stateDir
	}
}

// NewClient initializes a new GenAI client. The API key is taken from options
// or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model, "temperature", cfg.Temperature, "max_tokens", cfg.MaxTokens, "debug", cfg.DebugMode)
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// GeneratePromptWithContext generates a reply from a system and a user prompt.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}
	return c.complete(ctx, "GeneratePromptWithContext", messages)
}

// GenerateWithMessages generates a reply from a full message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.complete(ctx, "GenerateWithMessages", messages)
}

func (c *Client) complete(ctx context.Context, method string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI."+method+": API call failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	c.writeDebugLog(method, params, resp)

	if len(resp.Choices) == 0 {
		slog.Warn("GenAI."+method+": no choices returned", "model", c.model)
		return "", ErrNoChoicesReturned
	}
	slog.Debug("GenAI."+method+": completion received", "model", c.model, "duration", time.Since(start), "messages", len(messages))
	return resp.Choices[0].Message.Content, nil
}

// debugLogEntry is the on-disk shape of one debug record.
type debugLogEntry struct {
	Timestamp string                         `json:"timestamp"`
	Method    string                         `json:"method"`
	Model     string                         `json:"model"`
	Params    openai.ChatCompletionNewParams `json:"params"`
	Response  openai.ChatCompletion          `json:"response"`
}

func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("GenAI.writeDebugLog: failed to create debug dir", "dir", dir, "error", err)
		return
	}
	now := time.Now().UTC()
	entry := debugLogEntry{
		Timestamp: now.Format(time.RFC3339Nano),
		Method:    method,
		Model:     c.model,
		Params:    params,
		Response:  resp,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI.writeDebugLog: marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		slog.Warn("GenAI.writeDebugLog: write failed", "error", err)
	}
}
