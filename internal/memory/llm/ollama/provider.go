// Package ollama implements llm.ChatProvider against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/pkg/httpclient"
	"github.com/kart-io/agentmem/pkg/jsonutil"
)

// ProviderName identifies this provider in the llm registry.
const ProviderName = "ollama"

func init() {
	llm.Register(ProviderName, NewProvider)
}

// Config configures the Ollama provider.
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	ChatModel  string        `json:"chat_model" mapstructure:"chat_model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig returns Ollama's conventional local defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		ChatModel:  "llama3",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider talks to Ollama's /api/chat and /api/generate endpoints.
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider builds a Provider from a loosely typed config map.
func NewProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()
	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v > 0 {
		cfg.MaxRetries = v
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig builds a Provider from a structured Config.
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{config: cfg, client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries)}
}

// Name returns the provider's registry name.
func (p *Provider) Name() string { return ProviderName }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Chat sends a multi-turn conversation and returns the assistant's reply.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	chatMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	body, err := jsonutil.Marshal(chatRequest{Model: p.config.ChatModel, Messages: chatMessages, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp chatResponse
	if err := p.client.DoJSON(req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	System string `json:"system,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate produces a single-turn completion for prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (*llm.GenerateResponse, error) {
	body, err := jsonutil.Marshal(generateRequest{Model: p.config.ChatModel, Prompt: prompt, Stream: false, System: systemPrompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp generateResponse
	if err := p.client.DoJSON(req, &resp); err != nil {
		return nil, err
	}
	// Ollama's local models do not report token usage.
	return &llm.GenerateResponse{Content: resp.Response}, nil
}

// Ping checks that the Ollama server is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.DoRequest(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama unavailable, status %d", resp.StatusCode)
	}
	return nil
}
