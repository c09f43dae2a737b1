// Package llm configures the language-model and embedding providers the
// memory engine drives (chat generation, profile extraction, derivative
// embedding).
package llm

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/agentmem/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions selects and configures one model provider. The same shape
// serves both the chat and embedding roles; Model names whichever model the
// role uses.
type ProviderOptions struct {
	// Provider is the registry name ("ollama" or "openai").
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the provider's API endpoint.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey authenticates against providers that require one (openai).
	APIKey string `json:"api-key" mapstructure:"api-key"`

	// Model is the model name requested from the provider.
	Model string `json:"model" mapstructure:"model"`

	// Timeout bounds each provider round trip.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries caps retry attempts on 5xx/transport errors.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization is the optional OpenAI organization header.
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions returns local-Ollama defaults with no model selected.
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// NewEmbeddingOptions returns defaults for the embedding role.
func NewEmbeddingOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "nomic-embed-text"
	return opts
}

// NewChatOptions returns defaults for the chat-generation role.
func NewChatOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "llama3"
	return opts
}

// ToConfigMap projects the options onto the loosely typed config map the
// provider registries' factories consume. Both model keys are populated;
// each factory reads the one for its role.
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags registers the provider flags on fs under prefixes.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	join := options.Join(prefixes...)
	fs.StringVar(&o.Provider, join+"provider", o.Provider, "Model provider (ollama, openai).")
	fs.StringVar(&o.BaseURL, join+"base-url", o.BaseURL, "Provider API base URL.")
	fs.StringVar(&o.APIKey, join+"api-key", o.APIKey, "Provider API key.")
	fs.StringVar(&o.Model, join+"model", o.Model, "Model name.")
	fs.DurationVar(&o.Timeout, join+"timeout", o.Timeout, "Provider request timeout.")
	fs.IntVar(&o.MaxRetries, join+"max-retries", o.MaxRetries, "Maximum retries per request.")
	fs.StringVar(&o.Organization, join+"organization", o.Organization, "OpenAI organization ID (optional).")
}

// Validate checks the populated options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for openai provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}

// Complete fills defaults for fields left zero by flags/config.
func (o *ProviderOptions) Complete() error {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return nil
}
