// Package llm provides the provider abstraction used by deriver, mutator and
// profile extraction to talk to an underlying language model, independent of
// vendor.
package llm

import (
	"context"
	"fmt"
	"sync"

	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Message is one turn in a chat-style conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role names the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TokenUsage reports token accounting for a single generation, when the
// provider exposes it.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateResponse is the result of a single-turn Generate call.
type GenerateResponse struct {
	Content    string
	TokenUsage *TokenUsage
}

// ChatProvider performs conversational generation.
type ChatProvider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Generate(ctx context.Context, prompt string, systemPrompt string) (*GenerateResponse, error)
	Name() string
}

// Factory builds a ChatProvider from a loosely typed configuration map, the
// shape produced by unmarshalling provider-specific viper sub-trees.
type Factory func(config map[string]any) (ChatProvider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named provider factory. Provider packages call this from
// an init func so importing them for side effect is enough to make them
// available to New.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named provider from config.
func New(name string, config map[string]any) (ChatProvider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown llm provider: %s", name))
	}
	return factory(config)
}

// List returns every registered provider name.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
