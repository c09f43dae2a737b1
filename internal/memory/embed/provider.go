// Package embed provides the embedding-provider abstraction used by
// derivative ingestion and similarity search, independent of vendor, plus a
// Redis-backed cache for providers whose calls are expensive or rate-limited.
package embed

import (
	"context"
	"fmt"
	"sync"

	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Provider generates vector embeddings for text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Factory builds a Provider from a loosely typed configuration map.
type Factory func(config map[string]any) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named provider factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named provider from config.
func New(name string, config map[string]any) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown embedding provider: %s", name))
	}
	return factory(config)
}
