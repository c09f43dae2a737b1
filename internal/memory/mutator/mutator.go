// Package mutator rewrites or annotates a derivative given its source
// cluster: identity, metadata-templated, and language-model rewrite variants.
package mutator

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Mutator rewrites a single derivative in the context of its source cluster,
// yielding one-or-more replacement derivatives.
type Mutator interface {
	Mutate(ctx context.Context, derivative *model.Derivative, cluster *model.EpisodeCluster) ([]*model.Derivative, error)
	Name() string
}

// Factory builds a Mutator from a loosely typed configuration map.
type Factory func(config map[string]any) (Mutator, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named mutator factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named mutator from config.
func New(name string, config map[string]any) (Mutator, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown mutator: %s", name))
	}
	return factory(config)
}
