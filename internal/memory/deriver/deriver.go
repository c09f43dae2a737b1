// Package deriver transforms an episode cluster into zero-or-more derivative
// seeds: identity, concatenation, sentence-split, and language-model summary
// variants.
package deriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Deriver derives a list of derivative seeds from an episode cluster. Seeds
// carry content, derivative_type, content_type, filterable_properties and
// user_metadata, but no embedding and no persisted ID yet — that happens in
// declarative memory's ingest pipeline.
type Deriver interface {
	Derive(ctx context.Context, cluster *model.EpisodeCluster) ([]*model.Derivative, error)
	Name() string
}

// Factory builds a Deriver from a loosely typed configuration map.
type Factory func(config map[string]any) (Deriver, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named deriver factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named deriver from config.
func New(name string, config map[string]any) (Deriver, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown deriver: %s", name))
	}
	return factory(config)
}
