// Package postulator picks prior episodes in the same scope to link to a new
// episode: null (no links) and previous-N (the N most recent prior episodes
// sharing a configured scope subset).
package postulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Postulator proposes prior episodes to link to a newly ingested episode.
type Postulator interface {
	Postulate(ctx context.Context, episode *model.Episode) ([]*model.Episode, error)
	Name() string
}

// Factory builds a Postulator from a loosely typed configuration map.
type Factory func(config map[string]any) (Postulator, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named postulator factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named postulator from config.
func New(name string, config map[string]any) (Postulator, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown postulator: %s", name))
	}
	return factory(config)
}
