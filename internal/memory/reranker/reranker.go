// Package reranker provides the family of scorers that map a (query,
// candidate strings) pair to per-candidate relevance scores: BM25,
// cross-encoder, embedder-similarity, identity, and an RRF hybrid combiner.
package reranker

import (
	"context"
	"fmt"
	"sync"

	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Reranker scores candidates against a query. Implementations must return a
// slice the same length as candidates, and must return an empty slice for an
// empty candidates input.
type Reranker interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
	Name() string
}

// Factory builds a Reranker from a loosely typed configuration map. Hybrid
// rerankers receive resolve to look up already-built sub-rerankers by id.
type Factory func(config map[string]any, resolve func(id string) (Reranker, error)) (Reranker, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named reranker factory. Variant packages call this from an
// init func so importing them for side effect is enough to make them
// available to New.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named reranker from config.
func New(name string, config map[string]any, resolve func(id string) (Reranker, error)) (Reranker, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown reranker: %s", name))
	}
	return factory(config, resolve)
}
