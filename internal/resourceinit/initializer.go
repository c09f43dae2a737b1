// Package resourceinit builds the memory engine's component graph from a
// flat map of named resource definitions. Each definition's type selects a
// registered Builder; the Initializer resolves dependencies between
// definitions, orders construction topologically, and instantiates every
// resource exactly once.
package resourceinit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// Definition names one resource to build: Type selects a Builder, Name picks
// a variant within that builder's family (e.g. type "embedder", name
// "ollama"), and Config carries variant-specific settings plus, for
// resources composed from others, the ids of those dependencies.
type Definition struct {
	Type   string
	Name   string
	Config map[string]any
}

// Builder knows how to build every variant of one resource type.
// DependencyIDs inspects name and config to report which other resource ids
// must already be built before Build runs; Build receives those ids' built
// instances in injections.
type Builder interface {
	DependencyIDs(name string, config map[string]any) []string
	Build(ctx context.Context, name string, config map[string]any, injections map[string]any) (any, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Builder)
)

// RegisterBuilder adds a builder for a resource type. Variant packages call
// this from an init func so importing them for side effect makes the type
// available to Initializer.Build.
func RegisterBuilder(resourceType string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[resourceType] = b
}

func lookupBuilder(resourceType string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[resourceType]
	return b, ok
}

// Initializer builds a set of resource Definitions into live instances.
type Initializer struct {
	// Cache pre-populates already-built resources (e.g. a resource the
	// caller constructed by hand) so definitions may depend on them without
	// redefining them.
	Cache map[string]any
}

// Result holds every built instance keyed by resource id, plus the order
// they were built in, so callers can tear them down in reverse.
type Result struct {
	Instances map[string]any
	Order     []string
}

// Build resolves dependencies, topologically sorts, and instantiates every
// definition in defs. On error no partial Result is returned: callers must
// not assume any builder ran.
func (init *Initializer) Build(ctx context.Context, defs map[string]Definition) (*Result, error) {
	builders := make(map[string]Builder, len(defs))
	deps := make(map[string][]string, len(defs))

	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		def := defs[id]
		b, ok := lookupBuilder(def.Type)
		if !ok {
			return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("resource %q: unknown type %q", id, def.Type))
		}
		builders[id] = b
		deps[id] = b.DependencyIDs(def.Name, def.Config)
	}

	for _, id := range ids {
		for _, dep := range deps[id] {
			if _, defined := defs[dep]; defined {
				continue
			}
			if _, cached := init.Cache[dep]; cached {
				continue
			}
			return nil, memerr.ErrUnresolvedDependency.WithMessage(fmt.Sprintf("resource %q depends on undefined resource %q", id, dep))
		}
	}

	order, err := topoSort(deps)
	if err != nil {
		return nil, err
	}

	instances := make(map[string]any, len(defs)+len(init.Cache))
	for id, v := range init.Cache {
		instances[id] = v
	}

	built := make([]string, 0, len(order))
	for _, id := range order {
		def := defs[id]
		injections := make(map[string]any, len(deps[id]))
		for _, dep := range deps[id] {
			injections[dep] = instances[dep]
		}
		instance, err := builders[id].Build(ctx, def.Name, def.Config, injections)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", id, err)
		}
		instances[id] = instance
		built = append(built, id)
	}

	return &Result{Instances: instances, Order: built}, nil
}

// Close tears down every instance in r.Order in reverse, calling Close on
// any instance that implements io.Closer. Errors are collected, not
// short-circuited, so one resource's teardown failure never blocks the
// rest's.
func (r *Result) Close() error {
	var errs []error
	for i := len(r.Order) - 1; i >= 0; i-- {
		id := r.Order[i]
		closer, ok := r.Instances[id].(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("resource %q: %w", id, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("resourceinit: %d resources failed to close: %w", len(errs), errs[0])
}

// topoSort runs Kahn's algorithm over deps (id -> ids it depends on),
// restricted to ids that are themselves keys of deps (anything else is a
// cache entry, already resolved, and is not a node in this graph). It
// returns ids ordered so every dependency precedes its dependent, breaking
// ties lexicographically for determinism.
func topoSort(deps map[string][]string) ([]string, error) {
	inDegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for id := range deps {
		inDegree[id] = 0
	}
	for id, ids := range deps {
		for _, dep := range ids {
			if _, ok := deps[dep]; !ok {
				continue
			}
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(deps))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(deps) {
		return nil, memerr.ErrCyclicDependency
	}
	return order, nil
}
