package mutator

import (
	"context"

	"github.com/kart-io/agentmem/internal/memory/model"
)

// IdentityName identifies the identity mutator in the registry.
const IdentityName = "identity"

func init() {
	Register(IdentityName, func(_ map[string]any) (Mutator, error) {
		return &Identity{}, nil
	})
}

// Identity passes the derivative through unchanged.
type Identity struct{}

// Mutate implements Mutator.
func (m *Identity) Mutate(_ context.Context, derivative *model.Derivative, _ *model.EpisodeCluster) ([]*model.Derivative, error) {
	return []*model.Derivative{derivative}, nil
}

// Name returns the mutator's registry name.
func (m *Identity) Name() string { return IdentityName }
