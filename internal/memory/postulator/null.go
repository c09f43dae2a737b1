package postulator

import (
	"context"

	"github.com/kart-io/agentmem/internal/memory/model"
)

// NullName identifies the null postulator in the registry.
const NullName = "null"

func init() {
	Register(NullName, func(_ map[string]any) (Postulator, error) {
		return &Null{}, nil
	})
}

// Null never links a new episode to any prior one.
type Null struct{}

// Postulate implements Postulator.
func (p *Null) Postulate(_ context.Context, _ *model.Episode) ([]*model.Episode, error) {
	return nil, nil
}

// Name returns the postulator's registry name.
func (p *Null) Name() string { return NullName }
