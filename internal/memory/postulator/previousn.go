package postulator

import (
	"context"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// PreviousNName identifies the previous-N postulator in the registry.
const PreviousNName = "previous_n"

func init() {
	Register(PreviousNName, func(config map[string]any) (Postulator, error) {
		store, _ := config["store"].(vectorgraph.Store)
		if store == nil {
			return nil, memerr.ErrInvalidConfig.WithMessage("previous_n: store is required")
		}
		n, _ := config["n"].(int)
		if n <= 0 {
			n = 5
		}
		var scopeKeys []string
		if v, ok := config["scope_keys"].([]string); ok {
			scopeKeys = v
		}
		return NewPreviousN(store, n, scopeKeys), nil
	})
}

// PreviousN selects the N most recent episodes with a strictly earlier
// timestamp than the new episode, scoped to a configurable subset of the new
// episode's filterable properties (e.g. same user_id). Ties at equal
// timestamps break by UUID lexicographic ascending order, matching the
// store's own directional-search tie-break, so repeated calls over the same
// data are deterministic.
type PreviousN struct {
	store     vectorgraph.Store
	n         int
	scopeKeys []string
}

// NewPreviousN builds a PreviousN postulator. scopeKeys selects which of the
// episode's filterable properties must match for a prior episode to be
// eligible; a nil/empty scopeKeys matches on no property (global recency).
func NewPreviousN(store vectorgraph.Store, n int, scopeKeys []string) *PreviousN {
	return &PreviousN{store: store, n: n, scopeKeys: scopeKeys}
}

// Postulate implements Postulator.
func (p *PreviousN) Postulate(ctx context.Context, episode *model.Episode) ([]*model.Episode, error) {
	required := model.FilterableProperties{}
	for _, key := range p.scopeKeys {
		if v, ok := episode.FilterableProperties[key]; ok {
			required[key] = v
		}
	}

	nodes, err := p.store.SearchDirectionalNodes(ctx, []string{vectorgraph.LabelEpisode}, required, "timestamp", vectorgraph.Descending, episode.Timestamp, p.n)
	if err != nil {
		return nil, err
	}

	episodes := make([]*model.Episode, 0, len(nodes))
	for _, n := range nodes {
		episodes = append(episodes, vectorgraph.EpisodeFromNode(n))
	}
	return episodes, nil
}

// Name returns the postulator's registry name.
func (p *PreviousN) Name() string { return PreviousNName }
