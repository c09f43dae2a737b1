package deriver

import (
	"context"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/pkg/id"
)

// IdentityName identifies the identity deriver in the registry.
const IdentityName = "identity"

func init() {
	Register(IdentityName, func(_ map[string]any) (Deriver, error) {
		return &Identity{}, nil
	})
}

// Identity emits one derivative per episode in the cluster, copying content
// and filterable properties verbatim.
type Identity struct{}

// Derive implements Deriver.
func (d *Identity) Derive(_ context.Context, cluster *model.EpisodeCluster) ([]*model.Derivative, error) {
	out := make([]*model.Derivative, 0, len(cluster.Episodes))
	for _, ep := range cluster.Episodes {
		out = append(out, &model.Derivative{
			ID:                   id.NewUUID(),
			DerivativeType:       IdentityName,
			ContentType:          ep.ContentType,
			Content:              ep.Content,
			Timestamp:            ep.Timestamp,
			FilterableProperties: ep.FilterableProperties.Clone(),
			UserMetadata:         ep.UserMetadata,
			ClusterID:            cluster.ID,
		})
	}
	return out, nil
}

// Name returns the deriver's registry name.
func (d *Identity) Name() string { return IdentityName }
