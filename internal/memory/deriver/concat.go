package deriver

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/pkg/id"
)

// ConcatenationName identifies the concatenation deriver in the registry.
const ConcatenationName = "concatenation"

func init() {
	Register(ConcatenationName, func(_ map[string]any) (Deriver, error) {
		return &Concatenation{}, nil
	})
}

// Concatenation emits a single derivative whose content is the newline-joined
// contents of every episode in the cluster, in cluster order.
type Concatenation struct{}

// Derive implements Deriver.
func (d *Concatenation) Derive(_ context.Context, cluster *model.EpisodeCluster) ([]*model.Derivative, error) {
	if len(cluster.Episodes) == 0 {
		return nil, nil
	}

	parts := make([]string, len(cluster.Episodes))
	for i, ep := range cluster.Episodes {
		parts[i] = ep.Content
	}

	latest := cluster.Episodes[0].Timestamp
	for _, ep := range cluster.Episodes[1:] {
		if ep.Timestamp.After(latest) {
			latest = ep.Timestamp
		}
	}

	return []*model.Derivative{{
		ID:                   id.NewUUID(),
		DerivativeType:       ConcatenationName,
		ContentType:          model.ContentTypeString,
		Content:              strings.Join(parts, "\n"),
		Timestamp:            timestampOrNow(latest),
		FilterableProperties: cluster.FilterableProperties.Clone(),
		UserMetadata:         cluster.UserMetadata,
		ClusterID:            cluster.ID,
	}}, nil
}

// Name returns the deriver's registry name.
func (d *Concatenation) Name() string { return ConcatenationName }

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
