package vectorgraph

import (
	"github.com/kart-io/agentmem/internal/memory/model"
)

// Node labels used across the store by declarative memory.
const (
	LabelEpisode    = "Episode"
	LabelDerivative = "Derivative"
)

// Edge labels used across the store by declarative memory.
const (
	EdgeDerivedFrom = "DERIVED_FROM"
	EdgeFollows     = "FOLLOWS"
)

// DerivationsCompleteProperty is the filterable boolean property marking an
// Episode node whose derivation pipeline (steps 2-6 of ingest) has fully run
// — the explicit flag the replay sweeper uses instead of relying on implicit
// presence of derived nodes.
const DerivationsCompleteProperty = "derivations_complete"

// NodeFromEpisode projects an Episode onto the Node shape persisted for the
// "Episode" label. The node's Properties carry a copy of the episode's
// filterable properties plus the derivations_complete flag.
func NodeFromEpisode(ep *model.Episode, embedding []float32) (labels []string, properties model.FilterableProperties, metadata map[string]any) {
	props := ep.FilterableProperties.Clone()
	if props == nil {
		props = model.FilterableProperties{}
	}
	props[DerivationsCompleteProperty] = ep.DerivationsComplete
	props["episode_type"] = ep.EpisodeType
	props["content_type"] = string(ep.ContentType)
	props["producer_id"] = ep.ProducerID
	props["content"] = ep.Content

	return []string{LabelEpisode}, props, ep.UserMetadata
}

// EpisodeFromNode reconstructs an Episode from a persisted Node. Keys
// promoted into Properties by NodeFromEpisode (episode_type, content_type,
// producer_id, content, derivations_complete) are split back out of the
// filterable map; any caller-supplied filterable properties remain.
func EpisodeFromNode(n Node) *model.Episode {
	props := n.Properties.Clone()

	ep := &model.Episode{
		ID:           n.ID,
		Timestamp:    n.Timestamp,
		UserMetadata: n.Metadata,
		ContentType:  model.ContentTypeString,
	}
	if v, ok := props["episode_type"].(string); ok {
		ep.EpisodeType = v
		delete(props, "episode_type")
	}
	if v, ok := props["content_type"].(string); ok {
		ep.ContentType = model.ContentType(v)
		delete(props, "content_type")
	}
	if v, ok := props["producer_id"].(string); ok {
		ep.ProducerID = v
		delete(props, "producer_id")
	}
	if v, ok := props["content"].(string); ok {
		ep.Content = v
		delete(props, "content")
	}
	if v, ok := props[DerivationsCompleteProperty].(bool); ok {
		ep.DerivationsComplete = v
		delete(props, DerivationsCompleteProperty)
	}
	ep.FilterableProperties = props
	return ep
}

// NodeFromDerivative projects a Derivative onto the Node shape persisted for
// the "Derivative" label.
func NodeFromDerivative(d *model.Derivative) (labels []string, properties model.FilterableProperties, metadata map[string]any) {
	props := d.FilterableProperties.Clone()
	if props == nil {
		props = model.FilterableProperties{}
	}
	props["derivative_type"] = d.DerivativeType
	props["content_type"] = string(d.ContentType)
	props["content"] = d.Content
	props["cluster_id"] = d.ClusterID

	return []string{LabelDerivative}, props, d.UserMetadata
}

// DerivativeFromNode reconstructs a Derivative from a persisted Node and its
// similarity score.
func DerivativeFromNode(n Node) *model.Derivative {
	props := n.Properties.Clone()

	d := &model.Derivative{
		ID:           n.ID,
		Timestamp:    n.Timestamp,
		UserMetadata: n.Metadata,
		Embedding:    n.Embedding,
		ContentType:  model.ContentTypeString,
	}
	if v, ok := props["derivative_type"].(string); ok {
		d.DerivativeType = v
		delete(props, "derivative_type")
	}
	if v, ok := props["content_type"].(string); ok {
		d.ContentType = model.ContentType(v)
		delete(props, "content_type")
	}
	if v, ok := props["content"].(string); ok {
		d.Content = v
		delete(props, "content")
	}
	if v, ok := props["cluster_id"].(string); ok {
		d.ClusterID = v
		delete(props, "cluster_id")
	}
	d.FilterableProperties = props
	return d
}
