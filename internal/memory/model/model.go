// Package model defines the data types shared across the memory engine:
// episodes, clusters, derivatives, and the scope filter used to partition
// reads and writes.
package model

import "time"

// ContentType classifies the payload carried by an Episode or Derivative.
type ContentType string

const (
	ContentTypeString ContentType = "STRING"
	ContentTypeImage  ContentType = "IMAGE"
	ContentTypeAudio  ContentType = "AUDIO"
	ContentTypeVideo  ContentType = "VIDEO"
	ContentTypeOther  ContentType = "OTHER"
)

// FilterableProperties is a flat map of scalar values used as equality
// predicates at query time. Keys are stored under the mangled
// "filterable.<key>" namespace at the storage boundary (see vectorgraph).
type FilterableProperties map[string]any

// Clone returns a shallow copy.
func (p FilterableProperties) Clone() FilterableProperties {
	if p == nil {
		return nil
	}
	out := make(FilterableProperties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Intersect returns the subset of key/value pairs present and identical
// (by ==) across all of props. Used to compute an EpisodeCluster's shared
// filterable_properties.
func Intersect(props ...FilterableProperties) FilterableProperties {
	if len(props) == 0 {
		return FilterableProperties{}
	}
	out := props[0].Clone()
	for _, p := range props[1:] {
		for k, v := range out {
			other, ok := p[k]
			if !ok || other != v {
				delete(out, k)
			}
		}
	}
	return out
}

// Union returns the union of keys across props, preferring the last value
// seen for a repeated key. Used to validate that a derivative's
// filterable_properties stay within the cluster's member union.
func Union(props ...FilterableProperties) FilterableProperties {
	out := FilterableProperties{}
	for _, p := range props {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// Subset reports whether sub's keys/values are all present and equal in sup.
func Subset(sub, sup FilterableProperties) bool {
	for k, v := range sub {
		if other, ok := sup[k]; !ok || other != v {
			return false
		}
	}
	return true
}

// Episode is the atomic, immutable unit of ingested conversation.
type Episode struct {
	ID                   string
	EpisodeType          string
	ContentType          ContentType
	Content              string
	Timestamp            time.Time
	ProducerID           string
	FilterableProperties FilterableProperties
	UserMetadata         map[string]any
	DerivationsComplete  bool
}

// EpisodeCluster groups episodes treated as one derivation unit.
type EpisodeCluster struct {
	ID                   string
	Episodes             []*Episode
	FilterableProperties FilterableProperties
	UserMetadata         map[string]any
}

// NewEpisodeCluster builds a cluster from episodes (must be non-empty),
// computing shared filterable properties by intersection.
func NewEpisodeCluster(id string, episodes []*Episode) *EpisodeCluster {
	props := make([]FilterableProperties, len(episodes))
	for i, e := range episodes {
		props[i] = e.FilterableProperties
	}
	return &EpisodeCluster{
		ID:                   id,
		Episodes:             episodes,
		FilterableProperties: Intersect(props...),
	}
}

// Derivative is a derived searchable artifact linked back to its source cluster.
type Derivative struct {
	ID                   string
	DerivativeType       string
	ContentType          ContentType
	Content              string
	Timestamp            time.Time
	FilterableProperties FilterableProperties
	UserMetadata         map[string]any
	Embedding            []float32
	ClusterID            string
}

// Scope identifies the (group, session, participants) tuple used to filter
// all reads and as the primary key for session registry rows.
type Scope struct {
	GroupID   string
	SessionID string
	UserIDs   []string
	AgentIDs  []string
}

// AsFilterableProperties projects the scope onto the filter predicate used
// against the vector-graph store.
func (s Scope) AsFilterableProperties() FilterableProperties {
	return FilterableProperties{
		"group_id":   s.GroupID,
		"session_id": s.SessionID,
	}
}
