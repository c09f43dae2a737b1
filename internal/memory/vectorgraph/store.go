// Package vectorgraph defines the vector+graph storage contract used by
// declarative memory and its concrete backends.
package vectorgraph

import (
	"context"
	"time"

	"github.com/kart-io/agentmem/internal/memory/model"
)

// Direction orders a directional search or edge traversal.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// EdgeDirection selects which end of an edge to traverse from.
type EdgeDirection string

const (
	Outgoing EdgeDirection = "out"
	Incoming EdgeDirection = "in"
)

// Node is a stored vertex: a label set plus flattened properties.
//
// Properties holds both filterable keys (unmangled at this layer — mangling
// into "filterable.<key>" is an on-disk concern of each backend) and a
// "user_metadata" entry carrying the opaque JSON blob.
type Node struct {
	ID         string
	Labels     []string
	Properties model.FilterableProperties
	Metadata   map[string]any
	Embedding  []float32
	Timestamp  time.Time
}

// Scored pairs a Node with a similarity score.
type Scored struct {
	Node       Node
	Similarity float64
}

// Store is the uniform contract over a backing vector+graph database.
//
// All operations fail with errors.ErrStoreUnavailable on transport loss,
// errors.ErrStoreConstraintViolation on uniqueness breaches, and
// errors.ErrStoreNotFound on a missing ID.
type Store interface {
	// AddNode persists a new node and returns its generated UUID.
	AddNode(ctx context.Context, labels []string, properties model.FilterableProperties, metadata map[string]any, embedding []float32, timestamp time.Time) (string, error)

	// AddEdge adds a directed, labeled edge between two existing nodes.
	AddEdge(ctx context.Context, fromID, label, toID string, properties map[string]any) error

	// SetNodeProperty updates a single filterable property on an existing
	// node in place. Used by declarative memory to flip derivations_complete
	// once the derivation pipeline finishes for an episode.
	SetNodeProperty(ctx context.Context, nodeID string, key string, value any) error

	// SearchSimilarNodes returns nodes matching labels and required properties
	// exactly, ordered by similarity under the store's configured metric
	// (ties broken by newer timestamp first), limited to limit results.
	SearchSimilarNodes(ctx context.Context, queryEmbedding []float32, labels []string, required model.FilterableProperties, limit int) ([]Scored, error)

	// SearchDirectionalNodes returns nodes matching labels and required
	// properties exactly, strictly ordered by orderBy in direction dir.
	// startAt, if non-nil, is an exclusive cursor on orderBy.
	SearchDirectionalNodes(ctx context.Context, labels []string, required model.FilterableProperties, orderBy string, dir Direction, startAt any, limit int) ([]Node, error)

	// TraverseEdges returns the nodes reachable from fromID across edges
	// labeled edgeLabel, in direction dir.
	TraverseEdges(ctx context.Context, fromID, edgeLabel string, dir EdgeDirection) ([]Node, error)

	// DeleteSubgraph cascades a delete of every node (and its edges) whose
	// properties match required exactly.
	DeleteSubgraph(ctx context.Context, required model.FilterableProperties) error

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error

	// Close releases underlying resources. Idempotent.
	Close() error
}

// SimilarityMetric names the distance function a Store orders
// SearchSimilarNodes results by.
type SimilarityMetric string

const (
	MetricCosine    SimilarityMetric = "cosine"
	MetricDot       SimilarityMetric = "dot"
	MetricEuclidean SimilarityMetric = "euclidean"
	MetricManhattan SimilarityMetric = "manhattan"
)
