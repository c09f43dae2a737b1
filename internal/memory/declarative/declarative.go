// Package declarative is the central orchestrator of the memory engine: it
// wires the deriver, mutator, postulator and reranker families together with
// an embedding provider and a vector-graph store to implement ingest, query
// and delete over episodic memory.
package declarative

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/agentmem/internal/memory/deriver"
	"github.com/kart-io/agentmem/internal/memory/embed"
	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/mutator"
	"github.com/kart-io/agentmem/internal/memory/postulator"
	"github.com/kart-io/agentmem/internal/memory/reranker"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	"github.com/kart-io/agentmem/internal/metrics"
	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/kart-io/agentmem/pkg/id"
)

// Config wires the concrete variants declarative memory drives. All fields
// are required except CandidateFanout, which defaults to 4, and Metrics.
type Config struct {
	Store      vectorgraph.Store
	Embedder   embed.Provider
	Deriver    deriver.Deriver
	Mutator    mutator.Mutator
	Postulator postulator.Postulator
	Reranker   reranker.Reranker

	// CandidateFanout multiplies Query's limit to obtain the
	// search_similar_nodes over-fetch size (typically 3-5x). Defaults to 4.
	CandidateFanout int

	// Metrics receives ingest/query latency and fallback counts. Optional;
	// a nil factory records nothing.
	Metrics *metrics.Factory
}

// Memory is the declarative memory orchestrator.
type Memory struct {
	store      vectorgraph.Store
	embedder   embed.Provider
	deriver    deriver.Deriver
	mutator    mutator.Mutator
	postulator postulator.Postulator
	reranker   reranker.Reranker
	fanout     int
	metrics    *metrics.Factory
}

// New validates cfg and builds a Memory.
func New(cfg Config) (*Memory, error) {
	switch {
	case cfg.Store == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("declarative memory: store is required")
	case cfg.Embedder == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("declarative memory: embedder is required")
	case cfg.Deriver == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("declarative memory: deriver is required")
	case cfg.Mutator == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("declarative memory: mutator is required")
	case cfg.Postulator == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("declarative memory: postulator is required")
	case cfg.Reranker == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("declarative memory: reranker is required")
	}
	fanout := cfg.CandidateFanout
	if fanout <= 0 {
		fanout = 4
	}
	return &Memory{
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		deriver:    cfg.Deriver,
		mutator:    cfg.Mutator,
		postulator: cfg.Postulator,
		reranker:   cfg.Reranker,
		fanout:     fanout,
		metrics:    cfg.Metrics,
	}, nil
}

// scopeLabel compresses a scope filter into the low-cardinality attribute
// value latency metrics are tagged with.
func scopeLabel(props model.FilterableProperties) string {
	group, _ := props["group_id"].(string)
	session, _ := props["session_id"].(string)
	if group == "" && session == "" {
		return "unscoped"
	}
	return group + "/" + session
}

// Ingest runs the ingest pipeline: it persists the episode, links related
// episodes, derives, mutates, embeds, and persists derivatives with their
// edges. A failure after the episode is persisted leaves the
// episode node's derivations_complete flag false for the replay sweeper to
// finish later — Ingest itself never rolls the episode node back.
func (m *Memory) Ingest(ctx context.Context, episode *model.Episode) (string, error) {
	start := time.Now()
	defer func() {
		m.metrics.RecordIngestLatency(ctx, time.Since(start), scopeLabel(episode.FilterableProperties))
	}()

	var embedding []float32
	if episode.ContentType == "" {
		episode.ContentType = model.ContentTypeString
	}
	if episode.ContentType == model.ContentTypeString && episode.Content != "" {
		vec, err := m.embedder.EmbedSingle(ctx, episode.Content)
		if err != nil {
			return "", memerr.FromExternal(err)
		}
		embedding = vec
	}

	labels, props, meta := vectorgraph.NodeFromEpisode(episode, embedding)
	nodeID, err := m.store.AddNode(ctx, labels, props, meta, embedding, timestampOrNow(episode.Timestamp))
	if err != nil {
		return "", err
	}
	episode.ID = nodeID

	if err := m.deriveAndPersist(ctx, episode); err != nil {
		logger.Warnw("ingest: derivation pipeline failed, episode left for replay", "episode_id", nodeID, "error", err.Error())
		return nodeID, nil
	}
	return nodeID, nil
}

// deriveAndPersist runs steps 2-6 of ingest (or a sweeper replay) for an
// already-persisted episode. On success it flips derivations_complete.
func (m *Memory) deriveAndPersist(ctx context.Context, episode *model.Episode) error {
	related, err := m.postulator.Postulate(ctx, episode)
	if err != nil {
		return fmt.Errorf("postulate: %w", err)
	}

	members := append(append([]*model.Episode{}, related...), episode)
	cluster := model.NewEpisodeCluster(id.NewUUID(), members)

	seeds, err := m.deriver.Derive(ctx, cluster)
	if err != nil {
		return fmt.Errorf("derive: %w", err)
	}

	final := make([]*model.Derivative, 0, len(seeds))
	for _, seed := range seeds {
		mutated, err := m.mutator.Mutate(ctx, seed, cluster)
		if err != nil {
			return fmt.Errorf("mutate: %w", err)
		}
		final = append(final, mutated...)
	}

	if len(final) > 0 {
		contents := make([]string, len(final))
		for i, d := range final {
			contents[i] = d.Content
		}
		embeddings, err := m.embedder.Embed(ctx, contents)
		if err != nil {
			return fmt.Errorf("embed derivatives: %w", err)
		}
		if len(embeddings) != len(final) {
			return memerr.ErrInternal.WithMessage("embedder returned mismatched result length")
		}

		for i, derivative := range final {
			derivative.Embedding = embeddings[i]
			labels, props, meta := vectorgraph.NodeFromDerivative(derivative)
			derivativeID, err := m.store.AddNode(ctx, labels, props, meta, derivative.Embedding, timestampOrNow(derivative.Timestamp))
			if err != nil {
				return fmt.Errorf("persist derivative: %w", err)
			}
			derivative.ID = derivativeID

			for _, member := range members {
				if err := m.store.AddEdge(ctx, derivativeID, vectorgraph.EdgeDerivedFrom, member.ID, nil); err != nil {
					return fmt.Errorf("link derivative to cluster member: %w", err)
				}
			}
		}
	}

	for _, prior := range related {
		if err := m.store.AddEdge(ctx, episode.ID, vectorgraph.EdgeFollows, prior.ID, nil); err != nil {
			return fmt.Errorf("link follows edge: %w", err)
		}
	}

	return m.markDerivationsComplete(ctx, episode)
}

// markDerivationsComplete flips the persisted episode node's
// derivations_complete flag once steps 2-6 have succeeded, so the replay
// sweeper's search_directional_nodes scan stops selecting it.
func (m *Memory) markDerivationsComplete(ctx context.Context, episode *model.Episode) error {
	if err := m.store.SetNodeProperty(ctx, episode.ID, vectorgraph.DerivationsCompleteProperty, true); err != nil {
		return fmt.Errorf("mark derivations complete: %w", err)
	}
	episode.DerivationsComplete = true
	return nil
}

// Result is one ranked hit from Query: a derivative plus its source episode
// and the score it was ranked by.
type Result struct {
	Derivative *model.Derivative
	Episode    *model.Episode
	Score      float64
}

// QueryResponse is the outcome of Query: ranked results, a deduplicated list
// of their source episodes, plus a degraded flag set when the reranker
// failed and raw similarity order was used instead.
type QueryResponse struct {
	Results        []Result
	SourceEpisodes []*model.Episode
	Degraded       bool
}

// Query embeds queryText, over-fetches similar Derivative nodes scoped by
// scopeFilter, traverses DERIVED_FROM back to source episodes, reranks, and
// returns the top limit results.
func (m *Memory) Query(ctx context.Context, queryText string, scopeFilter model.FilterableProperties, limit int) (*QueryResponse, error) {
	start := time.Now()
	defer func() {
		m.metrics.RecordQueryLatency(ctx, time.Since(start), scopeLabel(scopeFilter))
	}()

	if limit <= 0 {
		limit = 10
	}

	queryEmbedding, err := m.embedder.EmbedSingle(ctx, queryText)
	if err != nil {
		logger.Warnw("query: embedding failed, returning degraded empty result", "error", err.Error())
		return nil, memerr.ErrQueryDegraded.WithCause(err)
	}

	candidateLimit := limit * m.fanout
	scored, err := m.store.SearchSimilarNodes(ctx, queryEmbedding, []string{vectorgraph.LabelDerivative}, scopeFilter, candidateLimit)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return &QueryResponse{Results: nil}, nil
	}

	derivatives := make([]*model.Derivative, len(scored))
	contents := make([]string, len(scored))
	for i, s := range scored {
		derivatives[i] = vectorgraph.DerivativeFromNode(s.Node)
		contents[i] = derivatives[i].Content
	}

	sourceEpisodes := make([][]*model.Episode, len(scored))
	for i, s := range scored {
		nodes, err := m.store.TraverseEdges(ctx, s.Node.ID, vectorgraph.EdgeDerivedFrom, vectorgraph.Outgoing)
		if err != nil {
			return nil, err
		}
		eps := make([]*model.Episode, 0, len(nodes))
		for _, n := range nodes {
			eps = append(eps, vectorgraph.EpisodeFromNode(n))
		}
		sourceEpisodes[i] = eps
	}

	scores := make([]float64, len(scored))
	degraded := false
	rerankScores, err := m.reranker.Score(ctx, queryText, contents)
	if err != nil || len(rerankScores) != len(scored) {
		logger.Warnw("query: reranker failed, falling back to raw similarity order", "error", errString(err))
		m.metrics.RecordRerankerFallback(ctx)
		degraded = true
		for i, s := range scored {
			scores[i] = s.Similarity
		}
	} else {
		scores = rerankScores
	}

	results := make([]Result, len(scored))
	for i := range scored {
		results[i] = Result{Derivative: derivatives[i], Score: scores[i]}
		if len(sourceEpisodes[i]) > 0 {
			results[i].Episode = sourceEpisodes[i][0]
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		ta, tb := results[a].Derivative.Timestamp, results[b].Derivative.Timestamp
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return results[a].Derivative.ID < results[b].Derivative.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	seen := map[string]bool{}
	var dedupedEpisodes []*model.Episode
	for _, r := range results {
		if r.Episode == nil || seen[r.Episode.ID] {
			continue
		}
		seen[r.Episode.ID] = true
		dedupedEpisodes = append(dedupedEpisodes, r.Episode)
	}

	return &QueryResponse{Results: results, SourceEpisodes: dedupedEpisodes, Degraded: degraded}, nil
}

// DeleteData removes every Episode and Derivative node (and edges) matching
// scope exactly.
func (m *Memory) DeleteData(ctx context.Context, scope model.FilterableProperties) error {
	return m.store.DeleteSubgraph(ctx, scope)
}

// Close releases the underlying store.
func (m *Memory) Close() error {
	return m.store.Close()
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func errString(err error) string {
	if err == nil {
		return "reranker returned mismatched result length"
	}
	return err.Error()
}
