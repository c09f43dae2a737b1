package declarative_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/declarative"
	"github.com/kart-io/agentmem/internal/memory/deriver"
	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/mutator"
	"github.com/kart-io/agentmem/internal/memory/postulator"
	"github.com/kart-io/agentmem/internal/memory/reranker"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

const testDim = 32

// charHistogramEmbedder is a deterministic stand-in for a real embedding
// provider: identical text always maps to the identical vector, so an
// ingest-then-query-the-same-content test retrieves its own derivative at
// rank 1 without depending on any external model.
type charHistogramEmbedder struct{}

func (e *charHistogramEmbedder) vector(text string) []float32 {
	v := make([]float32, testDim)
	for _, r := range text {
		v[int(r)%testDim]++
	}
	return v
}

func (e *charHistogramEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *charHistogramEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *charHistogramEmbedder) Name() string { return "char-histogram-stub" }

type failingEmbedder struct{}

func (e *failingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embed failed")
}
func (e *failingEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embed failed")
}
func (e *failingEmbedder) Name() string { return "failing-stub" }

type failingReranker struct{}

func (r *failingReranker) Score(_ context.Context, _ string, _ []string) ([]float64, error) {
	return nil, errors.New("reranker failed")
}
func (r *failingReranker) Name() string { return "failing-stub" }

func newTestMemory(t *testing.T, rr reranker.Reranker) (*declarative.Memory, vectorgraph.Store) {
	t.Helper()
	store, err := vectorgraph.NewSQLiteStore(vectorgraph.SQLiteConfig{Path: ":memory:", Dimension: testDim})
	require.NoError(t, err)

	if rr == nil {
		rr = &reranker.Identity{}
	}

	mem, err := declarative.New(declarative.Config{
		Store:      store,
		Embedder:   &charHistogramEmbedder{},
		Deriver:    &deriver.Identity{},
		Mutator:    &mutator.Identity{},
		Postulator: &postulator.Null{},
		Reranker:   rr,
	})
	require.NoError(t, err)
	return mem, store
}

func TestIngestThenQueryRetrievesExactMatchAtRankOne(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemory(t, reranker.NewEmbedderSimilarity(&charHistogramEmbedder{}, vectorgraph.MetricCosine))

	_, err := mem.Ingest(ctx, &model.Episode{
		Content:              "the quick brown fox jumps over the lazy dog",
		Timestamp:            time.Now(),
		FilterableProperties: model.FilterableProperties{"group_id": "g1"},
	})
	require.NoError(t, err)

	_, err = mem.Ingest(ctx, &model.Episode{
		Content:              "a completely unrelated sentence about weather",
		Timestamp:            time.Now(),
		FilterableProperties: model.FilterableProperties{"group_id": "g1"},
	})
	require.NoError(t, err)

	resp, err := mem.Query(ctx, "the quick brown fox jumps over the lazy dog", model.FilterableProperties{"group_id": "g1"}, 5)
	require.NoError(t, err)
	require.False(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "the quick brown fox jumps over the lazy dog", resp.Results[0].Derivative.Content)
}

func TestIngestMarksDerivationsCompleteOnSuccess(t *testing.T) {
	ctx := context.Background()
	mem, store := newTestMemory(t, nil)

	episodeID, err := mem.Ingest(ctx, &model.Episode{
		Content:   "hello world",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	nodes, err := store.SearchDirectionalNodes(ctx, []string{vectorgraph.LabelEpisode}, nil, "timestamp", vectorgraph.Descending, nil, 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, episodeID, nodes[0].ID)
	assert.Equal(t, true, nodes[0].Properties[vectorgraph.DerivationsCompleteProperty])
}

func TestQueryEmbeddingFailureReturnsQueryDegradedError(t *testing.T) {
	ctx := context.Background()
	store, err := vectorgraph.NewSQLiteStore(vectorgraph.SQLiteConfig{Path: ":memory:", Dimension: testDim})
	require.NoError(t, err)

	mem, err := declarative.New(declarative.Config{
		Store:      store,
		Embedder:   &failingEmbedder{},
		Deriver:    &deriver.Identity{},
		Mutator:    &mutator.Identity{},
		Postulator: &postulator.Null{},
		Reranker:   &reranker.Identity{},
	})
	require.NoError(t, err)

	_, err = mem.Query(ctx, "anything", nil, 5)
	require.Error(t, err)
	assert.True(t, memerr.IsKind(err, memerr.KindQueryDegraded))
}

func TestQueryDegradesToRawSimilarityWhenRerankerFails(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemory(t, &failingReranker{})

	_, err := mem.Ingest(ctx, &model.Episode{Content: "one fish two fish", Timestamp: time.Now()})
	require.NoError(t, err)

	resp, err := mem.Query(ctx, "one fish two fish", nil, 5)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)
}

func TestDeleteDataRemovesScopedSubgraph(t *testing.T) {
	ctx := context.Background()
	mem, store := newTestMemory(t, nil)

	_, err := mem.Ingest(ctx, &model.Episode{
		Content:              "scoped content",
		Timestamp:            time.Now(),
		FilterableProperties: model.FilterableProperties{"group_id": "to-delete"},
	})
	require.NoError(t, err)

	require.NoError(t, mem.DeleteData(ctx, model.FilterableProperties{"group_id": "to-delete"}))

	nodes, err := store.SearchDirectionalNodes(ctx, []string{vectorgraph.LabelEpisode}, model.FilterableProperties{"group_id": "to-delete"}, "timestamp", vectorgraph.Descending, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := declarative.New(declarative.Config{})
	require.Error(t, err)
}
