package resourceinit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/declarative"
	"github.com/kart-io/agentmem/internal/memory/embed"
	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/resourceinit"
)

const testEmbedDim = 8

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = stubEmbedder{}.vector(t)
	}
	return out, nil
}

func (stubEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return stubEmbedder{}.vector(text), nil
}

func (stubEmbedder) vector(text string) []float32 {
	v := make([]float32, testEmbedDim)
	for _, r := range text {
		v[int(r)%testEmbedDim]++
	}
	return v
}

func (stubEmbedder) Name() string { return "stub" }

func init() {
	embed.Register("stub", func(map[string]any) (embed.Provider, error) {
		return stubEmbedder{}, nil
	})
}

// TestInitializerBuildsDeclarativeMemoryGraph wires every builder type an
// ingest/query round trip exercises: a sqlite vector-graph store, a stub
// embedder, the identity deriver/mutator, the null postulator, and the
// identity reranker, composed into a declarative_memory resource.
func TestInitializerBuildsDeclarativeMemoryGraph(t *testing.T) {
	defs := map[string]resourceinit.Definition{
		"store": {
			Type: "vector_graph_store", Name: "sqlite",
			Config: map[string]any{"path": ":memory:", "dimension": testEmbedDim, "metric": "cosine"},
		},
		"embedder": {
			Type: "embedder", Name: "stub", Config: map[string]any{},
		},
		"deriver": {
			Type: "derivative_deriver", Name: "identity", Config: map[string]any{},
		},
		"mutator": {
			Type: "derivative_mutator", Name: "identity", Config: map[string]any{},
		},
		"postulator": {
			Type: "related_episode_postulator", Name: "null", Config: map[string]any{},
		},
		"reranker": {
			Type: "reranker", Name: "identity", Config: map[string]any{},
		},
		"memory": {
			Type: "declarative_memory", Name: "",
			Config: map[string]any{
				"store": "store", "embedder": "embedder", "deriver": "deriver",
				"mutator": "mutator", "postulator": "postulator", "reranker": "reranker",
			},
		},
	}

	init := &resourceinit.Initializer{}
	result, err := init.Build(context.Background(), defs)
	require.NoError(t, err)
	defer result.Close()

	mem, ok := result.Instances["memory"].(*declarative.Memory)
	require.True(t, ok, "declarative_memory resource built the wrong type")

	_, err = mem.Ingest(context.Background(), &model.Episode{
		EpisodeType:          "message",
		ContentType:          model.ContentTypeString,
		Content:              "hello from the resource graph",
		Timestamp:            time.Now(),
		ProducerID:           "p1",
		FilterableProperties: model.FilterableProperties{"user_id": "u1"},
	})
	require.NoError(t, err)

	resp, err := mem.Query(context.Background(), "hello", model.FilterableProperties{"user_id": "u1"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
}

// TestInitializerRRFHybridResolvesSubRerankers confirms the rrf_hybrid
// variant's sub_rerankers ids are treated as resource dependencies and
// resolved through the same injection path as every other composed type.
func TestInitializerRRFHybridResolvesSubRerankers(t *testing.T) {
	defs := map[string]resourceinit.Definition{
		"identity-a": {Type: "reranker", Name: "identity", Config: map[string]any{}},
		"identity-b": {Type: "reranker", Name: "identity", Config: map[string]any{}},
		"hybrid": {
			Type: "reranker", Name: "rrf_hybrid",
			Config: map[string]any{"sub_rerankers": []string{"identity-a", "identity-b"}},
		},
	}

	init := &resourceinit.Initializer{}
	result, err := init.Build(context.Background(), defs)
	require.NoError(t, err)

	pos := map[string]int{}
	for i, id := range result.Order {
		pos[id] = i
	}
	require.Less(t, pos["identity-a"], pos["hybrid"])
	require.Less(t, pos["identity-b"], pos["hybrid"])
}
