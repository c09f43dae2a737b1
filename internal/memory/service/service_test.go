package service_test

import (
	"context"
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
	"github.com/kart-io/agentmem/internal/memory/service"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
)

const testDim = 16

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

func newTestService(t *testing.T) *service.Memory {
	t.Helper()
	store, err := vectorgraph.NewSQLiteStore(vectorgraph.SQLiteConfig{Path: ":memory:", Dimension: testDim})
	require.NoError(t, err)

	decl, err := declarative.New(declarative.Config{
		Store:      store,
		Embedder:   &charHistogramEmbedder{},
		Deriver:    &deriver.Identity{},
		Mutator:    &mutator.Identity{},
		Postulator: &postulator.Null{},
		Reranker:   reranker.NewEmbedderSimilarity(&charHistogramEmbedder{}, vectorgraph.MetricCosine),
	})
	require.NoError(t, err)

	svc, err := service.New(decl, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

var testScope = model.Scope{GroupID: "g1", SessionID: "s1", UserIDs: []string{"u1"}}

func TestAddThenQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	err := svc.AddMemoryEpisode(ctx, testScope, "u1", "a1", "the meeting is on thursday", "message", model.ContentTypeString, time.Now(), nil)
	require.NoError(t, err)

	result, err := svc.QueryMemory(ctx, testScope, "the meeting is on thursday", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Derivatives)
	assert.Equal(t, "the meeting is on thursday", result.Derivatives[0].Content)
	require.NotEmpty(t, result.Episodes)
	assert.Contains(t, result.Scores, result.Derivatives[0].ID)
}

func TestQueryIsScopedToSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	other := model.Scope{GroupID: "g2", SessionID: "s2"}
	require.NoError(t, svc.AddMemoryEpisode(ctx, other, "u2", "", "content in another scope", "message", model.ContentTypeString, time.Now(), nil))

	result, err := svc.QueryMemory(ctx, testScope, "content in another scope", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Derivatives)
}

func TestDeleteDataThenQueryReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.AddMemoryEpisode(ctx, testScope, "u1", "", "ephemeral", "message", model.ContentTypeString, time.Now(), nil))
	require.NoError(t, svc.DeleteData(ctx, testScope))

	result, err := svc.QueryMemory(ctx, testScope, "ephemeral", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Derivatives)
	assert.Empty(t, result.Episodes)
}

func TestAddRejectsMissingScopeAndContent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	err := svc.AddMemoryEpisode(ctx, model.Scope{}, "u1", "", "content", "message", model.ContentTypeString, time.Now(), nil)
	require.Error(t, err)

	err = svc.AddMemoryEpisode(ctx, testScope, "u1", "", "", "message", model.ContentTypeString, time.Now(), nil)
	require.Error(t, err)
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.QueryMemory(context.Background(), testScope, "", 5, nil)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
}
