package vectorgraph_test

import (
	"context"
	"testing"
	"time"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *vectorgraph.SQLiteStore {
	t.Helper()
	s, err := vectorgraph.NewSQLiteStore(vectorgraph.SQLiteConfig{
		Path:      "file:" + t.Name() + "?mode=memory&cache=shared",
		Dimension: 4,
		Metric:    vectorgraph.MetricCosine,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddNodeAndSearchSimilarRespectsFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	id1, err := s.AddNode(ctx, []string{"Derivative"}, model.FilterableProperties{"user_id": "u1"}, nil, []float32{1, 0, 0, 0}, now)
	require.NoError(t, err)
	_, err = s.AddNode(ctx, []string{"Derivative"}, model.FilterableProperties{"user_id": "u2"}, nil, []float32{1, 0, 0, 0}, now)
	require.NoError(t, err)

	results, err := s.SearchSimilarNodes(ctx, []float32{1, 0, 0, 0}, []string{"Derivative"}, model.FilterableProperties{"user_id": "u1"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id1, results[0].Node.ID)
}

func TestAddEdgeAndTraverse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	episodeID, err := s.AddNode(ctx, []string{"Episode"}, model.FilterableProperties{"user_id": "u1"}, nil, nil, now)
	require.NoError(t, err)
	derivID, err := s.AddNode(ctx, []string{"Derivative"}, model.FilterableProperties{"user_id": "u1"}, nil, []float32{0, 1, 0, 0}, now)
	require.NoError(t, err)

	require.NoError(t, s.AddEdge(ctx, derivID, "DERIVED_FROM", episodeID, nil))

	reached, err := s.TraverseEdges(ctx, derivID, "DERIVED_FROM", vectorgraph.Outgoing)
	require.NoError(t, err)
	require.Len(t, reached, 1)
	require.Equal(t, episodeID, reached[0].ID)
}

func TestSearchDirectionalNodesExclusiveCursor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t0 := time.Now()
	t1 := t0.Add(time.Second)
	t2 := t0.Add(2 * time.Second)

	_, err := s.AddNode(ctx, []string{"Episode"}, model.FilterableProperties{"user_id": "u1"}, nil, nil, t0)
	require.NoError(t, err)
	id1, err := s.AddNode(ctx, []string{"Episode"}, model.FilterableProperties{"user_id": "u1"}, nil, nil, t1)
	require.NoError(t, err)
	_, err = s.AddNode(ctx, []string{"Episode"}, model.FilterableProperties{"user_id": "u1"}, nil, nil, t2)
	require.NoError(t, err)

	results, err := s.SearchDirectionalNodes(ctx, []string{"Episode"}, model.FilterableProperties{"user_id": "u1"}, "timestamp", vectorgraph.Descending, t2, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, id1, results[0].ID)
}

func TestDeleteSubgraphRequiresFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.DeleteSubgraph(ctx, nil)
	require.Error(t, err)
}

func TestDeleteSubgraphCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	nodeID, err := s.AddNode(ctx, []string{"Episode"}, model.FilterableProperties{"session_id": "s1"}, nil, nil, now)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSubgraph(ctx, model.FilterableProperties{"session_id": "s1"}))

	results, err := s.SearchDirectionalNodes(ctx, []string{"Episode"}, model.FilterableProperties{"session_id": "s1"}, "timestamp", vectorgraph.Descending, nil, 10)
	require.NoError(t, err)
	require.Empty(t, results)
	_ = nodeID
}
