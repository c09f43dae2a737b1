package postulator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/postulator"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
)

func TestNullPostulatorReturnsEmpty(t *testing.T) {
	p := &postulator.Null{}
	out, err := p.Postulate(context.Background(), &model.Episode{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestPreviousNScopedToUser: three episodes at t, t+1s, t+2s with user_id
// in {u1, u2, u1}; postulating for a fourth episode at t+3s with user_id=u1
// and a limit of 2 must return the two u1 episodes only, in reverse
// chronological order.
func TestPreviousNScopedToUser(t *testing.T) {
	ctx := context.Background()
	store, err := vectorgraph.NewSQLiteStore(vectorgraph.SQLiteConfig{Path: ":memory:", Dimension: 4})
	require.NoError(t, err)
	defer store.Close()

	t0 := time.Now()
	ids := make([]string, 3)
	users := []string{"u1", "u2", "u1"}
	for i, u := range users {
		labels, props, meta := vectorgraph.NodeFromEpisode(&model.Episode{
			Content:              "msg",
			FilterableProperties: model.FilterableProperties{"user_id": u},
		}, nil)
		nodeID, err := store.AddNode(ctx, labels, props, meta, nil, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		ids[i] = nodeID
	}

	p := postulator.NewPreviousN(store, 2, []string{"user_id"})
	newEpisode := &model.Episode{
		Timestamp:            t0.Add(3 * time.Second),
		FilterableProperties: model.FilterableProperties{"user_id": "u1"},
	}

	related, err := p.Postulate(ctx, newEpisode)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "u1", related[0].FilterableProperties["user_id"])
	assert.Equal(t, "u1", related[1].FilterableProperties["user_id"])
	assert.True(t, related[0].Timestamp.After(related[1].Timestamp))
}
