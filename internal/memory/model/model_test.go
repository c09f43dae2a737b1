package model_test

import (
	"testing"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/stretchr/testify/assert"
)

func TestIntersect(t *testing.T) {
	a := model.FilterableProperties{"user_id": "u1", "lang": "en"}
	b := model.FilterableProperties{"user_id": "u1", "lang": "fr"}

	got := model.Intersect(a, b)
	assert.Equal(t, model.FilterableProperties{"user_id": "u1"}, got)
}

func TestIntersectSingle(t *testing.T) {
	a := model.FilterableProperties{"user_id": "u1"}
	assert.Equal(t, a, model.Intersect(a))
}

func TestSubset(t *testing.T) {
	sup := model.FilterableProperties{"user_id": "u1", "lang": "en"}
	assert.True(t, model.Subset(model.FilterableProperties{"user_id": "u1"}, sup))
	assert.False(t, model.Subset(model.FilterableProperties{"user_id": "u2"}, sup))
	assert.False(t, model.Subset(model.FilterableProperties{"missing": "x"}, sup))
}

func TestNewEpisodeClusterSharedProperties(t *testing.T) {
	episodes := []*model.Episode{
		{ID: "e1", FilterableProperties: model.FilterableProperties{"user_id": "u1", "session_id": "s1"}},
		{ID: "e2", FilterableProperties: model.FilterableProperties{"user_id": "u1", "session_id": "s2"}},
	}
	cluster := model.NewEpisodeCluster("c1", episodes)

	assert.Equal(t, model.FilterableProperties{"user_id": "u1"}, cluster.FilterableProperties)
	assert.Len(t, cluster.Episodes, 2)
}

func TestScopeAsFilterableProperties(t *testing.T) {
	scope := model.Scope{GroupID: "g1", SessionID: "s1", UserIDs: []string{"u1"}}
	assert.Equal(t, model.FilterableProperties{"group_id": "g1", "session_id": "s1"}, scope.AsFilterableProperties())
}
