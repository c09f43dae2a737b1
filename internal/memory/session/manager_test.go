package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/session"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	mgr, err := session.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	require.NoError(t, mgr.CreateGroup(ctx, "g1", []string{"agent1"}, []string{"user1"}, `{"k":"v"}`))
	require.NoError(t, mgr.CreateSession(ctx, "g1", "s1", ""))

	info, err := mgr.OpenSession(ctx, "g1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "g1", info.GroupID)
	assert.Equal(t, "s1", info.SessionID)
	assert.ElementsMatch(t, []string{"user1"}, info.UserIDs)
	assert.ElementsMatch(t, []string{"agent1"}, info.AgentIDs)

	require.NoError(t, mgr.DeleteSession(ctx, "g1", "s1"))
	_, err = mgr.OpenSession(ctx, "g1", "s1")
	require.Error(t, err)

	require.NoError(t, mgr.DeleteGroup(ctx, "g1"))
}

func TestCreateGroupRejectsEmptyRoster(t *testing.T) {
	mgr := newTestManager(t)
	err := mgr.CreateGroup(context.Background(), "g1", nil, nil, "")
	require.Error(t, err)
}

func TestCreateGroupRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)
	require.NoError(t, mgr.CreateGroup(ctx, "g1", nil, []string{"u1"}, ""))
	err := mgr.CreateGroup(ctx, "g1", nil, []string{"u2"}, "")
	require.Error(t, err)
}

func TestCreateSessionRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	require.NoError(t, mgr.CreateGroup(ctx, "g1", []string{"a1"}, []string{"u1"}, ""))
	require.NoError(t, mgr.CreateSession(ctx, "g1", "s1", ""))

	err := mgr.CreateSession(ctx, "g1", "s1", "")
	require.Error(t, err)
	assert.Equal(t, memerr.KindSessionAlreadyExists, err.(*memerr.Error).Kind)
}

func TestCreateSessionRequiresExistingGroup(t *testing.T) {
	err := newTestManager(t).CreateSession(context.Background(), "missing", "s1", "")
	require.Error(t, err)
}

func TestCreateSessionIfNotExistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	info1, err := mgr.CreateSessionIfNotExist(ctx, "g1", "s1", nil, []string{"u1"}, "")
	require.NoError(t, err)

	info2, err := mgr.CreateSessionIfNotExist(ctx, "g1", "s1", nil, []string{"u1"}, "")
	require.NoError(t, err)

	assert.Equal(t, info1.SessionID, info2.SessionID)

	sessions, err := mgr.GetSessionsByGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestDeleteGroupFailsWhileSessionsExist(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	require.NoError(t, mgr.CreateGroup(ctx, "g1", nil, []string{"u1"}, ""))
	require.NoError(t, mgr.CreateSession(ctx, "g1", "s1", ""))

	err := mgr.DeleteGroup(ctx, "g1")
	require.Error(t, err)
	assert.Equal(t, memerr.KindGroupHasSessions, err.(*memerr.Error).Kind)
}

func TestGetSessionsByUserAndAgent(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	require.NoError(t, mgr.CreateGroup(ctx, "g1", []string{"a1"}, []string{"u1"}, ""))
	require.NoError(t, mgr.CreateSession(ctx, "g1", "s1", ""))

	byUser, err := mgr.GetSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "s1", byUser[0].SessionID)

	byAgent, err := mgr.GetSessionsByAgent(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, "s1", byAgent[0].SessionID)
}
