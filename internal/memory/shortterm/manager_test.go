package shortterm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/shortterm"
)

func TestManagerGetIsPerSessionAndIdempotent(t *testing.T) {
	mgr := shortterm.NewManager(shortterm.Config{LLM: &scriptedLLM{response: "summary"}})

	s1a, err := mgr.Get("group1", "session1")
	require.NoError(t, err)
	s1b, err := mgr.Get("group1", "session1")
	require.NoError(t, err)
	assert.Same(t, s1a, s1b)

	s2, err := mgr.Get("group1", "session2")
	require.NoError(t, err)
	assert.NotSame(t, s1a, s2)

	ctx := context.Background()
	require.NoError(t, s1a.AddEpisode(ctx, newEpisode("hi")))
	episodes, _, err := s2.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, episodes, "sessions must not share state")
}

func TestManagerDropClosesAndForgetsSession(t *testing.T) {
	mgr := shortterm.NewManager(shortterm.Config{LLM: &scriptedLLM{response: "summary"}})
	ctx := context.Background()

	sm, err := mgr.Get("group1", "session1")
	require.NoError(t, err)
	require.NoError(t, sm.AddEpisode(ctx, newEpisode("hi")))

	require.NoError(t, mgr.Drop("group1", "session1"))

	fresh, err := mgr.Get("group1", "session1")
	require.NoError(t, err)
	assert.NotSame(t, sm, fresh)

	episodes, _, err := fresh.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, episodes)
}

func TestManagerCloseReleasesAllSessions(t *testing.T) {
	mgr := shortterm.NewManager(shortterm.Config{LLM: &scriptedLLM{response: "summary"}})

	_, err := mgr.Get("group1", "session1")
	require.NoError(t, err)
	_, err = mgr.Get("group1", "session2")
	require.NoError(t, err)

	require.NoError(t, mgr.Close())
}
