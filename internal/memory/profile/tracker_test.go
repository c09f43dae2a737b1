package profile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/profile"
)

// TestTrackerTiming: with message_limit=2 and a 100ms time limit, one mark
// is not due, a second mark is, reset clears it, and a single mark followed
// by the time limit elapsing is due again.
func TestTrackerTiming(t *testing.T) {
	tr := profile.NewTracker()
	const messageLimit = 2
	const timeLimit = 100 * time.Millisecond

	tr.Mark()
	assert.False(t, tr.ShouldUpdate(messageLimit, timeLimit))

	tr.Mark()
	assert.True(t, tr.ShouldUpdate(messageLimit, timeLimit))

	tr.Reset()
	assert.False(t, tr.ShouldUpdate(messageLimit, timeLimit))

	tr.Mark()
	assert.False(t, tr.ShouldUpdate(messageLimit, timeLimit))
	time.Sleep(150 * time.Millisecond)
	assert.True(t, tr.ShouldUpdate(messageLimit, timeLimit))
}

func TestTrackerManagerGetUsersToUpdateResets(t *testing.T) {
	mgr := profile.NewTrackerManager(2, time.Hour)

	mgr.Mark("u1")
	require.Empty(t, mgr.GetUsersToUpdate())

	mgr.Mark("u1")
	due := mgr.GetUsersToUpdate()
	require.Equal(t, []string{"u1"}, due)

	// Reset by the prior call means a single subsequent mark isn't due yet.
	mgr.Mark("u1")
	assert.Empty(t, mgr.GetUsersToUpdate())
}

func TestTrackerManagerIndependentUsers(t *testing.T) {
	mgr := profile.NewTrackerManager(1, time.Hour)

	mgr.Mark("u1")
	due := mgr.GetUsersToUpdate()
	assert.Equal(t, []string{"u1"}, due)

	// u2 was never marked, so it must not appear.
	assert.Empty(t, mgr.GetUsersToUpdate())
}
