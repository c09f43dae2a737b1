package id_test

import (
	"testing"

	"github.com/kart-io/agentmem/pkg/id"
	"github.com/stretchr/testify/assert"
)

func TestNewUUIDIsValid(t *testing.T) {
	u := id.NewUUID()
	assert.True(t, id.IsValidUUID(u))
	assert.NotEqual(t, u, id.NewUUID())
}

func TestNewULIDMonotonicAndSortable(t *testing.T) {
	a := id.NewULID()
	b := id.NewULID()

	assert.True(t, id.IsValidULID(a))
	assert.True(t, id.IsValidULID(b))
	assert.Less(t, a, b, "ULIDs generated in sequence must sort lexically increasing")
}

func TestULIDTime(t *testing.T) {
	u := id.NewULID()
	ts, err := id.ULIDTime(u)
	assert.NoError(t, err)
	assert.False(t, ts.IsZero())
}
