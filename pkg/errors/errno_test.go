package errors_test

import (
	"context"
	"errors"
	"testing"

	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCauseAndWithMessage(t *testing.T) {
	cause := errors.New("boom")
	err := memerr.ErrStoreUnavailable.WithCause(cause)

	require.Error(t, err)
	assert.Equal(t, memerr.KindStoreUnavailable, err.Kind)
	assert.ErrorIs(t, err, cause)

	renamed := memerr.ErrStoreUnavailable.WithMessage("redis down")
	assert.Equal(t, "redis down", renamed.Message)
	assert.Nil(t, renamed.Unwrap())
}

func TestIsKind(t *testing.T) {
	err := memerr.ErrSessionNotFound.WithMessage("s1 missing")

	assert.True(t, memerr.IsKind(err, memerr.KindSessionNotFound))
	assert.False(t, memerr.IsKind(err, memerr.KindSessionAlreadyExists))
	assert.Equal(t, memerr.KindSessionNotFound, memerr.GetKind(err))
}

func TestFromError(t *testing.T) {
	wrapped := memerr.FromError(errors.New("plain"))
	assert.Equal(t, memerr.KindInternal, wrapped.Kind)

	already := memerr.ErrInvalidArgument.WithMessage("bad")
	assert.Same(t, already, memerr.FromError(already))
}

func TestFromExternalClassifiesTimeouts(t *testing.T) {
	timeout := memerr.FromExternal(context.DeadlineExceeded)
	assert.Equal(t, memerr.KindExternalServiceTimeout, timeout.Kind)

	api := memerr.FromExternal(errors.New("http 500"))
	assert.Equal(t, memerr.KindExternalServiceAPIError, api.Kind)
}

func TestLookup(t *testing.T) {
	base, ok := memerr.Lookup(memerr.KindCyclicDependency)
	require.True(t, ok)
	assert.Equal(t, "cyclic dependency detected in resource definitions", base.Message)

	_, ok = memerr.Lookup(memerr.Kind("not_registered"))
	assert.False(t, ok)
}
