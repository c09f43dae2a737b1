package resourceinit_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/resourceinit"
)

// recordingBuilder is a test double that builds the string "<name>:<built deps joined>"
// and records the order it was invoked in.
type recordingBuilder struct {
	deps  map[string][]string
	order *[]string
}

func (b recordingBuilder) DependencyIDs(name string, _ map[string]any) []string {
	return b.deps[name]
}

func (b recordingBuilder) Build(_ context.Context, name string, _ map[string]any, injections map[string]any) (any, error) {
	*b.order = append(*b.order, name)
	return fmt.Sprintf("%s(%d deps)", name, len(injections)), nil
}

func TestBuildOrdersDependenciesBeforeDependents(t *testing.T) {
	var order []string
	resourceinit.RegisterBuilder("test.recording", recordingBuilder{
		deps: map[string][]string{
			"leaf": nil,
			"mid":  {"leaf"},
			"root": {"mid", "leaf"},
		},
		order: &order,
	})

	defs := map[string]resourceinit.Definition{
		"root": {Type: "test.recording", Name: "root", Config: map[string]any{}},
		"mid":  {Type: "test.recording", Name: "mid", Config: map[string]any{}},
		"leaf": {Type: "test.recording", Name: "leaf", Config: map[string]any{}},
	}

	init := &resourceinit.Initializer{}
	result, err := init.Build(context.Background(), defs)
	require.NoError(t, err)
	require.Len(t, result.Order, 3)

	pos := map[string]int{}
	for i, id := range result.Order {
		pos[id] = i
	}
	assert.Less(t, pos["leaf"], pos["mid"])
	assert.Less(t, pos["mid"], pos["root"])
	assert.Equal(t, "root(2 deps)", result.Instances["root"])
}

func TestBuildFailsUnresolvedDependency(t *testing.T) {
	resourceinit.RegisterBuilder("test.recording2", recordingBuilder{
		deps:  map[string][]string{"needsMissing": {"does-not-exist"}},
		order: &[]string{},
	})

	defs := map[string]resourceinit.Definition{
		"a": {Type: "test.recording2", Name: "needsMissing", Config: map[string]any{}},
	}

	init := &resourceinit.Initializer{}
	_, err := init.Build(context.Background(), defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved")
}

func TestBuildFailsCyclicDependency(t *testing.T) {
	resourceinit.RegisterBuilder("test.recording3", recordingBuilder{
		deps:  map[string][]string{"a": {"b"}, "b": {"a"}},
		order: &[]string{},
	})

	defs := map[string]resourceinit.Definition{
		"a": {Type: "test.recording3", Name: "a", Config: map[string]any{}},
		"b": {Type: "test.recording3", Name: "b", Config: map[string]any{}},
	}

	init := &resourceinit.Initializer{}
	_, err := init.Build(context.Background(), defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")
}

func TestBuildUsesCacheAsResolvedDependency(t *testing.T) {
	resourceinit.RegisterBuilder("test.recording4", recordingBuilder{
		deps:  map[string][]string{"needsCached": {"precomputed"}},
		order: &[]string{},
	})

	defs := map[string]resourceinit.Definition{
		"a": {Type: "test.recording4", Name: "needsCached", Config: map[string]any{}},
	}

	init := &resourceinit.Initializer{Cache: map[string]any{"precomputed": "already built"}}
	result, err := init.Build(context.Background(), defs)
	require.NoError(t, err)
	assert.Equal(t, "needsCached(1 deps)", result.Instances["a"])
}

func TestBuildUnknownTypeFails(t *testing.T) {
	defs := map[string]resourceinit.Definition{
		"a": {Type: "no-such-type", Name: "x", Config: map[string]any{}},
	}
	init := &resourceinit.Initializer{}
	_, err := init.Build(context.Background(), defs)
	require.Error(t, err)
}
