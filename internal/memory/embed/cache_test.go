package embed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/embed"
)

type stubProvider struct {
	calls int
	name  string
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (s *stubProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return []float32{float32(len(text))}, nil
}

func (s *stubProvider) Name() string { return s.name }

func TestCachedProviderPassesThroughWhenDisabled(t *testing.T) {
	stub := &stubProvider{name: "stub"}
	cached := embed.NewCachedProvider(stub, nil, &embed.CacheConfig{Enabled: false})

	vec, err := cached.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, vec)
	assert.Equal(t, 1, stub.calls)
}

func TestCachedProviderNameSuffix(t *testing.T) {
	stub := &stubProvider{name: "stub"}
	cached := embed.NewCachedProvider(stub, nil, nil)
	assert.Equal(t, "stub-cached", cached.Name())
}

func TestCachedProviderNilRedisFallsBackToProvider(t *testing.T) {
	stub := &stubProvider{name: "stub"}
	cached := embed.NewCachedProvider(stub, nil, embed.DefaultCacheConfig())

	out, err := cached.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, stub.calls)
}
