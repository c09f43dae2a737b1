package mutator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/mutator"
)

type stubModel struct{ content string }

func (s *stubModel) Chat(_ context.Context, _ []llm.Message) (string, error) { return s.content, nil }
func (s *stubModel) Generate(_ context.Context, _ string, _ string) (*llm.GenerateResponse, error) {
	return &llm.GenerateResponse{Content: s.content}, nil
}
func (s *stubModel) Name() string { return "stub" }

func TestIdentityPassthrough(t *testing.T) {
	d := &model.Derivative{Content: "hello"}
	m := &mutator.Identity{}
	out, err := m.Mutate(context.Background(), d, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, d, out[0])
}

func TestMetadataTemplatedSubstitutes(t *testing.T) {
	m := mutator.NewMetadataTemplated("user $user_id said: $content")
	d := &model.Derivative{
		Content:              "hi there",
		Timestamp:            time.Now(),
		FilterableProperties: model.FilterableProperties{"user_id": "u1"},
	}
	out, err := m.Mutate(context.Background(), d, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "user u1 said: hi there", out[0].Content)
	assert.Equal(t, model.FilterableProperties{"user_id": "u1"}, out[0].FilterableProperties)
}

func TestMetadataTemplatedLeavesUnknownPlaceholdersLiteral(t *testing.T) {
	m := mutator.NewMetadataTemplated("value: $missing")
	d := &model.Derivative{Content: "x"}
	out, err := m.Mutate(context.Background(), d, nil)
	require.NoError(t, err)
	assert.Equal(t, "value: $missing", out[0].Content)
}

func TestLLMRewriteNarrowsToClusterSharedProperties(t *testing.T) {
	d := &model.Derivative{
		Content:              "original",
		FilterableProperties: model.FilterableProperties{"user_id": "u1", "lang": "en"},
	}
	cluster := &model.EpisodeCluster{
		FilterableProperties: model.FilterableProperties{"user_id": "u1"},
		Episodes:             []*model.Episode{{Content: "context"}},
	}

	m := mutator.NewLLMRewrite(&stubModel{content: "rewritten"}, false)
	out, err := m.Mutate(context.Background(), d, cluster)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "rewritten", out[0].Content)
	assert.Equal(t, model.FilterableProperties{"user_id": "u1"}, out[0].FilterableProperties)
}

func TestLLMRewritePreservesPropertiesWhenConfigured(t *testing.T) {
	d := &model.Derivative{
		Content:              "original",
		FilterableProperties: model.FilterableProperties{"user_id": "u1", "lang": "en"},
	}
	cluster := &model.EpisodeCluster{
		FilterableProperties: model.FilterableProperties{"user_id": "u1"},
		Episodes:             []*model.Episode{{Content: "context"}},
	}

	m := mutator.NewLLMRewrite(&stubModel{content: "rewritten"}, true)
	out, err := m.Mutate(context.Background(), d, cluster)
	require.NoError(t, err)
	assert.Equal(t, model.FilterableProperties{"user_id": "u1", "lang": "en"}, out[0].FilterableProperties)
}
