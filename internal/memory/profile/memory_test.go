package profile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/profile"
)

const testDim = 16

// charHistogramEmbedder is the same deterministic stand-in declarative's
// tests use: identical text always maps to the identical vector.
type charHistogramEmbedder struct{}

func (e *charHistogramEmbedder) vector(text string) []float32 {
	v := make([]float32, testDim)
	for _, r := range text {
		v[int(r)%testDim]++
	}
	return v
}

func (e *charHistogramEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}
func (e *charHistogramEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}
func (e *charHistogramEmbedder) Name() string { return "char-histogram-stub" }

// scriptedLLM returns a fixed response regardless of prompt, or an error
// when failNext is set.
type scriptedLLM struct {
	response string
	failNext bool
}

func (l *scriptedLLM) Generate(_ context.Context, _ string, _ string) (*llm.GenerateResponse, error) {
	if l.failNext {
		return nil, errors.New("llm unavailable")
	}
	return &llm.GenerateResponse{Content: l.response}, nil
}
func (l *scriptedLLM) Chat(_ context.Context, _ []llm.Message) (string, error) { return l.response, nil }
func (l *scriptedLLM) Name() string                                           { return "scripted-stub" }

func newTestMemory(t *testing.T, llmProvider llm.ChatProvider) (*profile.Memory, *memStore) {
	t.Helper()
	store := newMemStore()
	mem, err := profile.New(profile.Config{
		Store:           store,
		LLM:             llmProvider,
		Embedder:        &charHistogramEmbedder{},
		TrackerInterval: 10 * time.Millisecond,
		MessageLimit:    1,
		TimeLimit:       time.Hour,
	})
	require.NoError(t, err)
	return mem, store
}

func TestAddPersonaMessageAppliesSpeakerPrefix(t *testing.T) {
	mem, store := newTestMemory(t, &scriptedLLM{})
	ctx := context.Background()

	require.NoError(t, mem.AddPersonaMessage(ctx, "I like coffee", "u1", map[string]any{"speaker": "alice"}, nil))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.history, 1)
	assert.Equal(t, "alice sends 'I like coffee'", store.history[0].Content)
}

func TestAddPersonaMessageVerbatimWithoutSpeaker(t *testing.T) {
	mem, store := newTestMemory(t, &scriptedLLM{})
	ctx := context.Background()

	require.NoError(t, mem.AddPersonaMessage(ctx, "no speaker here", "u1", nil, nil))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.history, 1)
	assert.Equal(t, "no speaker here", store.history[0].Content)
}

func TestDeleteUserProfileEmptiesProfile(t *testing.T) {
	mem, _ := newTestMemory(t, &scriptedLLM{})
	ctx := context.Background()

	require.NoError(t, mem.AddNewProfile(ctx, "u1", "contact", "email", "a@example.com", nil))
	prof, err := mem.GetUserProfile(ctx, "u1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, prof)

	require.NoError(t, mem.DeleteUserProfile(ctx, "u1"))
	prof, err = mem.GetUserProfile(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, prof)
}

func TestSemanticSearchRanksByDescendingSimilarity(t *testing.T) {
	mem, _ := newTestMemory(t, &scriptedLLM{})
	ctx := context.Background()

	require.NoError(t, mem.AddNewProfile(ctx, "u1", "preference", "drink", "coffee", nil))
	require.NoError(t, mem.AddNewProfile(ctx, "u1", "preference", "sport", "zzzzzzzzzzzzzzzzzzzz", nil))

	results, err := mem.SemanticSearch(ctx, "u1", "coffee", 5, 0, nil, false, false)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "coffee", results[0].Entry.Value)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestSemanticSearchIncludesCitationsWhenRequested(t *testing.T) {
	mem, store := newTestMemory(t, &scriptedLLM{})
	ctx := context.Background()

	require.NoError(t, mem.AddPersonaMessage(ctx, "I love coffee", "u1", nil, nil))
	store.mu.Lock()
	histID := store.history[0].ID
	store.mu.Unlock()

	require.NoError(t, store.AddProfileEntry(ctx, &profile.ProfileEntry{
		UserID: "u1", Tag: "preference", Feature: "drink", Value: "coffee",
		Embedding: (&charHistogramEmbedder{}).vector("drink: coffee"),
		Citations: []string{histID},
	}))

	results, err := mem.SemanticSearch(ctx, "u1", "coffee", 5, 0, nil, false, true)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Len(t, results[0].Citations, 1)
	assert.Equal(t, "I love coffee", results[0].Citations[0].Content)
}

// TestExtractionAppliesAddCommand drives the background loop end to end: a
// persona message marks the tracker, the loop's next tick dispatches
// extraction, the scripted LLM returns a single "add" command, and the
// resulting profile entry becomes visible via GetUserProfile.
func TestExtractionAppliesAddCommand(t *testing.T) {
	script := &scriptedLLM{response: `{"f1": {"command":"add","tag":"preference","feature":"drink","value":"tea"}}`}
	mem, _ := newTestMemory(t, script)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem.Startup(ctx)
	defer mem.Shutdown()

	require.NoError(t, mem.AddPersonaMessage(ctx, "I drink tea every morning", "u1", nil, nil))

	require.Eventually(t, func() bool {
		prof, err := mem.GetUserProfile(ctx, "u1", nil)
		if err != nil || prof["preference"] == nil {
			return false
		}
		v, ok := prof["preference"]["drink"].SingleValue()
		return ok && v.Value == "tea"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestExtractionFailureLeavesHistoryForRetry confirms that an LLM failure
// during extraction does not mark history entries ingested, so they remain
// available for the next cycle once the LLM recovers.
func TestExtractionFailureLeavesHistoryForRetry(t *testing.T) {
	script := &scriptedLLM{failNext: true}
	mem, store := newTestMemory(t, script)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem.Startup(ctx)
	require.NoError(t, mem.AddPersonaMessage(ctx, "hello", "u1", nil, nil))

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.history) == 1
	}, time.Second, 5*time.Millisecond)

	// Give the loop a couple of ticks to (fail to) process, then verify the
	// entry is still uningested.
	time.Sleep(50 * time.Millisecond)
	mem.Shutdown()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.history, 1)
	assert.False(t, store.history[0].Ingested)
}

// TestConsolidationReducesOversizedFeatureGroup drives the consolidation
// tick: a (tag, feature) group above the threshold is rewritten to the
// scripted LLM's reduced value set, with the originals' citations merged.
func TestConsolidationReducesOversizedFeatureGroup(t *testing.T) {
	script := &scriptedLLM{response: `["likes hot drinks"]`}
	store := newMemStore()
	mem, err := profile.New(profile.Config{
		Store:                  store,
		LLM:                    script,
		Embedder:               &charHistogramEmbedder{},
		ConsolidationThreshold: 1,
		ConsolidationInterval:  10 * time.Millisecond,
		TrackerInterval:        time.Hour,
		MessageLimit:           1000,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, mem.AddNewProfile(ctx, "u1", "preference", "drink", "coffee", nil))
	require.NoError(t, mem.AddNewProfile(ctx, "u1", "preference", "drink", "tea", nil))

	mem.Startup(ctx)
	defer mem.Shutdown()

	require.Eventually(t, func() bool {
		prof, err := mem.GetUserProfile(ctx, "u1", nil)
		if err != nil {
			return false
		}
		v, ok := prof["preference"]["drink"].SingleValue()
		return ok && v.Value == "likes hot drinks"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseCommandsRejectsUnknownCommand(t *testing.T) {
	_, err := profile.ParseCommands(`{"f1": {"command":"frobnicate","feature":"x","value":"y"}}`)
	require.Error(t, err)
}

func TestParseCommandsStripsCodeFence(t *testing.T) {
	raw := fmt.Sprintf("```json\n%s\n```", `{"f1":{"command":"add","tag":"t","feature":"f","value":"v"}}`)
	cmds, err := profile.ParseCommands(raw)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, profile.CommandAdd, cmds[0].Command)
}
