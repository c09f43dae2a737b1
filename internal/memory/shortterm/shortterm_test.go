package shortterm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/shortterm"
)

// scriptedLLM returns a fixed response regardless of prompt, or an error
// when failNext is set. Mirrors internal/memory/profile's test double.
type scriptedLLM struct {
	response string
	failNext bool
	calls    int
}

func (l *scriptedLLM) Generate(_ context.Context, _ string, _ string) (*llm.GenerateResponse, error) {
	l.calls++
	if l.failNext {
		return nil, errors.New("llm unavailable")
	}
	return &llm.GenerateResponse{Content: l.response}, nil
}
func (l *scriptedLLM) Chat(_ context.Context, _ []llm.Message) (string, error) { return l.response, nil }
func (l *scriptedLLM) Name() string                                           { return "scripted-stub" }

func newEpisode(content string) *model.Episode {
	return &model.Episode{
		ID:          "ep-" + content,
		EpisodeType: "message",
		ContentType: model.ContentTypeString,
		Content:     content,
		Timestamp:   time.Now(),
		ProducerID:  "user1",
	}
}

func newTestMemory(t *testing.T, llmProvider llm.ChatProvider) *shortterm.SessionMemory {
	t.Helper()
	mem, err := shortterm.New(shortterm.Config{
		LLM:      llmProvider,
		Capacity: 3,
	})
	require.NoError(t, err)
	return mem
}

func TestNewRequiresLLM(t *testing.T) {
	_, err := shortterm.New(shortterm.Config{})
	assert.Error(t, err)
}

func TestInitialStateIsEmpty(t *testing.T) {
	mem := newTestMemory(t, &scriptedLLM{response: "summary"})
	episodes, summary, err := mem.GetSessionMemoryContext(context.Background(), shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, episodes)
	assert.Equal(t, "", summary)
}

func TestAddEpisodeEvictsAndSummarizesAtCapacity(t *testing.T) {
	llmStub := &scriptedLLM{response: "summary"}
	mem := newTestMemory(t, llmStub)
	ctx := context.Background()

	ep1, ep2, ep3, ep4 := newEpisode("Hello"), newEpisode("World"), newEpisode("!"), newEpisode("?")

	require.NoError(t, mem.AddEpisode(ctx, ep1))
	episodes, summary, err := mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, []*model.Episode{ep1}, episodes)
	assert.Equal(t, "", summary)

	require.NoError(t, mem.AddEpisode(ctx, ep2))
	episodes, summary, err = mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, []*model.Episode{ep1, ep2}, episodes)
	assert.Equal(t, "", summary)
	assert.Equal(t, 0, llmStub.calls)

	// window is now at capacity: summarization fires.
	require.NoError(t, mem.AddEpisode(ctx, ep3))
	episodes, summary, err = mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, []*model.Episode{ep1, ep2, ep3}, episodes)
	assert.Equal(t, "summary", summary)
	assert.Equal(t, 1, llmStub.calls)

	// a new episode evicts the oldest (ep1) and re-summarizes.
	require.NoError(t, mem.AddEpisode(ctx, ep4))
	episodes, summary, err = mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, []*model.Episode{ep2, ep3, ep4}, episodes)
	assert.Equal(t, "summary", summary)
	assert.Equal(t, 2, llmStub.calls)
}

func TestAddEpisodeSummarizationFailurePropagates(t *testing.T) {
	llmStub := &scriptedLLM{failNext: true}
	mem := newTestMemory(t, llmStub)
	ctx := context.Background()

	require.NoError(t, mem.AddEpisode(ctx, newEpisode("a")))
	require.NoError(t, mem.AddEpisode(ctx, newEpisode("b")))
	err := mem.AddEpisode(ctx, newEpisode("c"))
	assert.Error(t, err)
}

func TestClearMemory(t *testing.T) {
	mem := newTestMemory(t, &scriptedLLM{response: "summary"})
	ctx := context.Background()

	require.NoError(t, mem.AddEpisode(ctx, newEpisode("test")))
	mem.ClearMemory()

	episodes, summary, err := mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, episodes)
	assert.Equal(t, "", summary)
}

func TestClose(t *testing.T) {
	mem := newTestMemory(t, &scriptedLLM{response: "summary"})
	ctx := context.Background()

	require.NoError(t, mem.AddEpisode(ctx, newEpisode("test")))
	require.NoError(t, mem.Close())

	episodes, summary, err := mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, episodes)
	assert.Equal(t, "", summary)
}

func TestGetSessionMemoryContextTokenAndCountLimits(t *testing.T) {
	mem := newTestMemory(t, &scriptedLLM{response: "summary"})
	ctx := context.Background()

	content := strings.Repeat("a", 20) // estimateTokens(20 chars) == 5
	ep1, ep2, ep3 := newEpisode(content), newEpisode(content), newEpisode(content)
	require.NoError(t, mem.AddEpisode(ctx, ep1))
	require.NoError(t, mem.AddEpisode(ctx, ep2))
	require.NoError(t, mem.AddEpisode(ctx, ep3))

	// summary "summary" (7 chars) -> 1 token; + 5*3 = 16, under a budget of 20.
	episodes, summary, err := mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{MaxTokenNum: 20})
	require.NoError(t, err)
	assert.Equal(t, []*model.Episode{ep1, ep2, ep3}, episodes)
	assert.Equal(t, "summary", summary)

	// A tight budget only leaves room for the two newest episodes, accumulated
	// newest-first then reversed back to chronological order.
	episodes, _, err = mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{MaxTokenNum: 11})
	require.NoError(t, err)
	assert.Equal(t, []*model.Episode{ep2, ep3}, episodes)

	// An episode-count limit wins regardless of token budget.
	episodes, _, err = mem.GetSessionMemoryContext(ctx, shortterm.ContextOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []*model.Episode{ep3}, episodes)
}
