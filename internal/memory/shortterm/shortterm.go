// Package shortterm implements the conversational working-memory tier: a
// capacity- and token-budget-bounded sliding window of recent episodes per
// session, with LLM-driven summarization folding evicted episodes into a
// running summary so context is never silently dropped. It is a peer of
// declarative memory and the session manager, not a replacement for either —
// this window is scoped to one session's live conversation, while
// declarative memory holds the durable, searchable record.
package shortterm

import (
	"context"
	"strings"
	"sync"

	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

const (
	// DefaultCapacity is the episode-window size above which the oldest
	// episode is evicted and folded into the running summary.
	DefaultCapacity = 20
	// DefaultMaxMessageLen truncates an episode's content before it is fed
	// to the summarization prompt, so one oversized message can't blow the
	// model's context window on its own.
	DefaultMaxMessageLen = 4000
	// DefaultMaxTokenNum is the token budget GetSessionMemoryContext uses
	// when a call doesn't override it.
	DefaultMaxTokenNum = 4000
)

// DefaultSummarySystemPrompt is the system prompt used when none is
// configured.
const DefaultSummarySystemPrompt = `You maintain a running summary of an ongoing conversation. Fold the new
messages into the existing summary, preserving every fact that might still
matter later. Respond with the updated summary only, no preamble.`

// DefaultSummaryUserPrompt is the user prompt template used when none is
// configured. "{summary}" and "{episodes}" are substituted verbatim.
const DefaultSummaryUserPrompt = `Existing summary:
{summary}

New messages:
{episodes}`

// Config wires a SessionMemory instance.
type Config struct {
	LLM llm.ChatProvider

	Capacity      int
	MaxMessageLen int
	MaxTokenNum   int

	SummarySystemPrompt string
	SummaryUserPrompt   string
}

// ContextOptions bounds one GetSessionMemoryContext call. The zero value
// uses the SessionMemory's configured default token budget and applies no
// episode-count limit.
type ContextOptions struct {
	// MaxTokenNum overrides the configured default token budget when positive.
	MaxTokenNum int
	// Limit caps the number of episodes returned when positive.
	Limit int
}

// SessionMemory is a capacity-bounded sliding window of episodes for one
// session, auto-summarized via an LLM as episodes age out of the window.
type SessionMemory struct {
	mu       sync.Mutex
	episodes []*model.Episode
	summary  string

	llm llm.ChatProvider

	capacity      int
	maxMessageLen int
	maxTokenNum   int
	systemPrompt  string
	userPrompt    string
}

// New validates cfg and returns a SessionMemory with an empty window.
func New(cfg Config) (*SessionMemory, error) {
	if cfg.LLM == nil {
		return nil, memerr.ErrInvalidConfig.WithMessage("short_term_memory: llm is required")
	}

	m := &SessionMemory{
		llm:           cfg.LLM,
		capacity:      orDefault(cfg.Capacity, DefaultCapacity),
		maxMessageLen: orDefault(cfg.MaxMessageLen, DefaultMaxMessageLen),
		maxTokenNum:   orDefault(cfg.MaxTokenNum, DefaultMaxTokenNum),
		systemPrompt:  cfg.SummarySystemPrompt,
		userPrompt:    cfg.SummaryUserPrompt,
	}
	if m.systemPrompt == "" {
		m.systemPrompt = DefaultSummarySystemPrompt
	}
	if m.userPrompt == "" {
		m.userPrompt = DefaultSummaryUserPrompt
	}
	return m, nil
}

// AddEpisode appends episode to the window, evicting the oldest entries
// once the window exceeds capacity, and whenever the window is at capacity
// folds the current window plus the prior summary into an updated summary
// via the language model. The episode eviction happens before
// summarization so the summary always reflects exactly the episodes no
// longer in the window plus the window itself.
func (m *SessionMemory) AddEpisode(ctx context.Context, episode *model.Episode) error {
	m.mu.Lock()
	m.episodes = append(m.episodes, episode)
	for len(m.episodes) > m.capacity {
		m.episodes = m.episodes[1:]
	}
	full := len(m.episodes) >= m.capacity
	snapshot := append([]*model.Episode(nil), m.episodes...)
	prevSummary := m.summary
	m.mu.Unlock()

	if !full {
		return nil
	}

	summary, err := m.summarize(ctx, snapshot, prevSummary)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.summary = summary
	m.mu.Unlock()
	return nil
}

func (m *SessionMemory) summarize(ctx context.Context, episodes []*model.Episode, prevSummary string) (string, error) {
	parts := make([]string, 0, len(episodes))
	for _, e := range episodes {
		content := e.Content
		if len(content) > m.maxMessageLen {
			content = content[:m.maxMessageLen]
		}
		parts = append(parts, content)
	}

	prompt := strings.ReplaceAll(m.userPrompt, "{episodes}", strings.Join(parts, "\n"))
	prompt = strings.ReplaceAll(prompt, "{summary}", prevSummary)

	resp, err := m.llm.Generate(ctx, prompt, m.systemPrompt)
	if err != nil {
		return "", memerr.FromExternal(err)
	}
	return resp.Content, nil
}

// GetSessionMemoryContext returns the running summary plus the most recent
// episodes, bounded by opts' count limit and token budget. Episodes are
// accumulated newest-first, counting the summary's tokens too; the episode
// that brings the count to or past the budget is still included, then
// accumulation stops. The result is reversed back to chronological order
// for the caller.
func (m *SessionMemory) GetSessionMemoryContext(_ context.Context, opts ContextOptions) ([]*model.Episode, string, error) {
	m.mu.Lock()
	episodes := append([]*model.Episode(nil), m.episodes...)
	summary := m.summary
	m.mu.Unlock()

	maxTokenNum := opts.MaxTokenNum
	if maxTokenNum <= 0 {
		maxTokenNum = m.maxTokenNum
	}

	var accum []*model.Episode
	tokenCount := estimateTokens(summary)
	for i := len(episodes) - 1; i >= 0; i-- {
		if opts.Limit > 0 && len(accum) >= opts.Limit {
			break
		}
		accum = append(accum, episodes[i])
		tokenCount += estimateTokens(episodes[i].Content)
		if tokenCount >= maxTokenNum {
			break
		}
	}

	for i, j := 0, len(accum)-1; i < j; i, j = i+1, j-1 {
		accum[i], accum[j] = accum[j], accum[i]
	}
	if accum == nil {
		accum = []*model.Episode{}
	}
	return accum, summary, nil
}

// ClearMemory discards the episode window and running summary.
func (m *SessionMemory) ClearMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes = nil
	m.summary = ""
}

// Close releases SessionMemory's in-memory state. It is idempotent and safe
// to call without a prior ClearMemory.
func (m *SessionMemory) Close() error {
	m.ClearMemory()
	return nil
}

// estimateTokens is a coarse chars/4 heuristic, good enough to bound a
// prompt budget without a model-specific tokenizer.
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
