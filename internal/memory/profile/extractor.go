package profile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kart-io/logger"

	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// runExtraction is the extraction job for one user: read the last K
// uningested history entries, invoke the LLM's update prompt, apply the
// returned commands, then mark the consumed entries ingested. A failure at
// any step leaves the history entries unmarked so the next tracker-due cycle
// retries them; it never propagates past the caller since the background
// loop must never exit on a job's error.
func (m *Memory) runExtraction(ctx context.Context, userID string) {
	if !m.extractionLocks.tryLock(userID) {
		// Another extraction for this user is already running; the mark
		// that triggered this call will be honored on the next cycle.
		return
	}
	defer m.extractionLocks.unlock(userID)

	entries, err := m.store.UningestedHistory(ctx, userID, nil, m.historyBatchSize)
	if err != nil {
		logger.Warnw("profile extraction: read history failed", "user_id", userID, "error", err.Error())
		m.metrics.RecordExtractionOutcome(ctx, "failed")
		return
	}
	if len(entries) == 0 {
		return
	}

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Content
	}
	prompt := fmt.Sprintf(m.updatePrompt, strings.Join(parts, "\n"))

	resp, err := m.llm.Generate(ctx, prompt, "")
	if err != nil {
		logger.Warnw("profile extraction: llm call failed, will retry next cycle", "user_id", userID, "error", err.Error())
		m.metrics.RecordExtractionOutcome(ctx, "failed")
		return
	}

	commands, err := ParseCommands(resp.Content)
	if err != nil {
		logger.Warnw("profile extraction: malformed command response, will retry next cycle", "user_id", userID, "error", err.Error())
		m.metrics.RecordExtractionOutcome(ctx, "malformed")
		return
	}

	citations := make([]string, len(entries))
	for i, e := range entries {
		citations[i] = e.ID
	}

	for _, cmd := range commands {
		if err := m.applyCommand(ctx, userID, cmd, citations); err != nil {
			logger.Warnw("profile extraction: command apply failed, will retry next cycle", "user_id", userID, "error", err.Error())
			m.metrics.RecordExtractionOutcome(ctx, "failed")
			return
		}
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := m.store.MarkIngested(ctx, ids); err != nil {
		logger.Warnw("profile extraction: mark ingested failed", "user_id", userID, "error", err.Error())
	}
	m.metrics.RecordExtractionOutcome(ctx, "applied")
}

func (m *Memory) applyCommand(ctx context.Context, userID string, cmd Command, citations []string) error {
	embedding, err := m.embedder.EmbedSingle(ctx, cmd.Feature+": "+cmd.Value)
	if err != nil {
		return memerr.FromExternal(err)
	}

	switch cmd.Command {
	case CommandAdd:
		return m.store.AddProfileEntry(ctx, &ProfileEntry{
			UserID: userID, Tag: cmd.Tag, Feature: cmd.Feature, Value: cmd.Value,
			Embedding: embedding, Citations: citations,
		})

	case CommandUpdate:
		existing, err := m.store.FindProfileEntryByValue(ctx, userID, nil, cmd.Tag, cmd.Feature, cmd.Value)
		if err != nil {
			return err
		}
		if existing == nil {
			existing, err = m.store.FindProfileEntryBySimilarity(ctx, userID, nil, cmd.Tag, cmd.Feature, embedding, m.updateSimilarityThreshold)
			if err != nil {
				return err
			}
		}
		if existing == nil {
			return m.store.AddProfileEntry(ctx, &ProfileEntry{
				UserID: userID, Tag: cmd.Tag, Feature: cmd.Feature, Value: cmd.Value,
				Embedding: embedding, Citations: citations,
			})
		}
		return m.store.UpdateProfileEntry(ctx, existing.ID, cmd.Value, embedding, mergeCitations(existing.Citations, citations))

	case CommandDelete:
		existing, err := m.store.FindProfileEntryByValue(ctx, userID, nil, cmd.Tag, cmd.Feature, cmd.Value)
		if err != nil {
			return err
		}
		if existing == nil {
			existing, err = m.store.FindProfileEntryBySimilarity(ctx, userID, nil, cmd.Tag, cmd.Feature, embedding, m.updateSimilarityThreshold)
			if err != nil {
				return err
			}
		}
		if existing == nil {
			return nil
		}
		return m.store.DeleteProfileEntry(ctx, existing.ID)

	default:
		return memerr.ErrInvalidArgument.WithMessagef("unknown profile command %q", cmd.Command)
	}
}

func mergeCitations(existing, fresh []string) []string {
	seen := make(map[string]bool, len(existing)+len(fresh))
	out := make([]string, 0, len(existing)+len(fresh))
	for _, c := range append(append([]string{}, existing...), fresh...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// perUserLocks enforces the policy that at most one concurrent extraction
// may run per user.
type perUserLocks struct {
	mu      sync.Mutex
	running map[string]bool
}

func newPerUserLocks() *perUserLocks {
	return &perUserLocks{running: make(map[string]bool)}
}

func (l *perUserLocks) tryLock(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running[userID] {
		return false
	}
	l.running[userID] = true
	return true
}

func (l *perUserLocks) unlock(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, userID)
}
