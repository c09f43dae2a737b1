package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
)

// runConsolidation is the consolidation job: for every (isolations,
// tag, feature) group across all users whose entry count exceeds
// consolidationThreshold, invoke the LLM's consolidation prompt over the
// group's values and replace the group with the reduced set, merging
// citations. A failure for one group is logged and skipped; it never blocks
// other groups or tears down the background loop.
func (m *Memory) runConsolidation(ctx context.Context) {
	users, err := m.store.UsersWithProfiles(ctx)
	if err != nil {
		logger.Warnw("profile consolidation: list users failed", "error", err.Error())
		return
	}

	for _, userID := range users {
		groups, err := m.store.GroupsAboveThreshold(ctx, userID, m.consolidationThreshold)
		if err != nil {
			logger.Warnw("profile consolidation: list groups failed", "user_id", userID, "error", err.Error())
			continue
		}
		for _, g := range groups {
			if err := m.consolidateGroup(ctx, userID, g); err != nil {
				logger.Warnw("profile consolidation: group failed, will retry next cycle",
					"user_id", userID, "tag", g.Tag, "feature", g.Feature, "error", err.Error())
			}
		}
	}
}

func (m *Memory) consolidateGroup(ctx context.Context, userID string, g FeatureGroup) error {
	entries, err := m.store.ListProfileEntriesByFeature(ctx, userID, g.Isolations, g.Tag, g.Feature)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	values := make([]string, len(entries))
	citations := make([]string, 0)
	for i, e := range entries {
		values[i] = e.Value
		citations = append(citations, e.Citations...)
	}
	citations = mergeCitations(nil, citations)

	prompt := fmt.Sprintf(m.consolidationPrompt, strings.Join(values, "\n"))
	resp, err := m.llm.Generate(ctx, prompt, "")
	if err != nil {
		return err
	}

	reduced, err := ParseConsolidation(resp.Content)
	if err != nil {
		return err
	}
	if len(reduced) == 0 {
		return nil
	}

	replacement := make([]*ProfileEntry, 0, len(reduced))
	for _, value := range reduced {
		embedding, err := m.embedder.EmbedSingle(ctx, g.Feature+": "+value)
		if err != nil {
			return err
		}
		replacement = append(replacement, &ProfileEntry{
			UserID: userID, Tag: g.Tag, Feature: g.Feature, Value: value,
			Embedding: embedding, Isolations: g.Isolations, Citations: citations,
		})
	}

	return m.store.ReplaceProfileEntries(ctx, userID, g.Isolations, g.Tag, g.Feature, replacement)
}
