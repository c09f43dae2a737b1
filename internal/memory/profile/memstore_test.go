package profile_test

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/kart-io/agentmem/internal/memory/profile"
	"github.com/kart-io/agentmem/pkg/id"
)

// memStore is an in-process stand-in for profile.MongoStore, used across
// this package's tests so they never need a live MongoDB instance. It
// implements profile.Store with simple linear scans over guarded slices.
type memStore struct {
	mu      sync.Mutex
	history []*profile.HistoryEntry
	entries []*profile.ProfileEntry
}

func newMemStore() *memStore {
	return &memStore{}
}

var _ profile.Store = (*memStore)(nil)

func (s *memStore) AppendHistory(_ context.Context, entry *profile.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = id.NewULID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	cp := *entry
	s.history = append(s.history, &cp)
	return nil
}

func (s *memStore) UningestedHistory(_ context.Context, userID string, isolations profile.Isolations, limit int) ([]*profile.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*profile.HistoryEntry
	for _, e := range s.history {
		if e.UserID == userID && !e.Ingested && e.Isolations.Key() == isolations.Key() {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkIngested(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	for _, e := range s.history {
		if set[e.ID] {
			e.Ingested = true
		}
	}
	return nil
}

func (s *memStore) HistoryByIDs(_ context.Context, ids []string) ([]*profile.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	var out []*profile.HistoryEntry
	for _, e := range s.history {
		if set[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) DeleteHistoryRange(_ context.Context, userID string, isolations profile.Isolations, from, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*profile.HistoryEntry
	for _, e := range s.history {
		if e.UserID == userID && e.Isolations.Key() == isolations.Key() && !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			continue
		}
		kept = append(kept, e)
	}
	s.history = kept
	return nil
}

func (s *memStore) AddProfileEntry(_ context.Context, entry *profile.ProfileEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = id.NewULID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memStore) FindProfileEntryByValue(_ context.Context, userID string, isolations profile.Isolations, tag, feature, value string) (*profile.ProfileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.UserID == userID && e.Isolations.Key() == isolations.Key() && e.Tag == tag && e.Feature == feature && e.Value == value {
			return e, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindProfileEntryBySimilarity(_ context.Context, userID string, isolations profile.Isolations, tag, feature string, embedding []float32, minSimilarity float64) (*profile.ProfileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *profile.ProfileEntry
	bestSim := -2.0
	for _, e := range s.entries {
		if e.UserID != userID || e.Isolations.Key() != isolations.Key() || e.Tag != tag || e.Feature != feature {
			continue
		}
		sim := cosineTest(embedding, e.Embedding)
		if sim > bestSim {
			bestSim, best = sim, e
		}
	}
	if best == nil || bestSim < minSimilarity {
		return nil, nil
	}
	return best, nil
}

func (s *memStore) UpdateProfileEntry(_ context.Context, id string, value string, embedding []float32, citations []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			e.Value, e.Embedding, e.Citations = value, embedding, citations
			return nil
		}
	}
	return nil
}

func (s *memStore) DeleteProfileEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*profile.ProfileEntry
	for _, e := range s.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func (s *memStore) ListProfileEntries(_ context.Context, userID string, isolations profile.Isolations) ([]*profile.ProfileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*profile.ProfileEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListProfileEntriesByFeature(_ context.Context, userID string, isolations profile.Isolations, tag, feature string) ([]*profile.ProfileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*profile.ProfileEntry
	for _, e := range s.entries {
		if e.UserID == userID && e.Isolations.Key() == isolations.Key() && e.Tag == tag && e.Feature == feature {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ReplaceProfileEntries(_ context.Context, userID string, isolations profile.Isolations, tag, feature string, replacement []*profile.ProfileEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*profile.ProfileEntry
	for _, e := range s.entries {
		if e.UserID == userID && e.Isolations.Key() == isolations.Key() && e.Tag == tag && e.Feature == feature {
			continue
		}
		kept = append(kept, e)
	}
	for _, e := range replacement {
		if e.ID == "" {
			e.ID = id.NewULID()
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return nil
}

func (s *memStore) GroupsAboveThreshold(_ context.Context, userID string, threshold int) ([]profile.FeatureGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]*profile.FeatureGroup{}
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		key := e.Isolations.Key() + "|" + e.Tag + "|" + e.Feature
		g, ok := counts[key]
		if !ok {
			g = &profile.FeatureGroup{Isolations: e.Isolations, Tag: e.Tag, Feature: e.Feature}
			counts[key] = g
		}
		g.Count++
	}
	var out []profile.FeatureGroup
	for _, g := range counts {
		if g.Count > threshold {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *memStore) UsersWithProfiles(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range s.entries {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			out = append(out, e.UserID)
		}
	}
	return out, nil
}

func (s *memStore) SearchSimilar(_ context.Context, userID string, isolations profile.Isolations, hasIsolations bool, queryVec []float32, k int, minSimilarity float64) ([]*profile.ScoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*profile.ScoredEntry
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if hasIsolations && e.Isolations.Key() != isolations.Key() {
			continue
		}
		sim := cosineTest(queryVec, e.Embedding)
		if sim >= minSimilarity {
			out = append(out, &profile.ScoredEntry{Entry: e, Similarity: sim})
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Similarity > out[i].Similarity {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *memStore) DeleteUserProfileFeature(_ context.Context, userID string, isolations profile.Isolations, tag, feature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*profile.ProfileEntry
	for _, e := range s.entries {
		if e.UserID == userID && e.Isolations.Key() == isolations.Key() && e.Tag == tag && e.Feature == feature {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return nil
}

func (s *memStore) DeleteUserProfile(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*profile.ProfileEntry
	for _, e := range s.entries {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func (s *memStore) Close() error { return nil }

func cosineTest(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
