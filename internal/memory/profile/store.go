package profile

import (
	"context"
	"time"
)

// Store is the persistence contract profile memory drives: an append-only
// history log plus a mutable profile entry table, both partitioned by
// (user_id, isolations). MongoStore is the production implementation; the
// tests carry an in-process stand-in.
type Store interface {
	// AppendHistory appends entry to the history log, assigning it an ID if
	// empty.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error

	// UningestedHistory returns up to limit not-yet-ingested history entries
	// for user_id+isolations, oldest first.
	UningestedHistory(ctx context.Context, userID string, isolations Isolations, limit int) ([]*HistoryEntry, error)

	// MarkIngested flips the Ingested flag for the given history entry IDs.
	MarkIngested(ctx context.Context, ids []string) error

	// HistoryByIDs resolves history entries by ID, for citation display.
	HistoryByIDs(ctx context.Context, ids []string) ([]*HistoryEntry, error)

	// DeleteHistoryRange deletes history entries for user_id+isolations with
	// a timestamp in [from, to).
	DeleteHistoryRange(ctx context.Context, userID string, isolations Isolations, from, to time.Time) error

	// AddProfileEntry inserts a new profile entry, assigning it an ID if
	// empty.
	AddProfileEntry(ctx context.Context, entry *ProfileEntry) error

	// FindProfileEntryByValue locates an entry by exact (tag, feature,
	// value) match.
	FindProfileEntryByValue(ctx context.Context, userID string, isolations Isolations, tag, feature, value string) (*ProfileEntry, error)

	// FindProfileEntryBySimilarity locates the entry within (tag, feature)
	// whose embedding is most similar to embedding, provided it clears
	// minSimilarity. Returns nil, nil when nothing clears the threshold.
	FindProfileEntryBySimilarity(ctx context.Context, userID string, isolations Isolations, tag, feature string, embedding []float32, minSimilarity float64) (*ProfileEntry, error)

	// UpdateProfileEntry replaces an entry's value, embedding and citations.
	UpdateProfileEntry(ctx context.Context, id string, value string, embedding []float32, citations []string) error

	// DeleteProfileEntry removes one entry by ID.
	DeleteProfileEntry(ctx context.Context, id string) error

	// ListProfileEntries returns every entry for user_id+isolations.
	ListProfileEntries(ctx context.Context, userID string, isolations Isolations) ([]*ProfileEntry, error)

	// ListProfileEntriesByFeature returns every entry within one
	// (tag, feature) group, for the consolidation size check.
	ListProfileEntriesByFeature(ctx context.Context, userID string, isolations Isolations, tag, feature string) ([]*ProfileEntry, error)

	// ReplaceProfileEntries atomically swaps every entry in a (tag, feature)
	// group for replacement, used by the consolidation job.
	ReplaceProfileEntries(ctx context.Context, userID string, isolations Isolations, tag, feature string, replacement []*ProfileEntry) error

	// GroupsAboveThreshold returns the (isolations, tag, feature) groups for
	// userID whose entry count exceeds threshold.
	GroupsAboveThreshold(ctx context.Context, userID string, threshold int) ([]FeatureGroup, error)

	// UsersWithProfiles returns every distinct user_id with at least one
	// profile entry, for the consolidation sweep.
	UsersWithProfiles(ctx context.Context) ([]string, error)

	// SearchSimilar returns entries for userID (optionally scoped by
	// isolations) whose embedding clears minSimilarity against queryVec,
	// sorted descending by similarity, capped at k.
	SearchSimilar(ctx context.Context, userID string, isolations Isolations, hasIsolations bool, queryVec []float32, k int, minSimilarity float64) ([]*ScoredEntry, error)

	// DeleteUserProfileFeature removes every entry in one (tag, feature)
	// group for userID+isolations.
	DeleteUserProfileFeature(ctx context.Context, userID string, isolations Isolations, tag, feature string) error

	// DeleteUserProfile removes every profile entry for userID, across every
	// isolation namespace.
	DeleteUserProfile(ctx context.Context, userID string) error

	// Close releases the underlying connection.
	Close() error
}

// FeatureGroup identifies one (isolations, tag, feature) partition of a
// user's profile entries.
type FeatureGroup struct {
	Isolations Isolations
	Tag        string
	Feature    string
	Count      int
}
