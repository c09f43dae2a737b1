package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/agentmem/internal/memory/embed"
	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/metrics"
	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/kart-io/agentmem/pkg/infra/pool"
)

const (
	// DefaultHistoryBatchSize is K, the number of uningested history
	// entries read per extraction job.
	DefaultHistoryBatchSize = 20
	// DefaultUpdateSimilarityThreshold is the minimum cosine similarity an
	// update/delete command's value must clear against an existing entry
	// when no exact (tag, feature, value) match exists.
	DefaultUpdateSimilarityThreshold = 0.85
	// DefaultConsolidationThreshold is the entry count above which a
	// (tag, feature) group becomes eligible for consolidation.
	DefaultConsolidationThreshold = 20
	// DefaultTrackerInterval is how often the background loop polls for
	// users due for extraction.
	DefaultTrackerInterval = 10 * time.Second
	// DefaultConsolidationInterval is how often the background loop runs a
	// consolidation sweep.
	DefaultConsolidationInterval = 5 * time.Minute
	// DefaultMessageLimit is the tracker's pending-message threshold.
	DefaultMessageLimit = 10
	// DefaultTimeLimit is the tracker's pending-time threshold.
	DefaultTimeLimit = 60 * time.Second
	// DefaultShutdownGrace bounds how long Shutdown waits for in-flight
	// jobs before abandoning them.
	DefaultShutdownGrace = 10 * time.Second
)

// Config wires a Memory instance.
type Config struct {
	Store    Store
	LLM      llm.ChatProvider
	Embedder embed.Provider

	// Metrics receives extraction-outcome counts. Optional; a nil factory
	// records nothing.
	Metrics *metrics.Factory

	HistoryBatchSize          int
	UpdateSimilarityThreshold float64
	ConsolidationThreshold    int
	TrackerInterval           time.Duration
	ConsolidationInterval     time.Duration
	MessageLimit              int
	TimeLimit                 time.Duration
	ShutdownGrace             time.Duration
	UpdatePrompt              string
	ConsolidationPrompt       string
}

// Memory is the Profile Memory component: a durable history log plus a
// mutable tagged profile store, kept up to date by an out-of-band
// extraction/consolidation loop and queried via semantic search.
type Memory struct {
	store    Store
	llm      llm.ChatProvider
	embedder embed.Provider
	metrics  *metrics.Factory

	trackers *TrackerManager

	historyBatchSize          int
	updateSimilarityThreshold float64
	consolidationThreshold    int
	trackerInterval           time.Duration
	consolidationInterval     time.Duration
	shutdownGrace             time.Duration
	updatePrompt              string
	consolidationPrompt       string

	extractionLocks *perUserLocks

	stop chan struct{}
	done chan struct{}
}

// New validates cfg and builds a Memory. The background loop is not started
// until Startup is called.
func New(cfg Config) (*Memory, error) {
	switch {
	case cfg.Store == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("profile memory: store is required")
	case cfg.LLM == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("profile memory: llm is required")
	case cfg.Embedder == nil:
		return nil, memerr.ErrInvalidConfig.WithMessage("profile memory: embedder is required")
	}

	m := &Memory{
		store:                     cfg.Store,
		llm:                       cfg.LLM,
		embedder:                  cfg.Embedder,
		metrics:                   cfg.Metrics,
		historyBatchSize:          orDefault(cfg.HistoryBatchSize, DefaultHistoryBatchSize),
		updateSimilarityThreshold: orDefaultF(cfg.UpdateSimilarityThreshold, DefaultUpdateSimilarityThreshold),
		consolidationThreshold:    orDefault(cfg.ConsolidationThreshold, DefaultConsolidationThreshold),
		trackerInterval:           orDefaultD(cfg.TrackerInterval, DefaultTrackerInterval),
		consolidationInterval:     orDefaultD(cfg.ConsolidationInterval, DefaultConsolidationInterval),
		shutdownGrace:             orDefaultD(cfg.ShutdownGrace, DefaultShutdownGrace),
		updatePrompt:              cfg.UpdatePrompt,
		consolidationPrompt:       cfg.ConsolidationPrompt,
		extractionLocks:           newPerUserLocks(),
	}
	if m.updatePrompt == "" {
		m.updatePrompt = DefaultUpdatePrompt
	}
	if m.consolidationPrompt == "" {
		m.consolidationPrompt = DefaultConsolidationPrompt
	}

	messageLimit := orDefault(cfg.MessageLimit, DefaultMessageLimit)
	timeLimit := orDefaultD(cfg.TimeLimit, DefaultTimeLimit)
	m.trackers = NewTrackerManager(messageLimit, timeLimit)

	return m, nil
}

// AddPersonaMessage ingests one persona message: it prefixes the content
// with a speaker tag when metadata carries one, appends it to the history
// log, and marks the user for future extraction. Extraction itself runs
// out-of-band on the background loop.
func (m *Memory) AddPersonaMessage(ctx context.Context, content, userID string, metadata map[string]any, isolations Isolations) error {
	if userID == "" {
		return memerr.ErrInvalidArgument.WithMessage("add_persona_message: user_id is required")
	}

	stored := content
	if speaker, ok := metadata["speaker"].(string); ok && speaker != "" {
		stored = fmt.Sprintf("%s sends '%s'", speaker, content)
	}

	if err := m.store.AppendHistory(ctx, &HistoryEntry{
		UserID: userID, Content: stored, Metadata: metadata, Isolations: isolations, Timestamp: time.Now(),
	}); err != nil {
		return err
	}

	m.trackers.Mark(userID)
	return nil
}

// GetUserProfile returns the user's current profile grouped tag -> feature
// -> value(s).
func (m *Memory) GetUserProfile(ctx context.Context, userID string, isolations Isolations) (Profile, error) {
	entries, err := m.store.ListProfileEntries(ctx, userID, isolations)
	if err != nil {
		return nil, err
	}
	return BuildProfile(entries), nil
}

// AddNewProfile inserts a profile entry directly (bypassing extraction),
// e.g. for seeding a profile from an external source.
func (m *Memory) AddNewProfile(ctx context.Context, userID, tag, feature, value string, isolations Isolations) error {
	if userID == "" || feature == "" {
		return memerr.ErrInvalidArgument.WithMessage("add_new_profile: user_id and feature are required")
	}
	embedding, err := m.embedder.EmbedSingle(ctx, feature+": "+value)
	if err != nil {
		return memerr.FromExternal(err)
	}
	return m.store.AddProfileEntry(ctx, &ProfileEntry{
		UserID: userID, Tag: tag, Feature: feature, Value: value, Embedding: embedding, Isolations: isolations,
	})
}

// DeleteUserProfileFeature removes every entry in one (tag, feature) group.
func (m *Memory) DeleteUserProfileFeature(ctx context.Context, userID, tag, feature string, isolations Isolations) error {
	return m.store.DeleteUserProfileFeature(ctx, userID, isolations, tag, feature)
}

// DeleteUserProfile removes every profile entry for userID across every
// isolation namespace.
func (m *Memory) DeleteUserProfile(ctx context.Context, userID string) error {
	return m.store.DeleteUserProfile(ctx, userID)
}

// SemanticSearch embeds query and returns the top-k profile entries whose
// similarity clears minSimilarity, sorted descending by similarity.
// Citations are resolved to their history content when includeCitations is
// set.
func (m *Memory) SemanticSearch(ctx context.Context, userID, query string, k int, minSimilarity float64, isolations Isolations, hasIsolations, includeCitations bool) ([]*ScoredEntry, error) {
	if query == "" {
		return nil, memerr.ErrInvalidArgument.WithMessage("semantic_search: query is required")
	}
	queryVec, err := m.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, memerr.FromExternal(err)
	}

	results, err := m.store.SearchSimilar(ctx, userID, isolations, hasIsolations, queryVec, k, minSimilarity)
	if err != nil {
		return nil, err
	}

	if includeCitations {
		for _, r := range results {
			if len(r.Entry.Citations) == 0 {
				continue
			}
			history, err := m.store.HistoryByIDs(ctx, r.Entry.Citations)
			if err != nil {
				logger.Warnw("semantic_search: citation resolution failed", "entry_id", r.Entry.ID, "error", err.Error())
				continue
			}
			r.Citations = history
		}
	}
	return results, nil
}

// Startup launches the background loop: a tracker-poll tick that dispatches
// extraction jobs for due users, and a consolidation tick, both submitted to
// the shared extraction pool rather than bare goroutines so
// concurrency stays capped. Safe to call once per Memory instance.
func (m *Memory) Startup(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx)
}

func (m *Memory) loop(ctx context.Context) {
	defer close(m.done)

	trackerTicker := time.NewTicker(m.trackerInterval)
	defer trackerTicker.Stop()
	consolidationTicker := time.NewTicker(m.consolidationInterval)
	defer consolidationTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-trackerTicker.C:
			m.dispatchDueExtractions(ctx)
		case <-consolidationTicker.C:
			m.dispatchConsolidation(ctx)
		}
	}
}

func (m *Memory) dispatchDueExtractions(ctx context.Context) {
	for _, userID := range m.trackers.GetUsersToUpdate() {
		userID := userID
		task := func() { m.runExtraction(ctx, userID) }
		if p, err := pool.GetByType(pool.ExtractionPool); err == nil && p != nil {
			if submitErr := p.Submit(task); submitErr != nil {
				task()
			}
		} else {
			task()
		}
	}
}

func (m *Memory) dispatchConsolidation(ctx context.Context) {
	task := func() { m.runConsolidation(ctx) }
	if p, err := pool.GetByType(pool.ExtractionPool); err == nil && p != nil {
		if submitErr := p.Submit(task); submitErr != nil {
			task()
		}
	} else {
		task()
	}
}

// Shutdown signals the background loop to exit and waits up to
// shutdownGrace for it to do so. In-flight extraction jobs dispatched on the
// shared pool are not awaited beyond that grace period; their history
// entries remain unmarked and are retried after the next startup.
func (m *Memory) Shutdown() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	select {
	case <-m.done:
	case <-time.After(m.shutdownGrace):
		logger.Warnw("profile memory: shutdown grace period elapsed, background loop may still be finishing")
	}
}

// Close releases the underlying store.
func (m *Memory) Close() error {
	return m.store.Close()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultF(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultD(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
