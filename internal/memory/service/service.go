// Package service is the typed in-process surface external callers consume
// (the HTTP layer, domain servers, evaluation harnesses). It composes
// declarative memory with the per-session working-memory tier behind the
// episodic operations, so callers never touch the orchestrators directly.
package service

import (
	"context"
	"time"

	"github.com/kart-io/agentmem/internal/memory/declarative"
	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/shortterm"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

// EpisodicMemory is the episodic-memory API surface.
type EpisodicMemory interface {
	// AddMemoryEpisode ingests one utterance produced by producer for
	// producedFor within scope.
	AddMemoryEpisode(ctx context.Context, scope model.Scope, producer, producedFor, content, episodeType string, contentType model.ContentType, timestamp time.Time, metadata map[string]any) error

	// QueryMemory returns ranked derivatives, their deduplicated source
	// episodes, and a per-derivative score map, scoped to scope plus filter.
	QueryMemory(ctx context.Context, scope model.Scope, query string, limit int, filter model.FilterableProperties) (*QueryResult, error)

	// DeleteData purges every episode and derivative within scope.
	DeleteData(ctx context.Context, scope model.Scope) error

	// Close releases the underlying store. Idempotent.
	Close() error
}

// QueryResult is QueryMemory's response: ranked derivatives, their
// deduplicated source episodes, and the score each derivative ranked by.
type QueryResult struct {
	Derivatives []*model.Derivative
	Episodes    []*model.Episode
	Scores      map[string]float64
	Degraded    bool
}

// Memory implements EpisodicMemory over declarative memory, mirroring each
// ingested episode into the session's working-memory window when a
// short-term manager is attached.
type Memory struct {
	decl      *declarative.Memory
	shortTerm *shortterm.Manager
}

var _ EpisodicMemory = (*Memory)(nil)

// New builds the service facade. shortTerm may be nil when no per-session
// working memory is wanted.
func New(decl *declarative.Memory, shortTerm *shortterm.Manager) (*Memory, error) {
	if decl == nil {
		return nil, memerr.ErrInvalidConfig.WithMessage("memory service: declarative memory is required")
	}
	return &Memory{decl: decl, shortTerm: shortTerm}, nil
}

// AddMemoryEpisode implements EpisodicMemory.
func (m *Memory) AddMemoryEpisode(ctx context.Context, scope model.Scope, producer, producedFor, content, episodeType string, contentType model.ContentType, timestamp time.Time, metadata map[string]any) error {
	if scope.GroupID == "" || scope.SessionID == "" {
		return memerr.ErrInvalidArgument.WithMessage("add_memory_episode: scope group_id and session_id are required")
	}
	if content == "" {
		return memerr.ErrInvalidArgument.WithMessage("add_memory_episode: episode content is required")
	}

	props := scope.AsFilterableProperties()
	if producer != "" {
		props["producer_id"] = producer
	}
	if producedFor != "" {
		props["produced_for"] = producedFor
	}

	episode := &model.Episode{
		EpisodeType:          episodeType,
		ContentType:          contentType,
		Content:              content,
		Timestamp:            timestamp,
		ProducerID:           producer,
		FilterableProperties: props,
		UserMetadata:         metadata,
	}

	if _, err := m.decl.Ingest(ctx, episode); err != nil {
		return err
	}

	if m.shortTerm != nil {
		window, err := m.shortTerm.Get(scope.GroupID, scope.SessionID)
		if err != nil {
			return err
		}
		return window.AddEpisode(ctx, episode)
	}
	return nil
}

// QueryMemory implements EpisodicMemory. filter entries are layered on top
// of the scope's own properties, so a caller can narrow further (e.g. one
// user within the session) but never widen past the scope.
func (m *Memory) QueryMemory(ctx context.Context, scope model.Scope, query string, limit int, filter model.FilterableProperties) (*QueryResult, error) {
	if query == "" {
		return nil, memerr.ErrInvalidArgument.WithMessage("query_memory: query is required")
	}

	props := scope.AsFilterableProperties()
	for k, v := range filter {
		if _, scoped := props[k]; scoped {
			continue
		}
		props[k] = v
	}

	resp, err := m.decl.Query(ctx, query, props, limit)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		Episodes: resp.SourceEpisodes,
		Scores:   make(map[string]float64, len(resp.Results)),
		Degraded: resp.Degraded,
	}
	for _, r := range resp.Results {
		result.Derivatives = append(result.Derivatives, r.Derivative)
		result.Scores[r.Derivative.ID] = r.Score
	}
	return result, nil
}

// DeleteData implements EpisodicMemory. The session's working-memory window
// is dropped along with the persisted subgraph.
func (m *Memory) DeleteData(ctx context.Context, scope model.Scope) error {
	if err := m.decl.DeleteData(ctx, scope.AsFilterableProperties()); err != nil {
		return err
	}
	if m.shortTerm != nil {
		return m.shortTerm.Drop(scope.GroupID, scope.SessionID)
	}
	return nil
}

// Close implements EpisodicMemory.
func (m *Memory) Close() error {
	if m.shortTerm != nil {
		_ = m.shortTerm.Close()
	}
	return m.decl.Close()
}
