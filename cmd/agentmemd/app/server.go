package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/agentmem/cmd/agentmemd/app/options"
	"github.com/kart-io/agentmem/internal/memory/declarative"
	"github.com/kart-io/agentmem/internal/memory/embed"
	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/profile"
	"github.com/kart-io/agentmem/internal/memory/service"
	"github.com/kart-io/agentmem/internal/memory/session"
	"github.com/kart-io/agentmem/internal/memory/shortterm"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	"github.com/kart-io/agentmem/internal/metrics"
	"github.com/kart-io/agentmem/internal/resourceinit"
	"github.com/kart-io/agentmem/pkg/infra/pool"
)

// healthProbeInterval is how often the store/profile health probes run.
const healthProbeInterval = 30 * time.Second

// Server owns every long-lived resource the memory engine needs and tears
// them down, in reverse build order, on shutdown.
type Server struct {
	opts *options.ServerOptions

	resources    *resourceinit.Result
	store        vectorgraph.Store
	sessionMgr   *session.Manager
	profileStore *profile.MongoStore
	profileMem   *profile.Memory
	declMem      *declarative.Memory
	shortTerm    *shortterm.Manager
	episodic     *service.Memory
	sweeper      *declarative.Sweeper
}

// NewServer builds the full resource graph: the Resource Initializer's
// variant-selected components (embedder, language model, store, reranker,
// deriver, mutator, postulator, declarative memory, metrics factory), plus
// the Session Manager and Profile Memory, which are process-wide singletons
// rather than a variant family a registry picks between.
func NewServer(ctx context.Context, opts *options.ServerOptions) (*Server, error) {
	pool.InitGlobal()

	initializer := &resourceinit.Initializer{}
	result, err := initializer.Build(ctx, opts.Definitions())
	if err != nil {
		return nil, fmt.Errorf("build resource graph: %w", err)
	}

	declMem, ok := result.Instances[options.ResourceDeclarative].(*declarative.Memory)
	if !ok {
		_ = result.Close()
		return nil, fmt.Errorf("build resource graph: declarative_memory did not build a *declarative.Memory")
	}
	embedder, _ := result.Instances[options.ResourceEmbedder].(embed.Provider)
	chatModel, _ := result.Instances[options.ResourceLanguageModel].(llm.ChatProvider)
	store, _ := result.Instances[options.ResourceStore].(vectorgraph.Store)
	metricsFactory, _ := result.Instances[options.ResourceMetricsFactory].(*metrics.Factory)
	shortTermMgr, ok := result.Instances[options.ResourceShortTerm].(*shortterm.Manager)
	if !ok {
		_ = result.Close()
		return nil, fmt.Errorf("build resource graph: short_term_memory did not build a *shortterm.Manager")
	}

	sessionMgr, err := session.Open(opts.Session.DSN)
	if err != nil {
		_ = result.Close()
		return nil, fmt.Errorf("open session manager: %w", err)
	}

	profileStore, err := profile.OpenMongoStore(ctx, opts.Profile.Mongo)
	if err != nil {
		_ = sessionMgr.Close()
		_ = result.Close()
		return nil, fmt.Errorf("open profile store: %w", err)
	}

	profileMem, err := profile.New(profile.Config{
		Store:                     profileStore,
		LLM:                       chatModel,
		Embedder:                  embedder,
		Metrics:                   metricsFactory,
		HistoryBatchSize:          opts.Profile.HistoryBatchSize,
		UpdateSimilarityThreshold: opts.Profile.UpdateSimilarityThreshold,
		ConsolidationThreshold:    opts.Profile.ConsolidationThreshold,
		TrackerInterval:           opts.Profile.TrackerInterval,
		ConsolidationInterval:     opts.Profile.ConsolidationInterval,
		ShutdownGrace:             opts.ShutdownTimeout,
	})
	if err != nil {
		_ = profileStore.Close()
		_ = sessionMgr.Close()
		_ = result.Close()
		return nil, fmt.Errorf("build profile memory: %w", err)
	}

	episodic, err := service.New(declMem, shortTermMgr)
	if err != nil {
		_ = profileStore.Close()
		_ = sessionMgr.Close()
		_ = result.Close()
		return nil, fmt.Errorf("build memory service: %w", err)
	}

	return &Server{
		opts:         opts,
		resources:    result,
		store:        store,
		sessionMgr:   sessionMgr,
		profileStore: profileStore,
		profileMem:   profileMem,
		declMem:      declMem,
		shortTerm:    shortTermMgr,
		episodic:     episodic,
		sweeper:      declarative.NewSweeper(declMem, 0, 0),
	}, nil
}

// Episodic returns the typed episodic-memory API surface external callers
// (the HTTP layer, domain servers) consume.
func (s *Server) Episodic() service.EpisodicMemory { return s.episodic }

// Declarative returns the episodic memory orchestrator.
func (s *Server) Declarative() *declarative.Memory { return s.declMem }

// Profile returns the profile memory component.
func (s *Server) Profile() *profile.Memory { return s.profileMem }

// Session returns the session manager.
func (s *Server) Session() *session.Manager { return s.sessionMgr }

// ShortTerm returns the per-session working-memory manager.
func (s *Server) ShortTerm() *shortterm.Manager { return s.shortTerm }

// Run starts Profile Memory's background loop, the replay sweeper, and the
// storage health probes, then blocks until ctx is canceled and tears every
// resource down in reverse build order.
func (s *Server) Run(ctx context.Context) error {
	s.profileMem.Startup(ctx)
	go s.sweeper.Start(ctx)
	go s.healthLoop(ctx)
	logger.Infow("agentmemd: server started", "store", s.opts.Store.Backend, "reranker", s.opts.Reranker)

	<-ctx.Done()
	logger.Infow("agentmemd: shutdown signal received")

	s.sweeper.Stop()
	s.profileMem.Shutdown()

	var errs []error
	if err := s.profileMem.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close profile memory: %w", err))
	}
	if err := s.sessionMgr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session manager: %w", err))
	}
	if err := s.resources.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close resource graph: %w", err))
	}
	pool.CloseGlobal()

	return errors.Join(errs...)
}

// healthLoop periodically probes the vector-graph store and the profile
// store on the health-check pool, logging failures. Probes observe only;
// recovery is the stores' own concern (reconnects, driver retries).
func (s *Server) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	probe := func(name string, check func(context.Context) error) {
		task := func() {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := check(probeCtx); err != nil {
				logger.Warnw("health probe failed", "target", name, "error", err.Error())
			}
		}
		if p, err := pool.GetByType(pool.HealthCheckPool); err == nil && p != nil {
			if submitErr := p.Submit(task); submitErr != nil {
				task()
			}
		} else {
			task()
		}
	}

	mongoHealth := s.profileStore.Health()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.store != nil {
				probe("vector_graph_store", s.store.Ping)
			}
			probe("profile_store", func(context.Context) error { return mongoHealth() })
		}
	}
}
