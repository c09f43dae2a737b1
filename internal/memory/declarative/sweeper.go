package declarative

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/agentmem/internal/memory/model"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	"github.com/kart-io/agentmem/pkg/infra/pool"
)

// DefaultSweepInterval is the replay sweeper's polling interval when none is
// configured.
const DefaultSweepInterval = 30 * time.Second

// DefaultSweepBatchSize bounds how many incomplete episodes one sweep tick
// re-derives, so a backlog cannot monopolize the sweeper pool indefinitely.
const DefaultSweepBatchSize = 50

// Sweeper periodically re-runs the derivation pipeline (ingest steps 2-6)
// for episodes whose derivations_complete flag is still false, dispatched on
// the shared sweeper pool. It never blocks new ingestion: failures are
// logged and retried on the next tick.
type Sweeper struct {
	memory    *Memory
	interval  time.Duration
	batchSize int

	stop chan struct{}
	done chan struct{}
}

// NewSweeper builds a Sweeper over memory. interval and batchSize fall back
// to DefaultSweepInterval/DefaultSweepBatchSize when <= 0.
func NewSweeper(memory *Memory, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &Sweeper{memory: memory, interval: interval, batchSize: batchSize, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the sweeper's ticking loop until Stop is called. It is intended
// to be invoked once at process startup, typically via go sweeper.Start(ctx).
func (s *Sweeper) Start(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop signals the sweeper's loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) tick(ctx context.Context) {
	pending, err := s.memory.store.SearchDirectionalNodes(
		ctx,
		[]string{vectorgraph.LabelEpisode},
		model.FilterableProperties{vectorgraph.DerivationsCompleteProperty: false},
		"timestamp",
		vectorgraph.Ascending,
		nil,
		s.batchSize,
	)
	if err != nil {
		logger.Warnw("replay sweeper: scan for incomplete episodes failed, retrying next tick", "error", err.Error())
		return
	}

	for _, node := range pending {
		episode := vectorgraph.EpisodeFromNode(node)
		task := func() {
			if err := s.memory.deriveAndPersist(ctx, episode); err != nil {
				logger.Warnw("replay sweeper: derivation retry failed, will retry next tick", "episode_id", episode.ID, "error", err.Error())
			}
		}
		if p, err := pool.GetByType(pool.SweeperPool); err == nil && p != nil {
			if submitErr := p.Submit(task); submitErr != nil {
				task()
			}
		} else {
			task()
		}
	}
}
