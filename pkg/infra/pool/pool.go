// Package pool provides a bounded-goroutine dispatch layer over
// github.com/panjf2000/ants/v2. Every cooperative task in the memory engine —
// profile extraction jobs, the replay sweeper, RRF sub-reranker fan-out,
// storage health checks — is submitted through a named Pool rather than a
// bare `go` statement, so that concurrency stays capped at what the deployed
// process was provisioned for instead of growing unbounded under load.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Type names the standard pools the resource initializer wires up.
type Type string

const (
	// DefaultPool is the general-purpose fallback pool.
	DefaultPool Type = "default"
	// HealthCheckPool runs storage client health probes.
	HealthCheckPool Type = "health-check"
	// ExtractionPool runs per-user profile extraction and consolidation jobs.
	ExtractionPool Type = "extraction"
	// RerankerPool runs RRF hybrid sub-reranker fan-out.
	RerankerPool Type = "reranker"
	// SweeperPool runs the declarative-memory replay sweeper.
	SweeperPool Type = "sweeper"
)

// Config configures a single named Pool.
type Config struct {
	// Capacity caps concurrent goroutines. 0 means unlimited (not recommended).
	Capacity int

	// ExpiryDuration is how long an idle worker survives before being reaped.
	ExpiryDuration time.Duration

	// PreAlloc preallocates the worker queue; worthwhile for large, hot pools.
	PreAlloc bool

	// Nonblocking makes Submit return ants.ErrPoolOverload immediately when full,
	// instead of blocking the caller.
	Nonblocking bool

	// MaxBlockingTasks caps waiters in blocking mode. 0 means unlimited.
	MaxBlockingTasks int

	// PanicHandler handles a recovered task panic. Defaults to a logging handler.
	PanicHandler func(any)
}

// DefaultConfig returns the configuration for DefaultPool: non-blocking,
// with a capacity of four workers per logical CPU (runtime.NumCPU).
func DefaultConfig() *Config {
	return &Config{Capacity: runtime.NumCPU() * 4, ExpiryDuration: 10 * time.Second, Nonblocking: true}
}

// HealthCheckConfig returns the configuration for HealthCheckPool.
func HealthCheckConfig() *Config {
	return &Config{Capacity: 100, ExpiryDuration: 30 * time.Second, PreAlloc: true, MaxBlockingTasks: 50}
}

// ExtractionConfig returns the configuration for ExtractionPool. Capacity is
// deliberately modest: extraction jobs call out to an LLM, and the shared-resource
// policy caps concurrency at one extraction per user regardless of pool size.
func ExtractionConfig() *Config {
	return &Config{Capacity: 32, ExpiryDuration: 60 * time.Second, MaxBlockingTasks: 256}
}

// RerankerConfig returns the configuration for RerankerPool.
func RerankerConfig() *Config {
	return &Config{Capacity: 64, ExpiryDuration: 5 * time.Second, PreAlloc: true, Nonblocking: false, MaxBlockingTasks: 512}
}

// SweeperConfig returns the configuration for SweeperPool.
func SweeperConfig() *Config {
	return &Config{Capacity: 16, ExpiryDuration: 60 * time.Second, MaxBlockingTasks: 64}
}

// Pool wraps an ants.Pool with task accounting and a default panic handler.
type Pool struct {
	name     string
	pool     *ants.Pool
	stats    poolStats
	closed   atomic.Bool
	closedMu sync.Mutex
}

type poolStats struct {
	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// Info is a point-in-time snapshot of a Pool's counters.
type Info struct {
	Name      string
	Running   int
	Free      int
	Capacity  int
	Waiting   int
	Submitted int64
	Completed int64
	Rejected  int64
	Panics    int64
}

// New creates a Pool named name with the given Config (DefaultConfig if nil).
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	opts := buildAntsOptions(name, config)
	antsPool, err := ants.NewPool(config.Capacity, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pool %q: %w", name, err)
	}

	return &Pool{name: name, pool: antsPool}, nil
}

func buildAntsOptions(name string, config *Config) []ants.Option {
	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPreAlloc(config.PreAlloc),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
	}

	handler := config.PanicHandler
	if handler == nil {
		handler = defaultPanicHandler(name)
	}
	return append(opts, ants.WithPanicHandler(handler))
}

func defaultPanicHandler(poolName string) func(any) {
	return func(r any) {
		logger.Errorw("goroutine panic recovered in pool",
			"pool", poolName,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)
	}
}

// Name returns the pool's name.
func (p *Pool) Name() string { return p.name }

// Submit dispatches task to the pool.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.stats.submitted.Add(1)
	wrapped := func() {
		defer func() {
			p.stats.completed.Add(1)
			if r := recover(); r != nil {
				p.stats.panics.Add(1)
				panic(r)
			}
		}()
		task()
	}

	if err := p.pool.Submit(wrapped); err != nil {
		p.stats.rejected.Add(1)
		return fmt.Errorf("submit to pool %q: %w", p.name, err)
	}
	return nil
}

// SubmitWithContext dispatches task unless ctx is already done, and skips
// running task if ctx completes before a worker picks it up.
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return p.Submit(func() {
		select {
		case <-ctx.Done():
			return
		default:
			task()
		}
	})
}

// Running returns the current number of running workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Free returns the number of idle workers.
func (p *Pool) Free() int { return p.pool.Free() }

// Cap returns the pool's capacity.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Waiting returns the number of blocked callers.
func (p *Pool) Waiting() int { return p.pool.Waiting() }

// IsClosed reports whether Release has been called.
func (p *Pool) IsClosed() bool { return p.closed.Load() }

// Tune dynamically resizes the pool.
func (p *Pool) Tune(size int) { p.pool.Tune(size) }

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Info {
	return Info{
		Name:      p.name,
		Running:   p.Running(),
		Free:      p.Free(),
		Capacity:  p.Cap(),
		Waiting:   p.Waiting(),
		Submitted: p.stats.submitted.Load(),
		Completed: p.stats.completed.Load(),
		Rejected:  p.stats.rejected.Load(),
		Panics:    p.stats.panics.Load(),
	}
}

// Release shuts the pool down. Idempotent.
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()
	if p.closed.Load() {
		return
	}
	p.closed.Store(true)
	p.pool.Release()
}

// ReleaseTimeout shuts the pool down, waiting up to timeout for in-flight
// tasks to drain.
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()
	if p.closed.Load() {
		return nil
	}
	p.closed.Store(true)
	return p.pool.ReleaseTimeout(timeout)
}
