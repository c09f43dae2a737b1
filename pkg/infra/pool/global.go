package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kart-io/logger"
)

var (
	globalManager            *Manager
	globalManagerMu          sync.Mutex
	globalManagerInitialized uint32
)

// GlobalConfig configures the standard pools registered by InitGlobal.
// A nil field skips registering that pool.
type GlobalConfig struct {
	DefaultPool     *Config
	HealthCheckPool *Config
	ExtractionPool  *Config
	RerankerPool    *Config
	SweeperPool     *Config
}

// DefaultGlobalConfig returns the standard pool sizing for this process.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		DefaultPool:     DefaultConfig(),
		HealthCheckPool: HealthCheckConfig(),
		ExtractionPool:  ExtractionConfig(),
		RerankerPool:    RerankerConfig(),
		SweeperPool:     SweeperConfig(),
	}
}

// InitGlobal initializes the global Manager with DefaultGlobalConfig. A no-op
// if already initialized.
func InitGlobal() error {
	return InitGlobalWithConfig(nil)
}

// InitGlobalWithConfig initializes the global Manager with config
// (DefaultGlobalConfig if nil).
func InitGlobalWithConfig(config *GlobalConfig) error {
	globalManagerMu.Lock()
	defer globalManagerMu.Unlock()

	if atomic.LoadUint32(&globalManagerInitialized) == 1 {
		return nil
	}
	if config == nil {
		config = DefaultGlobalConfig()
	}

	mgr := NewManager()
	pools := map[Type]*Config{
		DefaultPool:     config.DefaultPool,
		HealthCheckPool: config.HealthCheckPool,
		ExtractionPool:  config.ExtractionPool,
		RerankerPool:    config.RerankerPool,
		SweeperPool:     config.SweeperPool,
	}

	for t, cfg := range pools {
		if cfg == nil {
			continue
		}
		if err := mgr.RegisterType(t, cfg); err != nil {
			mgr.ReleaseAll()
			return err
		}
	}

	globalManager = mgr
	atomic.StoreUint32(&globalManagerInitialized, 1)
	logger.Infow("pool manager initialized", "pools", mgr.List())
	return nil
}

// GetGlobal returns the global Manager, auto-initializing it on first use.
func GetGlobal() *Manager {
	if atomic.LoadUint32(&globalManagerInitialized) == 0 {
		if err := InitGlobal(); err != nil {
			logger.Errorw("auto-init of global pool manager failed", "error", err)
			return nil
		}
	}
	return globalManager
}

// CloseGlobal releases the global Manager.
func CloseGlobal() error {
	globalManagerMu.Lock()
	defer globalManagerMu.Unlock()

	if atomic.LoadUint32(&globalManagerInitialized) == 0 {
		return nil
	}
	if globalManager != nil {
		globalManager.ReleaseAll()
		globalManager = nil
	}
	atomic.StoreUint32(&globalManagerInitialized, 0)
	return nil
}

// ResetGlobal tears the global Manager down without error handling. Test-only.
func ResetGlobal() {
	globalManagerMu.Lock()
	defer globalManagerMu.Unlock()

	if globalManager != nil {
		globalManager.ReleaseAll()
		globalManager = nil
	}
	atomic.StoreUint32(&globalManagerInitialized, 0)
}

// Submit dispatches task on the default pool.
func Submit(task func()) error {
	mgr := GetGlobal()
	if mgr == nil {
		return ErrManagerNotInitialized
	}
	return mgr.Submit(string(DefaultPool), task)
}

// SubmitTo dispatches task on the named pool.
func SubmitTo(name string, task func()) error {
	mgr := GetGlobal()
	if mgr == nil {
		return ErrManagerNotInitialized
	}
	return mgr.Submit(name, task)
}

// SubmitToType dispatches task on one of the standard pools.
func SubmitToType(t Type, task func()) error {
	return SubmitTo(string(t), task)
}

// SubmitWithContext dispatches a context-aware task on the default pool.
func SubmitWithContext(ctx context.Context, task func()) error {
	mgr := GetGlobal()
	if mgr == nil {
		return ErrManagerNotInitialized
	}
	return mgr.SubmitWithContext(ctx, string(DefaultPool), task)
}

// GetByType returns the standard pool registered under t.
func GetByType(t Type) (*Pool, error) {
	mgr := GetGlobal()
	if mgr == nil {
		return nil, ErrManagerNotInitialized
	}
	return mgr.GetType(t)
}

// StatsGlobal returns a snapshot of every pool registered with the global manager.
func StatsGlobal() map[string]Info {
	mgr := GetGlobal()
	if mgr == nil {
		return nil
	}
	return mgr.Stats()
}
