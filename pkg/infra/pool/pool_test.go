package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kart-io/agentmem/pkg/infra/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmitRunsTask(t *testing.T) {
	p, err := pool.New("test-default", &pool.Config{Capacity: 4})
	require.NoError(t, err)
	defer p.Release()

	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(10), n.Load())
}

func TestPoolSubmitAfterReleaseFails(t *testing.T) {
	p, err := pool.New("test-closed", nil)
	require.NoError(t, err)

	p.Release()
	err = p.Submit(func() {})
	assert.ErrorIs(t, err, pool.ErrPoolClosed)
}

func TestSubmitWithContextSkipsAfterCancel(t *testing.T) {
	p, err := pool.New("test-ctx", &pool.Config{Capacity: 2})
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.SubmitWithContext(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManagerRegisterAndSubmit(t *testing.T) {
	mgr := pool.NewManager()
	require.NoError(t, mgr.RegisterType(pool.ExtractionPool, pool.ExtractionConfig()))

	done := make(chan struct{})
	require.NoError(t, mgr.Submit(string(pool.ExtractionPool), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	assert.Contains(t, mgr.List(), string(pool.ExtractionPool))
	mgr.ReleaseAll()
}

func TestManagerRegisterDuplicateFails(t *testing.T) {
	mgr := pool.NewManager()
	require.NoError(t, mgr.Register("dup", nil))
	err := mgr.Register("dup", nil)
	assert.ErrorIs(t, err, pool.ErrPoolAlreadyExists)
	mgr.ReleaseAll()
}

func TestGlobalInitAndReset(t *testing.T) {
	pool.ResetGlobal()
	defer pool.ResetGlobal()

	require.NoError(t, pool.InitGlobal())

	var ran atomic.Bool
	require.NoError(t, pool.SubmitToType(pool.RerankerPool, func() { ran.Store(true) }))

	assert.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
	assert.NotNil(t, pool.StatsGlobal())
}
