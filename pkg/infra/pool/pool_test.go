package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolRejectsZeroCapacity(t *testing.T) {
	_, err := NewPool(SearchPool, SearchPoolConfig(0))
	assert.Error(t, err)

	_, err = NewPool(SearchPool, nil)
	assert.Error(t, err)
}

func TestSubmitRunsTasks(t *testing.T) {
	p, err := NewPool(SearchPool, SearchPoolConfig(4))
	require.NoError(t, err)
	defer p.Release()

	var (
		wg    sync.WaitGroup
		count atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(20), count.Load())
	assert.Equal(t, 4, p.Cap())
	assert.Eventually(t, func() bool { return p.Stats().Completed == 20 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(20), p.Stats().Submitted)
}

func TestSearchPoolRejectsWhenFull(t *testing.T) {
	p, err := NewPool(SearchPool, SearchPoolConfig(1))
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-block }))
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolOverload)
	close(block)

	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestPanicIsRecovered(t *testing.T) {
	recovered := make(chan any, 1)
	cfg := SearchPoolConfig(1)
	cfg.PanicHandler = func(r any) { recovered <- r }

	p, err := NewPool(SearchPool, cfg)
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Submit(func() { panic("boom") }))

	select {
	case r := <-recovered:
		assert.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
	assert.Equal(t, int64(1), p.Stats().Panics)
}

func TestSubmitAfterRelease(t *testing.T) {
	p, err := NewPool(SearchPool, SearchPoolConfig(1))
	require.NoError(t, err)
	p.Release()
	p.Release()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}
