package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostAndFlush(t *testing.T) {
	p := New(Config{Name: "test", MaxWorkers: 2})
	defer p.Shutdown()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Post(func() { ran.Add(1) }))
	}
	p.FlushForTesting()
	assert.Equal(t, int32(10), ran.Load())

	// the pool stays usable after a flush
	require.NoError(t, p.Post(func() { ran.Add(1) }))
	p.FlushForTesting()
	assert.Equal(t, int32(11), ran.Load())

	stats := p.Stats()
	assert.Equal(t, int64(11), stats.Posted)
	assert.Equal(t, int64(11), stats.Completed)
	assert.Equal(t, int64(2), stats.Flushes)
}

func TestPostAfterShutdown(t *testing.T) {
	p := New(DefaultConfig())
	p.Shutdown()
	p.Shutdown()
	assert.ErrorIs(t, p.Post(func() {}), ErrShutdown)
}

func TestMaxWorkersFloor(t *testing.T) {
	p := New(Config{Name: "zero"})
	defer p.Shutdown()
	assert.Equal(t, 1, p.config.MaxWorkers)
	assert.Equal(t, "zero", p.Name())
}

func TestSetInstanceReturnsPrevious(t *testing.T) {
	a := New(DefaultConfig())
	b := New(DefaultConfig())
	defer a.Shutdown()
	defer b.Shutdown()

	orig := SetInstance(a)
	defer SetInstance(orig)

	assert.Same(t, a, Instance())
	assert.Same(t, a, SetInstance(b))
	assert.Same(t, b, Instance())
}

func TestTaskReadsStatsWhilePostWaits(t *testing.T) {
	p := New(Config{Name: "single", MaxWorkers: 1})
	defer p.Shutdown()

	running := make(chan struct{})
	proceed := make(chan struct{})
	statsRead := make(chan Stats, 1)
	require.NoError(t, p.Post(func() {
		close(running)
		<-proceed
		statsRead <- p.Stats()
	}))
	<-running

	posted := make(chan error, 1)
	go func() { posted <- p.Post(func() {}) }()
	assert.Eventually(t, func() bool { return p.Stats().Posted == 2 }, time.Second, time.Millisecond)

	close(proceed)
	select {
	case st := <-statsRead:
		assert.Equal(t, int64(2), st.Posted)
	case <-time.After(2 * time.Second):
		t.Fatal("running task blocked in Stats while a post waited for a worker")
	}
	require.NoError(t, <-posted)

	p.FlushForTesting()
	assert.Equal(t, int64(2), p.Stats().Completed)
	assert.Equal(t, int64(1), p.Stats().Flushes)
}

func TestTaskPostsFollowUp(t *testing.T) {
	p := New(Config{Name: "chained", MaxWorkers: 2})
	defer p.Shutdown()

	var ran atomic.Int32
	done := make(chan struct{})
	require.NoError(t, p.Post(func() {
		ran.Add(1)
		assert.NoError(t, p.Post(func() {
			ran.Add(1)
			close(done)
		}))
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up task never ran")
	}
	p.FlushForTesting()
	assert.Equal(t, int32(2), ran.Load())
}
