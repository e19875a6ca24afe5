// Package workerpool provides the process-wide pool that background work is
// posted to. Tests that need a private pool install one with SetInstance and
// must restore the previous pool before the case ends.
package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/psantana5/testsuite/pkg/logging"
)

// ErrShutdown is returned by Post after Shutdown.
var ErrShutdown = errors.New("worker pool is shut down")

// Config sizes a pool
type Config struct {
	Name       string
	MaxWorkers int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{Name: "default", MaxWorkers: 4}
}

// Stats tracks pool activity
type Stats struct {
	Posted       int64
	Completed    int64
	Flushes      int64
	LastFlush    time.Time
	LastFlushDur time.Duration
}

// Pool runs posted tasks on a bounded number of goroutines
type Pool struct {
	config Config

	// gate is held shared while a task is handed to workers and exclusively
	// while workers is swapped. mu only guards stats, so tasks may read
	// stats or post while another Post waits for a free worker.
	gate     sync.RWMutex
	workers  *pool.Pool
	shutdown atomic.Bool

	mu    sync.Mutex
	stats Stats

	completed atomic.Int64
}

// New creates a pool. MaxWorkers below one is treated as one.
func New(config Config) *Pool {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	p := &Pool{config: config}
	p.workers = p.newWorkers()
	return p
}

func (p *Pool) newWorkers() *pool.Pool {
	return pool.New().WithMaxGoroutines(p.config.MaxWorkers)
}

// Name returns the configured pool name.
func (p *Pool) Name() string {
	return p.config.Name
}

// Post queues task. It blocks while all workers are busy.
func (p *Pool) Post(task func()) error {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if p.shutdown.Load() {
		return ErrShutdown
	}

	p.mu.Lock()
	p.stats.Posted++
	p.mu.Unlock()

	p.workers.Go(func() {
		defer p.completed.Add(1)
		task()
	})
	return nil
}

// swapWorkers installs fresh workers and returns the old ones for the
// caller to wait on.
func (p *Pool) swapWorkers() *pool.Pool {
	p.gate.Lock()
	defer p.gate.Unlock()
	old := p.workers
	p.workers = p.newWorkers()
	return old
}

// FlushForTesting waits for every task posted before the call and leaves
// the pool usable. A task panic is re-raised here.
func (p *Pool) FlushForTesting() {
	if p.shutdown.Load() {
		return
	}
	start := time.Now()
	p.swapWorkers().Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Flushes++
	p.stats.LastFlush = time.Now()
	p.stats.LastFlushDur = time.Since(start)
}

// Shutdown waits for outstanding tasks and rejects further posts.
func (p *Pool) Shutdown() {
	p.gate.Lock()
	if p.shutdown.Load() {
		p.gate.Unlock()
		return
	}
	p.shutdown.Store(true)
	old := p.workers
	p.gate.Unlock()

	old.Wait()
	stats := p.Stats()
	logging.Default().Debug("Worker pool stopped", map[string]interface{}{
		"pool":      p.config.Name,
		"posted":    stats.Posted,
		"completed": stats.Completed,
	})
}

// Stats returns a copy of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Completed = p.completed.Load()
	return s
}

var (
	instanceMu sync.RWMutex
	instance   *Pool
)

// Instance returns the process-wide pool, or nil if none is installed.
func Instance() *Pool {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	return instance
}

// SetInstance installs p as the process-wide pool and returns the previous one.
func SetInstance(p *Pool) *Pool {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	prev := instance
	instance = p
	return prev
}
