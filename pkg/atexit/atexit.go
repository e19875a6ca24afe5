// Package atexit runs registered teardown functions when the suite shuts
// down. Only work registered during initialization should rely on it: the
// fatal-assertion path exits without running it.
package atexit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/psantana5/testsuite/pkg/logging"
)

// Manager handles ordered process teardown
type Manager struct {
	shutdownFuncs []namedFunc
	mu            sync.Mutex
	timeout       time.Duration
	ran           bool
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

var (
	currentMu sync.Mutex
	current   *Manager
)

// New creates a new at-exit manager and makes it the process-wide one unless
// an earlier bootstrap step already created one.
func New(timeout time.Duration) *Manager {
	m := &Manager{timeout: timeout}
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == nil {
		current = m
	}
	return m
}

// Current returns the process-wide manager, or nil if none was created.
func Current() *Manager {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

// Release drops m as the process-wide manager if it is the current one.
func (m *Manager) Release() {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == m {
		current = nil
	}
}

// Register adds a shutdown function
// Functions are called in reverse order (LIFO)
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// Len returns the number of registered functions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shutdownFuncs)
}

// Run executes all registered functions once, newest first, and returns the
// errors they reported joined together.
func (m *Manager) Run() error {
	m.mu.Lock()
	if m.ran {
		m.mu.Unlock()
		return nil
	}
	m.ran = true
	funcs := m.shutdownFuncs
	m.shutdownFuncs = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		if err := f.fn(ctx); err != nil {
			logging.Default().Warn("At-exit function failed", map[string]interface{}{
				"name":  f.name,
				"error": err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	return errors.Join(errs...)
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}

// StopServer creates a shutdown function for anything with a
// context-aware Shutdown, such as *http.Server or a tracer provider.
func StopServer(server interface{ Shutdown(context.Context) error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s: %w", name, err)
		}
		return nil
	}
}
