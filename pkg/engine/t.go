package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/go-logr/logr"
)

// T is passed to each case body. Methods that stop the case (FailNow,
// Fatalf, Skipf, SkipNow) must be called from the body's goroutine.
type T struct {
	info   *CaseInfo
	ctx    context.Context
	log    logr.Logger
	engine *Engine

	mu       sync.Mutex
	cleanups []func()
	deaths   int
}

func newT(ctx context.Context, info *CaseInfo, log logr.Logger) *T {
	return &T{info: info, ctx: ctx, log: log.WithValues("case", info.FullName())}
}

// Name returns the full case name.
func (t *T) Name() string {
	return t.info.FullName()
}

// Info returns the case description shared with listeners.
func (t *T) Info() *CaseInfo {
	return t.info
}

// Context is cancelled when the case ends or is abandoned by the watchdog.
func (t *T) Context() context.Context {
	return t.ctx
}

func caller(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "???", 0
	}
	return filepath.Base(file), line
}

// Errorf records a failure and continues.
func (t *T) Errorf(format string, args ...interface{}) {
	file, line := caller(1)
	t.info.addFailure(Failure{File: file, Line: line, Message: fmt.Sprintf(format, args...)})
}

// Error records a failure built from args and continues.
func (t *T) Error(args ...interface{}) {
	file, line := caller(1)
	t.info.addFailure(Failure{File: file, Line: line, Message: fmt.Sprint(args...)})
}

// Fatalf records a failure and stops the case.
func (t *T) Fatalf(format string, args ...interface{}) {
	file, line := caller(1)
	t.info.addFailure(Failure{File: file, Line: line, Message: fmt.Sprintf(format, args...)})
	runtime.Goexit()
}

// FailNow stops the case, marking it failed if nothing else did.
func (t *T) FailNow() {
	if !t.info.Failed() {
		file, line := caller(1)
		t.info.addFailure(Failure{File: file, Line: line, Message: "FailNow called"})
	}
	runtime.Goexit()
}

// Failed reports whether the case has failed so far.
func (t *T) Failed() bool {
	return t.info.Failed()
}

// Skipf marks the case skipped and stops it.
func (t *T) Skipf(format string, args ...interface{}) {
	t.info.markSkipped(fmt.Sprintf(format, args...))
	runtime.Goexit()
}

// SkipNow marks the case skipped and stops it.
func (t *T) SkipNow() {
	t.info.markSkipped("")
	runtime.Goexit()
}

// Logf writes an informational line attributed to the case.
func (t *T) Logf(format string, args ...interface{}) {
	t.log.Info(fmt.Sprintf(format, args...))
}

// Cleanup registers fn to run after the body returns, newest first.
func (t *T) Cleanup(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanups = append(t.cleanups, fn)
}

// Helper exists for compatibility with testing.TB style helpers.
func (t *T) Helper() {}

func (t *T) runCleanups() {
	for {
		t.mu.Lock()
		n := len(t.cleanups)
		if n == 0 {
			t.mu.Unlock()
			return
		}
		fn := t.cleanups[n-1]
		t.cleanups = t.cleanups[:n-1]
		t.mu.Unlock()
		fn()
	}
}

func (t *T) nextDeathIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deaths++
	return t.deaths
}
