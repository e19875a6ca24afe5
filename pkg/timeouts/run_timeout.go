package timeouts

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/psantana5/testsuite/pkg/logging"
)

// FailureReporter records a non-fatal failure against the running case.
type FailureReporter interface {
	AddFailure(message string)
}

// OnTimeoutFunc is invoked on the watchdog goroutine when a run overruns
// its scope. location is where the scope was created.
type OnTimeoutFunc func(timeout time.Duration, location string)

// ScopedRunTimeout bounds every Await started while it is the innermost
// scope. Scopes nest; Close pops back to the enclosing one.
type ScopedRunTimeout struct {
	timeout  time.Duration
	location string
	prev     *ScopedRunTimeout
	closed   bool
}

var (
	runMu     sync.Mutex
	current   *ScopedRunTimeout
	onTimeout OnTimeoutFunc
	reporter  FailureReporter
)

// NewScopedRunTimeout pushes a scope limiting runs to d.
func NewScopedRunTimeout(d time.Duration) *ScopedRunTimeout {
	s := &ScopedRunTimeout{timeout: d, location: callerLocation(2)}
	runMu.Lock()
	s.prev = current
	current = s
	runMu.Unlock()
	return s
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Timeout returns the scope's limit.
func (s *ScopedRunTimeout) Timeout() time.Duration {
	return s.timeout
}

// Location returns where the scope was created.
func (s *ScopedRunTimeout) Location() string {
	return s.location
}

// Close pops the scope. Closing an outer scope also drops any inner scope
// still open.
func (s *ScopedRunTimeout) Close() {
	runMu.Lock()
	defer runMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for c := current; c != nil; c = c.prev {
		if c == s {
			current = s.prev
			return
		}
	}
}

// CurrentRunTimeout returns the innermost open scope, or nil.
func CurrentRunTimeout() *ScopedRunTimeout {
	runMu.Lock()
	defer runMu.Unlock()
	return current
}

// SetOnTimeout replaces the process-wide timeout callback and returns a
// function that restores the previous one.
func SetOnTimeout(fn OnTimeoutFunc) (restore func()) {
	runMu.Lock()
	prev := onTimeout
	onTimeout = fn
	runMu.Unlock()
	return func() {
		runMu.Lock()
		onTimeout = prev
		runMu.Unlock()
	}
}

// SetFailureReporter installs the sink used by SetAddFailureOnTimeout and
// returns a function that restores the previous one.
func SetFailureReporter(r FailureReporter) (restore func()) {
	runMu.Lock()
	prev := reporter
	reporter = r
	runMu.Unlock()
	return func() {
		runMu.Lock()
		reporter = prev
		runMu.Unlock()
	}
}

// SetAddFailureOnTimeout makes an overrun a failure of the running case
// instead of a fatal error.
func SetAddFailureOnTimeout() {
	SetOnTimeout(func(timeout time.Duration, location string) {
		msg := fmt.Sprintf("Run timed out after %v (timeout set at %s)", timeout, location)
		runMu.Lock()
		r := reporter
		runMu.Unlock()
		if r == nil {
			logging.Default().Error(msg)
			return
		}
		r.AddFailure(msg)
	})
}

// Await blocks until done is closed or the innermost scope expires. On
// expiry the timeout callback runs on the timer goroutine before Await
// returns false. Without an open scope Await waits indefinitely.
func Await(done <-chan struct{}) bool {
	scope := CurrentRunTimeout()
	if scope == nil || scope.timeout <= 0 {
		<-done
		return true
	}

	expired := make(chan struct{})
	timer := time.AfterFunc(scope.timeout, func() {
		defer close(expired)
		select {
		case <-done:
			return
		default:
		}
		runMu.Lock()
		fn := onTimeout
		runMu.Unlock()
		if fn == nil {
			logging.Default().Fatal(fmt.Sprintf("Run timed out after %v (timeout set at %s)",
				scope.timeout, scope.location))
			return
		}
		fn(scope.timeout, scope.location)
	})

	select {
	case <-done:
		if timer.Stop() {
			return true
		}
		<-expired
		return true
	case <-expired:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}
