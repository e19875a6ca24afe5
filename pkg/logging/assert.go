package logging

import (
	"os"
	"sync"

	"go.uber.org/zap/zapcore"
)

// AssertHandler receives every fatal log entry before the process exits.
// summary is the log message; stackTrace is the goroutine stack at the call.
type AssertHandler func(file string, line int, summary, stackTrace string)

var (
	assertMu      sync.Mutex
	assertHandler AssertHandler

	// exitFunc terminates the process without running deferred calls.
	exitFunc = os.Exit
)

// ScopedAssertHandler installs h as the process-wide assert handler and
// returns a function that reinstates the previous one. The returned function
// is safe to call more than once.
func ScopedAssertHandler(h AssertHandler) (restore func()) {
	assertMu.Lock()
	prev := assertHandler
	assertHandler = h
	assertMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			assertMu.Lock()
			assertHandler = prev
			assertMu.Unlock()
		})
	}
}

func currentAssertHandler() AssertHandler {
	assertMu.Lock()
	defer assertMu.Unlock()
	return assertHandler
}

// Exit terminates the process immediately with code.
func Exit(code int) {
	assertMu.Lock()
	fn := exitFunc
	assertMu.Unlock()
	fn(code)
}

// SetExitFunc replaces the process terminator and returns a restore func.
// Tests use it to observe fatal paths.
func SetExitFunc(fn func(int)) (restore func()) {
	assertMu.Lock()
	prev := exitFunc
	exitFunc = fn
	assertMu.Unlock()
	return func() {
		assertMu.Lock()
		exitFunc = prev
		assertMu.Unlock()
	}
}

// assertHook runs after zap has written a fatal entry.
type assertHook struct{}

func (assertHook) OnWrite(ce *zapcore.CheckedEntry, _ []zapcore.Field) {
	if h := currentAssertHandler(); h != nil {
		h(ce.Caller.File, ce.Caller.Line, ce.Message, ce.Stack)
	}
	Exit(1)
}
