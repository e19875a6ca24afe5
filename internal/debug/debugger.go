// Package debug holds the process-level debugging hooks a suite installs
// during initialization: waiting for a debugger, stack dumps on demand, and
// CPU profiling.
package debug

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/psantana5/testsuite/pkg/logging"
)

var suppressUI atomic.Bool

// SetSuppressDebugUI controls whether fatal errors may wait for an
// interactive debugger.
func SetSuppressDebugUI(suppress bool) {
	suppressUI.Store(suppress)
}

// SuppressDebugUI reports the current setting.
func SuppressDebugUI() bool {
	return suppressUI.Load()
}

// tracerProbe is replaced in tests.
var tracerProbe = tracerPID

// BeingDebugged reports whether a tracer is attached to the process.
func BeingDebugged() bool {
	pid, err := tracerProbe()
	return err == nil && pid != 0
}

// WaitForDebugger polls until a debugger attaches or timeout elapses and
// reports whether one attached.
func WaitForDebugger(timeout time.Duration) bool {
	logging.Default().Info("Waiting for debugger", map[string]interface{}{
		"timeout": timeout.String(),
		"pid":     os.Getpid(),
	})
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if BeingDebugged() {
			return true
		}
		if !time.Now().Before(deadline) {
			logging.Default().Warn("No debugger attached before timeout")
			return false
		}
		<-ticker.C
	}
}

// VerifyDebugger logs the attach state so a run started under a debugger
// is visible in the log.
func VerifyDebugger() {
	pid, err := tracerProbe()
	switch {
	case err != nil:
		logging.Default().Debug("Debugger state unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	case pid != 0:
		logging.Default().Info("Debugger attached", map[string]interface{}{
			"tracer_pid": pid,
		})
	}
}
