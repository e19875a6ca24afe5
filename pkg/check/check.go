// Package check provides hard invariant checks. A failed Check is always a
// fatal log entry; a failed DCheck is fatal only while debug checks are fatal
// (the default) and is otherwise logged as an error.
package check

import (
	"fmt"
	"sync/atomic"

	"github.com/psantana5/testsuite/pkg/logging"
)

var dcheckIsFatal atomic.Bool

func init() {
	dcheckIsFatal.Store(true)
}

// SetDCheckIsFatal controls whether DCheck failures terminate the process.
func SetDCheckIsFatal(fatal bool) {
	dcheckIsFatal.Store(fatal)
}

// DCheckIsFatal reports the current DCheck severity.
func DCheckIsFatal() bool {
	return dcheckIsFatal.Load()
}

// Check logs a fatal entry when cond is false.
func Check(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	logging.Default().FatalDepth(1, "Check failed: "+fmt.Sprintf(format, args...))
}

// DCheck is Check for debug invariants.
func DCheck(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	msg := "DCheck failed: " + fmt.Sprintf(format, args...)
	if DCheckIsFatal() {
		logging.Default().FatalDepth(1, msg)
		return
	}
	logging.Default().Error(msg)
}

// DCheckEqual fails when a != b, reporting both values.
func DCheckEqual(a, b interface{}, format string, args ...interface{}) {
	if a == b {
		return
	}
	msg := fmt.Sprintf("DCheck failed: %v == %v %s", a, b, fmt.Sprintf(format, args...))
	if DCheckIsFatal() {
		logging.Default().FatalDepth(1, msg)
		return
	}
	logging.Default().Error(msg)
}
