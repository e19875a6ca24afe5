// Package procprio reports whether the current process has been moved to a
// lowered scheduling priority.
package procprio

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/psantana5/testsuite/pkg/logging"
)

// Probe returns the nice value of the current process.
type Probe func() (int32, error)

func niceFromProcess() (int32, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	return p.Nice()
}

var (
	mu    sync.RWMutex
	probe Probe = niceFromProcess
)

// SetProbeForTesting replaces the probe and returns a restore func.
func SetProbeForTesting(p Probe) (restore func()) {
	mu.Lock()
	prev := probe
	probe = p
	mu.Unlock()
	return func() {
		mu.Lock()
		probe = prev
		mu.Unlock()
	}
}

// IsBackgrounded reports whether the process runs at a nice value above
// zero. A probe error is logged and treated as not backgrounded.
func IsBackgrounded() bool {
	mu.RLock()
	p := probe
	mu.RUnlock()

	nice, err := p()
	if err != nil {
		logging.Default().Debug("Failed to read process priority", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	return nice > 0
}
