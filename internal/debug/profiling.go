package debug

import (
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"

	"github.com/psantana5/testsuite/pkg/logging"
)

// DefaultProfileName is used when no profiling file is configured.
const DefaultProfileName = "profile-{pid}.pprof"

var prof struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	name    string
}

// EnableProfiling turns StartProfiling on or off.
func EnableProfiling(enabled bool) {
	prof.mu.Lock()
	defer prof.mu.Unlock()
	prof.enabled = enabled
}

// ProfilingEnabled reports the EnableProfiling setting.
func ProfilingEnabled() bool {
	prof.mu.Lock()
	defer prof.mu.Unlock()
	return prof.enabled
}

// ExpandProfileName substitutes {pid} and {count} in name.
func ExpandProfileName(name string, count int) string {
	if name == "" {
		name = DefaultProfileName
	}
	name = strings.ReplaceAll(name, "{pid}", strconv.Itoa(os.Getpid()))
	return strings.ReplaceAll(name, "{count}", strconv.Itoa(count))
}

// StartProfiling begins writing a CPU profile to name. It is a no-op while
// profiling is disabled and returns the path written, if any.
func StartProfiling(name string) (string, error) {
	prof.mu.Lock()
	defer prof.mu.Unlock()
	if !prof.enabled {
		return "", nil
	}
	if prof.file != nil {
		return "", fmt.Errorf("profiling already started to %s", prof.name)
	}

	path := ExpandProfileName(name, 0)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create profile %s: %w", path, err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to start CPU profile: %w", err)
	}
	prof.file = f
	prof.name = path
	logging.Default().Debug("CPU profiling started", map[string]interface{}{"path": path})
	return path, nil
}

// StopProfiling flushes and closes the active profile.
func StopProfiling() error {
	prof.mu.Lock()
	defer prof.mu.Unlock()
	if prof.file == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := prof.file.Close()
	logging.Default().Debug("CPU profiling stopped", map[string]interface{}{"path": prof.name})
	prof.file = nil
	prof.name = ""
	return err
}
