// Package multiprocess lets a test binary double as its own helper process.
//
// Helpers are registered by name, usually from init. A case starts a helper
// with SpawnChild, which re-executes the current binary with the reserved
// test-child-process switch; the suite sees that switch and calls
// InvokeChildProcessTest instead of running cases.
package multiprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/logging"
)

// MainFunc is a helper entry point. Its result is the child's exit status.
type MainFunc func() int

var (
	mu    sync.RWMutex
	table = make(map[string]MainFunc)
)

// Register adds a helper. Registering a name twice is fatal.
func Register(name string, fn MainFunc) {
	mu.Lock()
	_, dup := table[name]
	if !dup {
		table[name] = fn
	}
	mu.Unlock()
	check.Check(!dup, "child process function %q registered twice", name)
}

// Lookup returns the helper registered as name.
func Lookup(name string) (MainFunc, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := table[name]
	return fn, ok
}

// Names returns the registered helper names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvokeChildProcessTest runs the named helper and returns its result. An
// unknown name is fatal.
func InvokeChildProcessTest(name string) int {
	fn, ok := Lookup(name)
	check.Check(ok, "no child process function registered as %q (have %v)", name, Names())
	if !ok {
		return 1
	}
	logging.Default().Debug("Running child process function", map[string]interface{}{
		"function": name,
	})
	return fn()
}

// ChildProcessName returns the helper this process was started to run, or
// "" when it is not a helper.
func ChildProcessName() string {
	if cl := cmdline.ForCurrentProcess(); cl != nil {
		return cl.SwitchValue(cmdline.TestChildProcess)
	}
	return ""
}

// SpawnChild prepares a command that re-executes the current binary as the
// named helper. The child inherits the current switches except those that
// name per-run output files; extra is parsed as additional arguments. The
// command is not started.
func SpawnChild(ctx context.Context, name string, extra ...string) (*exec.Cmd, error) {
	if _, ok := Lookup(name); !ok {
		return nil, fmt.Errorf("child process function %q is not registered", name)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate test binary: %w", err)
	}

	child := cmdline.New(exe)
	if cl := cmdline.ForCurrentProcess(); cl != nil {
		child = cl.Clone()
	}
	child.RemoveSwitch(cmdline.TestLauncherOutput)
	child.RemoveSwitch(cmdline.TestLauncherMetrics)
	child.RemoveSwitch(cmdline.StatusAddr)
	child.AppendSwitchValue(cmdline.TestChildProcess, name)

	parsed := cmdline.Parse(append([]string{exe}, extra...))
	for k, v := range parsed.Switches() {
		child.AppendSwitchValue(k, v)
	}
	for _, a := range parsed.Args() {
		child.AppendArg(a)
	}

	cmd := exec.CommandContext(ctx, exe, child.Argv()[1:]...)
	cmd.Env = os.Environ()
	return cmd, nil
}

// ExitCode runs cmd to completion and returns its exit status. Errors other
// than a non-zero exit are returned as is.
func ExitCode(cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("failed to run child process: %w", err)
	}
}
