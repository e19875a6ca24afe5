// Package timeouts holds the process-wide timeout table and the scoped
// run-timeout used to turn a blocked case into a reported failure.
package timeouts

import (
	"strconv"
	"sync"
	"time"

	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/logging"
)

const (
	DefaultTiny            = 100 * time.Millisecond
	DefaultAction          = 10 * time.Second
	DefaultActionMax       = 30 * time.Second
	DefaultLauncherTimeout = 45 * time.Second
)

type table struct {
	initialized bool
	tiny        time.Duration
	action      time.Duration
	actionMax   time.Duration
	launcher    time.Duration
}

var (
	mu  sync.RWMutex
	tbl = defaultTable()
)

func defaultTable() table {
	return table{
		tiny:      DefaultTiny,
		action:    DefaultAction,
		actionMax: DefaultActionMax,
		launcher:  DefaultLauncherTimeout,
	}
}

// Initialize reads timeout overrides from the process command line. Each
// switch value is a millisecond count. Values are raised as needed so that
// Tiny <= Action <= ActionMax <= Launcher. Calling it twice is fatal.
func Initialize() {
	mu.Lock()
	already := tbl.initialized
	mu.Unlock()
	check.Check(!already, "timeouts.Initialize called twice")

	t := defaultTable()
	cl := cmdline.ForCurrentProcess()
	t.tiny = readSwitch(cl, cmdline.TestTinyTimeout, t.tiny, 0)
	t.action = readSwitch(cl, cmdline.UITestActionTimeout, t.action, t.tiny)
	t.actionMax = readSwitch(cl, cmdline.UITestActionMaxTimeout, t.actionMax, t.action)
	t.launcher = readSwitch(cl, cmdline.TestLauncherTimeout, t.launcher, t.actionMax)
	t.initialized = true

	mu.Lock()
	tbl = t
	mu.Unlock()

	logging.Default().Debug("Timeouts initialized", map[string]interface{}{
		"tiny":       t.tiny.String(),
		"action":     t.action.String(),
		"action_max": t.actionMax.String(),
		"launcher":   t.launcher.String(),
	})
}

func readSwitch(cl *cmdline.CommandLine, name string, value, min time.Duration) time.Duration {
	if cl != nil && cl.HasSwitch(name) {
		raw := cl.SwitchValue(name)
		ms, err := strconv.Atoi(raw)
		check.Check(err == nil && ms >= 0, "invalid --%s value %q", name, raw)
		value = time.Duration(ms) * time.Millisecond
	}
	if value < min {
		value = min
	}
	return value
}

// Initialized reports whether Initialize has run.
func Initialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return tbl.initialized
}

// Tiny is for waits expected to complete almost immediately.
func Tiny() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return tbl.tiny
}

// Action is the timeout for a single user-visible step.
func Action() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return tbl.action
}

// ActionMax bounds any single case.
func ActionMax() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return tbl.actionMax
}

// Launcher is the budget an out-of-process launcher gives one case.
func Launcher() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return tbl.launcher
}

// ResetForTesting restores the defaults and allows Initialize again.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	tbl = defaultTable()
}
