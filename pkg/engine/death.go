package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"

	"github.com/psantana5/testsuite/pkg/cmdline"
)

// ExpectDeath runs statement in a re-executed copy of the test binary and
// fails the case unless the child exits non-zero with stderr matching
// pattern. In the child, the matching call runs statement and exits 0 if it
// returns; every other ExpectDeath call in the child is a no-op.
func (t *T) ExpectDeath(statement func(), pattern string) bool {
	index := t.nextDeathIndex()
	marker := fmt.Sprintf("%s|%d", t.Name(), index)

	cl := cmdline.ForCurrentProcess()
	if cl != nil && cl.HasSwitch(cmdline.InternalRunDeathTest) {
		if cl.SwitchValue(cmdline.InternalRunDeathTest) == marker {
			statement()
			fmt.Fprintf(os.Stderr, "death statement returned: %s\n", marker)
			os.Exit(0)
		}
		return true
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		file, line := caller(1)
		t.info.addFailure(Failure{File: file, Line: line, Message: fmt.Sprintf("invalid death pattern %q: %v", pattern, err)})
		return false
	}

	code, stderr, err := t.runDeathChild(cl, marker)
	file, line := caller(1)
	switch {
	case err != nil:
		t.info.addFailure(Failure{File: file, Line: line, Message: fmt.Sprintf("death test child failed to start: %v", err)})
		return false
	case code == 0:
		t.info.addFailure(Failure{File: file, Line: line, Message: fmt.Sprintf("statement did not die\nstderr:\n%s", stderr)})
		return false
	case !re.Match(stderr):
		t.info.addFailure(Failure{File: file, Line: line, Message: fmt.Sprintf(
			"died with status %d but stderr does not match %q\nstderr:\n%s", code, pattern, stderr)})
		return false
	}
	return true
}

func (t *T) runDeathChild(cl *cmdline.CommandLine, marker string) (int, []byte, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to locate test binary: %w", err)
	}

	child := cmdline.New(exe)
	if cl != nil {
		child = cl.Clone()
	}
	child.RemoveSwitch(cmdline.TestFilter)
	child.RemoveSwitch(cmdline.TestLauncherOutput)
	child.RemoveSwitch(cmdline.TestLauncherMetrics)
	child.AppendSwitchValue(cmdline.TestFilter, t.Name())
	child.AppendSwitchValue(cmdline.InternalRunDeathTest, marker)

	style := DeathTestThreadsafe
	if t.engine != nil {
		style = t.engine.DeathTestStyle()
	}
	t.log.V(1).Info("Spawning death test child", "marker", marker, "style", style)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(t.ctx, exe, child.Argv()[1:]...)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	err = cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, stderr.Bytes(), nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), stderr.Bytes(), nil
	default:
		return 0, stderr.Bytes(), err
	}
}
