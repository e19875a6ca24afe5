package testsuite

import (
	"runtime"

	"github.com/psantana5/testsuite/internal/procprio"
	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/engine"
)

// processPriorityListener reports cases that run while the process is
// scheduled at background priority.
type processPriorityListener struct {
	engine.EmptyListener

	checkAtEnd bool
}

func newProcessPriorityListener() *processPriorityListener {
	check.Check(!procprio.IsBackgrounded(), "test process started at background priority")
	// The end-of-case signal is unreliable on macOS.
	return &processPriorityListener{checkAtEnd: runtime.GOOS != "darwin"}
}

func (l *processPriorityListener) OnCaseStart(c *engine.CaseInfo) {
	if procprio.IsBackgrounded() {
		c.Errorf("process is backgrounded at start of %s", c.FullName())
	}
}

func (l *processPriorityListener) OnCaseEnd(c *engine.CaseInfo) {
	if l.checkAtEnd && procprio.IsBackgrounded() {
		c.Errorf("process is backgrounded at end of %s", c.FullName())
	}
}
