package testsuite

import (
	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/engine"
)

// commandLineRestoreListener puts the process command line back to what it
// was when the case started. It must be registered before the feature-scope
// listener so its end hook runs last.
type commandLineRestoreListener struct {
	engine.EmptyListener

	saved *cmdline.CommandLine
}

func (l *commandLineRestoreListener) OnCaseStart(c *engine.CaseInfo) {
	if cl := cmdline.ForCurrentProcess(); cl != nil {
		l.saved = cl.Clone()
	}
}

func (l *commandLineRestoreListener) OnCaseEnd(c *engine.CaseInfo) {
	if l.saved == nil {
		return
	}
	if cl := cmdline.ForCurrentProcess(); cl != nil {
		cl.Assign(l.saved)
	}
	l.saved = nil
}
