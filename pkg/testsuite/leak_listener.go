package testsuite

import (
	"strings"

	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/engine"
	"github.com/psantana5/testsuite/pkg/isolation"
)

// leakedGlobalsListener fails the run when a case or group replaces a
// process-wide registry without putting the original back.
type leakedGlobalsListener struct {
	engine.EmptyListener

	sources    []isolation.Source
	beforeCase isolation.Snapshot
	beforeGrp  isolation.Snapshot
}

func newLeakedGlobalsListener(sources []isolation.Source) *leakedGlobalsListener {
	if sources == nil {
		sources = isolation.DefaultSources()
	}
	return &leakedGlobalsListener{sources: sources}
}

func (l *leakedGlobalsListener) OnCaseStart(c *engine.CaseInfo) {
	l.beforeCase = isolation.Capture(l.sources)
}

func (l *leakedGlobalsListener) OnCaseEnd(c *engine.CaseInfo) {
	after := isolation.Capture(l.sources)
	if changed := l.beforeCase.Diff(after); len(changed) > 0 {
		c.Errorf("global registry replaced: %s", strings.Join(changed, ", "))
		check.DCheck(false, "%s changed in case %s (before %s, after %s)",
			strings.Join(changed, ", "), c.FullName(), l.beforeCase, after)
	}
}

func (l *leakedGlobalsListener) OnGroupStart(g *engine.GroupInfo) {
	l.beforeGrp = isolation.Capture(l.sources)
}

func (l *leakedGlobalsListener) OnGroupEnd(g *engine.GroupInfo) {
	after := isolation.Capture(l.sources)
	if changed := l.beforeGrp.Diff(after); len(changed) > 0 {
		g.Errorf("global registry replaced: %s", strings.Join(changed, ", "))
		check.DCheck(false, "%s changed in group %s (before %s, after %s)",
			strings.Join(changed, ", "), g.Name, l.beforeGrp, after)
	}
}
