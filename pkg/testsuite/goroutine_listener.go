package testsuite

import (
	"go.uber.org/goleak"

	"github.com/psantana5/testsuite/pkg/engine"
)

// goroutineLeakListener fails a group that leaves goroutines running.
type goroutineLeakListener struct {
	engine.EmptyListener

	ignore goleak.Option
}

func (l *goroutineLeakListener) OnGroupStart(g *engine.GroupInfo) {
	l.ignore = goleak.IgnoreCurrent()
}

func (l *goroutineLeakListener) OnGroupEnd(g *engine.GroupInfo) {
	if l.ignore == nil {
		return
	}
	if err := goleak.Find(l.ignore); err != nil {
		g.Errorf("goroutines leaked by group %s: %v", g.Name, err)
	}
	l.ignore = nil
}
