package engine

import "sync"

// Listener observes case and group lifecycle events. Hooks run on the
// engine's driving goroutine and never overlap.
type Listener interface {
	OnGroupStart(g *GroupInfo)
	OnCaseStart(c *CaseInfo)
	OnCaseEnd(c *CaseInfo)
	OnGroupEnd(g *GroupInfo)
}

// EmptyListener implements every hook as a no-op. Embed it and override the
// hooks you need.
type EmptyListener struct{}

func (EmptyListener) OnGroupStart(*GroupInfo) {}
func (EmptyListener) OnCaseStart(*CaseInfo)   {}
func (EmptyListener) OnCaseEnd(*CaseInfo)     {}
func (EmptyListener) OnGroupEnd(*GroupInfo)   {}

// Listeners is the ordered set of registered listeners. Start hooks fire in
// registration order and end hooks in reverse, so the first listener
// registered brackets every other.
type Listeners struct {
	mu   sync.Mutex
	list []Listener
}

// Append registers l. The engine owns it for the rest of the process.
func (ls *Listeners) Append(l Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.list = append(ls.list, l)
}

// Len returns the number of registered listeners.
func (ls *Listeners) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.list)
}

// At returns the i-th registered listener.
func (ls *Listeners) At(i int) Listener {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.list[i]
}

func (ls *Listeners) snapshot() []Listener {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]Listener(nil), ls.list...)
}

func (ls *Listeners) fireGroupStart(g *GroupInfo) {
	for _, l := range ls.snapshot() {
		l.OnGroupStart(g)
	}
}

func (ls *Listeners) fireCaseStart(c *CaseInfo) {
	for _, l := range ls.snapshot() {
		l.OnCaseStart(c)
	}
}

func (ls *Listeners) fireCaseEnd(c *CaseInfo) {
	list := ls.snapshot()
	for i := len(list) - 1; i >= 0; i-- {
		list[i].OnCaseEnd(c)
	}
}

func (ls *Listeners) fireGroupEnd(g *GroupInfo) {
	list := ls.snapshot()
	for i := len(list) - 1; i >= 0; i-- {
		list[i].OnGroupEnd(g)
	}
}
