package engine

import (
	"strings"
	"testing"
)

// Bind fires the listeners' group and case hooks around a go test case.
// Start hooks fire immediately; end hooks fire from tb.Cleanup. Failures a
// listener reports are forwarded to tb.Errorf. The group is the top-level
// test name and the case is the subtest path, or the test name itself.
func Bind(tb testing.TB, listeners ...Listener) *CaseInfo {
	tb.Helper()
	groupName, caseName, ok := strings.Cut(tb.Name(), "/")
	if !ok {
		caseName = groupName
	}

	forward := func(msg string) {
		tb.Helper()
		tb.Errorf("%s", msg)
	}
	g := &GroupInfo{Name: groupName, Cases: 1, forward: forward}
	c := newCaseInfo(groupName, caseName)
	c.forward = forward

	var ls Listeners
	for _, l := range listeners {
		ls.Append(l)
	}
	ls.fireGroupStart(g)
	ls.fireCaseStart(c)
	c.begin()
	tb.Cleanup(func() {
		c.finish()
		ls.fireCaseEnd(c)
		ls.fireGroupEnd(g)
	})
	return c
}
