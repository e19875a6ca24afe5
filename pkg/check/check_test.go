package check

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/psantana5/testsuite/pkg/logging"
)

type exited struct{ code int }

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	l := logging.NewLogger(logging.DEBUG, false)
	l.SetOutput(&buf)
	prev := logging.SetDefault(l)
	restoreExit := logging.SetExitFunc(func(code int) { panic(exited{code}) })
	t.Cleanup(func() {
		restoreExit()
		logging.SetDefault(prev)
		SetDCheckIsFatal(true)
	})
	return &buf
}

func TestCheckPassesSilently(t *testing.T) {
	buf := captureLogs(t)
	Check(true, "never")
	DCheck(true, "never")
	DCheckEqual(1, 1, "never")
	assert.Empty(t, buf.String())
}

func TestCheckFailureIsFatal(t *testing.T) {
	buf := captureLogs(t)
	assert.PanicsWithValue(t, exited{1}, func() { Check(false, "value %d", 7) })
	assert.Contains(t, buf.String(), "Check failed: value 7")
}

func TestDCheckSeverity(t *testing.T) {
	buf := captureLogs(t)

	assert.PanicsWithValue(t, exited{1}, func() { DCheck(false, "fatal by default") })

	SetDCheckIsFatal(false)
	assert.NotPanics(t, func() { DCheck(false, "only logged") })
	assert.Contains(t, buf.String(), "DCheck failed: only logged")
}

func TestDCheckEqualReportsOperands(t *testing.T) {
	buf := captureLogs(t)
	SetDCheckIsFatal(false)

	a, b := new(int), new(int)
	DCheckEqual(a, b, "in case %s", "G.C")

	assert.Contains(t, buf.String(), "in case G.C")
}

func TestCheckHandlerSeesCallSite(t *testing.T) {
	captureLogs(t)
	var file string
	restore := logging.ScopedAssertHandler(func(f string, _ int, _, _ string) { file = f })
	defer restore()

	assert.Panics(t, func() { Check(false, "site") })
	assert.Contains(t, file, "check_test.go")
}
