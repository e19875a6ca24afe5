package testsuite

import (
	"io"
	"testing"

	"github.com/psantana5/testsuite/internal/procprio"
	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/engine"
	"github.com/psantana5/testsuite/pkg/features"
	"github.com/psantana5/testsuite/pkg/logging"
	"github.com/psantana5/testsuite/pkg/timeouts"
	"github.com/psantana5/testsuite/pkg/workerpool"
)

type exited struct{ code int }

// stubExit turns process termination into a panic carrying the exit code.
func stubExit(t *testing.T) {
	t.Helper()
	t.Cleanup(logging.SetExitFunc(func(code int) { panic(exited{code}) }))
}

// resetProcessState clears the process-wide state a suite touches.
func resetProcessState(t *testing.T) {
	t.Helper()
	cmdline.Reset()
	timeouts.ResetForTesting()
	prevFeatures := features.SetInstance(nil)
	prevPool := workerpool.Instance()
	restorePrio := procprio.SetProbeForTesting(func() (int32, error) { return 0, nil })
	t.Cleanup(func() {
		restorePrio()
		workerpool.SetInstance(prevPool)
		features.SetInstance(prevFeatures)
		check.SetDCheckIsFatal(true)
		timeouts.ResetForTesting()
		cmdline.Reset()
	})
}

// newTestSuite builds a suite on a fresh engine with quiet logging.
func newTestSuite(t *testing.T, args []string, opts ...Option) (*Suite, *engine.Engine) {
	t.Helper()
	resetProcessState(t)
	stubExit(t)

	e := engine.New()
	all := append([]Option{WithRunner(e), WithSummaryOutput(io.Discard)}, opts...)
	argv := append([]string{"suite", "--log-level=error"}, args...)
	s := New(argv, all...)
	t.Cleanup(s.Close)
	return s, e
}

// fakeRunner records whether the suite ran cases.
type fakeRunner struct {
	listeners engine.Listeners
	runs      int
	result    int
}

func (f *fakeRunner) Listeners() *engine.Listeners { return &f.listeners }

func (f *fakeRunner) RunAllCases() int {
	f.runs++
	return f.result
}

// recordingListener captures the command line at each hook.
type recordingListener struct {
	engine.EmptyListener

	atStart [][]string
	atEnd   [][]string
}

func (r *recordingListener) OnCaseStart(c *engine.CaseInfo) {
	r.atStart = append(r.atStart, cmdline.ForCurrentProcess().Argv())
}

func (r *recordingListener) OnCaseEnd(c *engine.CaseInfo) {
	r.atEnd = append(r.atEnd, cmdline.ForCurrentProcess().Argv())
}
