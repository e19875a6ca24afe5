// Command examplesuite is a small test binary built on pkg/testsuite. It
// doubles as its own child process for the multiprocess cases.
package main

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/engine"
	"github.com/psantana5/testsuite/pkg/features"
	"github.com/psantana5/testsuite/pkg/multiprocess"
	"github.com/psantana5/testsuite/pkg/testsuite"
	"github.com/psantana5/testsuite/pkg/workerpool"
)

var fastPath = &features.Feature{Name: "FastPath", DefaultState: features.DisabledByDefault}

// Exit codes of the FastPathProbe helper.
const (
	probeEnabled  = 10
	probeDisabled = 11
)

func init() {
	multiprocess.Register("FastPathProbe", fastPathProbe)
}

// fastPathProbe runs in a child process and reports the FastPath state
// through its exit code.
func fastPathProbe() int {
	var scoped features.ScopedOverride
	scoped.InitFromCommandLine(os.Getenv("EXAMPLESUITE_ENABLE"), "")
	defer scoped.Reset()
	if features.IsEnabled(fastPath) {
		return probeEnabled
	}
	return probeDisabled
}

func main() {
	os.Exit(testsuite.RunUnitTests(os.Args, registerCases))
}

func registerCases(e *engine.Engine) {
	e.Register("Features", "DefaultIsOff", func(t *engine.T) {
		if features.IsEnabled(fastPath) {
			t.Errorf("FastPath enabled without an override")
		}
	})
	e.Register("Features", "ScopedOverride", func(t *engine.T) {
		var scoped features.ScopedOverride
		scoped.InitAndEnableFeature(fastPath)
		defer scoped.Reset()
		if !features.IsEnabled(fastPath) {
			t.Errorf("FastPath disabled inside an enabling scope")
		}
	})

	e.Register("WorkerPool", "PostAndFlush", func(t *engine.T) {
		pool := workerpool.New(workerpool.Config{Name: "example", MaxWorkers: 2})
		prev := workerpool.SetInstance(pool)
		defer func() {
			workerpool.SetInstance(prev)
			pool.Shutdown()
		}()

		var done atomic.Int32
		for i := 0; i < 8; i++ {
			if err := pool.Post(func() { done.Add(1) }); err != nil {
				t.Fatalf("post: %v", err)
			}
		}
		pool.FlushForTesting()
		if got := done.Load(); got != 8 {
			t.Errorf("ran %d tasks, want 8", got)
		}
	})

	e.Register("Multiprocess", "ChildSeesFeature", func(t *engine.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		cmd, err := multiprocess.SpawnChild(ctx, "FastPathProbe")
		if err != nil {
			t.Fatalf("spawn: %v", err)
		}
		cmd.Env = append(cmd.Env, "EXAMPLESUITE_ENABLE=FastPath")
		code, err := multiprocess.ExitCode(cmd)
		if err != nil {
			t.Fatalf("run child: %v", err)
		}
		if code != probeEnabled {
			t.Errorf("child exit code = %d, want %d", code, probeEnabled)
		}
	})

	e.Register("Death", "CheckFailureKillsProcess", func(t *engine.T) {
		t.ExpectDeath(func() {
			check.Check(false, "invariant broken on purpose")
		}, "invariant broken on purpose")
	})
}
