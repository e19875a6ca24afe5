package testsuite

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/testsuite/internal/procprio"
	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/engine"
	"github.com/psantana5/testsuite/pkg/features"
	"github.com/psantana5/testsuite/pkg/logging"
	"github.com/psantana5/testsuite/pkg/multiprocess"
	"github.com/psantana5/testsuite/pkg/workerpool"
)

var (
	featureA = &features.Feature{Name: "A", DefaultState: features.DisabledByDefault}
	featureB = &features.Feature{Name: "B", DefaultState: features.EnabledByDefault}
	marker1  = &features.Feature{Name: EnabledMarkerFeature, DefaultState: features.DisabledByDefault}
	marker2  = &features.Feature{Name: DisabledMarkerFeature, DefaultState: features.EnabledByDefault}
)

func TestCommandLineRestoredBetweenCases(t *testing.T) {
	s, e := newTestSuite(t, []string{"--enable-features=A", "--disable-features=B", "--keep=1"})

	e.Register("Restore", "Mutates", func(et *engine.T) {
		cl := cmdline.ForCurrentProcess()
		cl.AppendSwitchValue("mutated", "yes")
		cl.RemoveSwitch("keep")
	})
	e.Register("Restore", "Observes", func(et *engine.T) {
		cl := cmdline.ForCurrentProcess()
		assert.False(et, cl.HasSwitch("mutated"))
		assert.Equal(et, "1", cl.SwitchValue("keep"))
	})

	s.Initialize()
	rec := &recordingListener{}
	e.Listeners().Append(rec)

	require.Equal(t, 0, e.RunAllCases())
	s.Shutdown()

	require.Len(t, rec.atStart, 2)
	if diff := cmp.Diff(rec.atStart[0], rec.atStart[1]); diff != "" {
		t.Errorf("command line at case start differs (-first +second):\n%s", diff)
	}
	assert.Contains(t, rec.atEnd[0], "--mutated=yes")

	cl := cmdline.ForCurrentProcess()
	assert.Equal(t, "A", cl.SwitchValue(cmdline.EnableFeatures))
	assert.Equal(t, "B", cl.SwitchValue(cmdline.DisableFeatures))
	assert.False(t, cl.HasSwitch("mutated"))
}

func TestFeatureScopeDuringCase(t *testing.T) {
	s, e := newTestSuite(t, []string{"--enable-features=A", "--disable-features=B"})

	var sawScope bool
	e.Register("Features", "Scoped", func(et *engine.T) {
		cl := cmdline.ForCurrentProcess()
		assert.False(et, cl.HasSwitch(cmdline.EnableFeatures))
		assert.False(et, cl.HasSwitch(cmdline.DisableFeatures))

		assert.True(et, features.IsEnabled(featureA))
		assert.False(et, features.IsEnabled(featureB))
		assert.True(et, features.IsEnabled(marker1))
		assert.False(et, features.IsEnabled(marker2))
		assert.NotNil(et, features.ActiveTrialList())
		sawScope = true
	})

	e.Register("Features", "MutatesTable", func(et *engine.T) {
		cmdline.ForCurrentProcess().AppendSwitchValue(cmdline.EnableFeatures, "Other")
	})

	s.Initialize()
	before := cmdline.ForCurrentProcess().Argv()
	require.Equal(t, 0, e.RunAllCases())
	assert.True(t, sawScope)
	assert.Nil(t, features.Instance(), "case registry must be released")
	assert.Nil(t, features.ActiveTrialList())
	if diff := cmp.Diff(before, cmdline.ForCurrentProcess().Argv()); diff != "" {
		t.Errorf("command line not restored after run (-before +after):\n%s", diff)
	}
}

func TestRegistriesUnchangedAcrossCases(t *testing.T) {
	s, e := newTestSuite(t, nil)

	probe := &identityProbe{}
	e.Register("Isolation", "Clean", func(et *engine.T) {
		var scoped features.ScopedOverride
		scoped.InitAndEnableFeature(featureA)
		scoped.Reset()
	})
	e.Register("Isolation", "AlsoClean", func(et *engine.T) {})

	s.Initialize()
	e.Listeners().Append(probe)
	require.Equal(t, 0, e.RunAllCases())

	require.Len(t, probe.start, 2)
	assert.Equal(t, probe.start, probe.end)
}

type identityProbe struct {
	engine.EmptyListener
	start, end []string
}

func (p *identityProbe) OnCaseStart(*engine.CaseInfo) {
	p.start = append(p.start, fmt.Sprintf("%p/%p", features.Instance(), workerpool.Instance()))
}

func (p *identityProbe) OnCaseEnd(*engine.CaseInfo) {
	p.end = append(p.end, fmt.Sprintf("%p/%p", features.Instance(), workerpool.Instance()))
}

func TestLeakedRegistryIsReported(t *testing.T) {
	s, e := newTestSuite(t, nil)
	check.SetDCheckIsFatal(false)

	e.Register("Leaky", "ReplacesPool", func(et *engine.T) {
		workerpool.SetInstance(workerpool.New(workerpool.DefaultConfig()))
	})
	e.Register("Leaky", "Innocent", func(et *engine.T) {})

	s.Initialize()
	assert.Equal(t, 1, e.RunAllCases())

	res := e.Results()
	require.Len(t, res, 2)
	require.True(t, res[0].Failed())
	assert.Contains(t, res[0].Failures()[0].Message, "WorkerPool")
	assert.False(t, res[1].Failed())
}

func TestInitializeTwiceIsFatal(t *testing.T) {
	s, e := newTestSuite(t, nil)
	s.Initialize()
	listeners := e.Listeners().Len()

	assert.PanicsWithValue(t, exited{1}, s.Initialize)
	assert.Equal(t, listeners, e.Listeners().Len(), "second Initialize must not register listeners")
	assert.Equal(t, PhaseInitialized, s.Phase())
}

func TestLifecycleMisuseIsFatal(t *testing.T) {
	tests := []struct {
		name       string
		initialize bool
		call       func(s *Suite)
	}{
		{"shutdown before initialize", false, func(s *Suite) { s.Shutdown() }},
		{"leak toggle after initialize", true, func(s *Suite) { s.SetCheckForLeakedGlobals(false) }},
		{"priority toggle after initialize", true, func(s *Suite) { s.SetCheckProcessPriority(false) }},
		{"parse arguments twice", false, func(s *Suite) { s.ParseArguments([]string{"suite"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSuite(t, nil)
			if tt.initialize {
				s.Initialize()
			}
			assert.PanicsWithValue(t, exited{1}, func() { tt.call(s) })
		})
	}
}

func TestListenerRegistration(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		output   bool
		disable  bool
		expected []string
	}{
		{
			name: "defaults",
			expected: []string{
				"*results.Metrics",
				"*results.Summary",
				"testsuite.disableMaybeListener",
				"*testsuite.commandLineRestoreListener",
				"*testsuite.featureScopeListener",
				"*testsuite.leakedGlobalsListener",
				"*testsuite.processPriorityListener",
			},
		},
		{
			name:    "checks disabled",
			disable: true,
			expected: []string{
				"*results.Metrics",
				"*results.Summary",
				"testsuite.disableMaybeListener",
				"*testsuite.commandLineRestoreListener",
				"*testsuite.featureScopeListener",
			},
		},
		{
			name: "goroutine leaks",
			args: []string{"--check-goroutine-leaks"},
			expected: []string{
				"*results.Metrics",
				"*results.Summary",
				"testsuite.disableMaybeListener",
				"*testsuite.commandLineRestoreListener",
				"*testsuite.featureScopeListener",
				"*testsuite.leakedGlobalsListener",
				"*testsuite.processPriorityListener",
				"*testsuite.goroutineLeakListener",
			},
		},
		{
			name: "goroutine leaks switched off",
			args: []string{"--check-goroutine-leaks=false"},
			expected: []string{
				"*results.Metrics",
				"*results.Summary",
				"testsuite.disableMaybeListener",
				"*testsuite.commandLineRestoreListener",
				"*testsuite.featureScopeListener",
				"*testsuite.leakedGlobalsListener",
				"*testsuite.processPriorityListener",
			},
		},
		{
			name:   "result printer",
			output: true,
			expected: []string{
				"*results.Metrics",
				"*results.Summary",
				"*results.XMLPrinter",
				"testsuite.disableMaybeListener",
				"*testsuite.commandLineRestoreListener",
				"*testsuite.featureScopeListener",
				"*testsuite.leakedGlobalsListener",
				"*testsuite.processPriorityListener",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.output {
				args = append(args, "--test-launcher-output="+filepath.Join(t.TempDir(), "out.xml"))
			}
			s, e := newTestSuite(t, args)
			if tt.disable {
				s.SetCheckForLeakedGlobals(false)
				s.SetCheckProcessPriority(false)
			}
			s.Initialize()

			var got []string
			for i := 0; i < e.Listeners().Len(); i++ {
				got = append(got, fmt.Sprintf("%T", e.Listeners().At(i)))
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("listeners mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResultPrinterOnlyWhenPathAbsent(t *testing.T) {
	tests := []struct {
		name        string
		preexisting bool
		wantPrinter bool
	}{
		{"path absent", false, true},
		{"path owned by parent", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.xml")
			if tt.preexisting {
				require.NoError(t, os.WriteFile(out, []byte("parent"), 0644))
			}
			s, _ := newTestSuite(t, []string{"--enable-features=A", "--test-launcher-output=" + out})
			s.Initialize()

			if !tt.wantPrinter {
				assert.Nil(t, s.ResultPrinter())
				data, err := os.ReadFile(out)
				require.NoError(t, err)
				assert.Equal(t, "parent", string(data))
				return
			}
			require.NotNil(t, s.ResultPrinter())
			assert.Equal(t, out, s.ResultPrinter().Path())
			assert.FileExists(t, out)
		})
	}
}

func TestFatalAssertionReportsOnce(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.xml")
	s, _ := newTestSuite(t, []string{"--test-launcher-output=" + out})
	s.Initialize()
	printer := s.ResultPrinter()
	require.NotNil(t, printer)

	assert.PanicsWithValue(t, exited{1}, func() {
		logging.Default().Fatal("registry corrupted")
	})
	assert.Equal(t, 1, printer.AssertCount())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	crash := xmlquery.FindOne(doc, "//testcase[@result='crash']/failure")
	require.NotNil(t, crash)
	assert.Equal(t, "registry corrupted", crash.SelectAttr("message"))
	assert.Contains(t, crash.InnerText(), "registry corrupted")

	printer.OnGroupStart(&engine.GroupInfo{Name: "Late", Cases: 1})
	printer.OnAssert("late.go", 1, "second", "second")
	after, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(after), "nothing may be written after the first assert")
	assert.Equal(t, 1, printer.AssertCount())
}

func TestRunDispatchesChildProcess(t *testing.T) {
	const helper = "testsuite-child-seven"
	if _, ok := multiprocess.Lookup(helper); !ok {
		multiprocess.Register(helper, func() int { return 7 })
	}

	runner := &fakeRunner{}
	var summary bytes.Buffer
	s, _ := newTestSuite(t, []string{"--test-child-process=" + helper},
		WithRunner(runner), WithSummaryOutput(&summary))

	assert.Equal(t, 7, s.Run())
	assert.Zero(t, runner.runs, "case engine must not run for a child helper")
	assert.Equal(t, PhaseRunning, s.Phase(), "Shutdown is skipped for a child helper")
	assert.Empty(t, summary.String())
}

func TestRunRunsCasesAndShutsDown(t *testing.T) {
	runner := &fakeRunner{result: 1}
	var summary bytes.Buffer
	s, _ := newTestSuite(t, nil, WithRunner(runner), WithSummaryOutput(&summary))

	assert.Equal(t, 1, s.Run())
	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, PhaseShutDown, s.Phase())
	assert.True(t, s.Initialized())
	assert.Contains(t, summary.String(), "0 cases")
}

func TestRunFeatureContextDuringInitialize(t *testing.T) {
	var enabledDuringInit bool
	runner := &probingRunner{probe: func() {
		enabledDuringInit = enabledDuringInit || features.IsEnabled(featureA)
	}}

	s, _ := newTestSuite(t, []string{"--enable-features=A"}, WithRunner(runner))
	s.Run()
	assert.True(t, enabledDuringInit)
	assert.Nil(t, features.Instance(), "process-lifetime scope ends after Initialize")
}

// probingRunner calls probe whenever the suite asks for its listeners,
// which happens inside Initialize.
type probingRunner struct {
	fakeRunner
	probe func()
}

func (p *probingRunner) Listeners() *engine.Listeners {
	p.probe()
	return p.fakeRunner.Listeners()
}

func TestMaybePrefixFailsCase(t *testing.T) {
	s, e := newTestSuite(t, nil)
	e.Register("Platform", "MAYBE_Flaky", func(et *engine.T) {})
	e.Register("Platform", "Renamed", func(et *engine.T) {})
	s.Initialize()

	assert.Equal(t, 1, e.RunAllCases())
	res := e.Results()
	require.Len(t, res, 2)
	assert.True(t, res[0].Failed())
	assert.Contains(t, res[0].Failures()[0].Message, MaybePrefix)
	assert.False(t, res[1].Failed())
}

func TestBackgroundedProcess(t *testing.T) {
	t.Run("fatal at construction", func(t *testing.T) {
		resetProcessState(t)
		stubExit(t)
		defer procprio.SetProbeForTesting(func() (int32, error) { return 10, nil })()
		assert.PanicsWithValue(t, exited{1}, func() { newProcessPriorityListener() })
	})

	t.Run("soft failure during case", func(t *testing.T) {
		resetProcessState(t)
		l := newProcessPriorityListener()
		l.checkAtEnd = true

		nice := int32(0)
		defer procprio.SetProbeForTesting(func() (int32, error) { return nice, nil })()

		e := engine.New()
		e.Listeners().Append(l)
		e.Register("Prio", "Lowered", func(et *engine.T) { nice = 5 })
		e.Register("Prio", "StaysLow", func(et *engine.T) {})

		assert.Equal(t, 1, e.RunAllCases())
		res := e.Results()
		require.Len(t, res, 2)
		assert.Len(t, res[0].Failures(), 1, "only the end check fails for the first case")
		assert.Len(t, res[1].Failures(), 2)
	})
}

func TestStatusReportsProgress(t *testing.T) {
	s, e := newTestSuite(t, nil)
	e.Register("Status", "One", func(et *engine.T) {})
	e.Register("Status", "Two", func(et *engine.T) { et.Errorf("boom") })
	s.Initialize()
	e.RunAllCases()

	st := s.Status()
	assert.Equal(t, s.RunID(), st.RunID)
	assert.Equal(t, string(PhaseInitialized), st.Phase)
	require.Len(t, st.Cases, 2)
	assert.Equal(t, "passed", st.Cases[0].Outcome)
	assert.Equal(t, "failed", st.Cases[1].Outcome)
	assert.Equal(t, 1, st.Cases[1].Failures)
}

func TestProfileNameIsStable(t *testing.T) {
	first := ProfileName()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, ProfileName())
}

func TestRunUnitTests(t *testing.T) {
	tests := []struct {
		name string
		body engine.CaseFunc
		want int
	}{
		{"passing", func(et *engine.T) {}, 0},
		{"failing", func(et *engine.T) { et.Errorf("nope") }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetProcessState(t)
			stubExit(t)
			got := RunUnitTests([]string{"suite", "--log-level=error"}, func(e *engine.Engine) {
				e.Register("Entry", "Case", tt.body)
			})
			assert.Equal(t, tt.want, got)
			assert.False(t, cmdline.Initialized(), "Close resets the command line it parsed")
		})
	}
}

// readResults parses the XML result file at path.
func readResults(t *testing.T, path string) *xmlquery.Node {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	return doc
}

func TestCheckFailuresReachOutputs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.xml")
	metricsFile := filepath.Join(dir, "run.prom")
	var summary bytes.Buffer
	s, e := newTestSuite(t, []string{
		"--test-launcher-output=" + out,
		"--test-launcher-metrics=" + metricsFile,
	}, WithSummaryOutput(&summary))
	check.SetDCheckIsFatal(false)

	e.Register("Leaky", "ReplacesPool", func(et *engine.T) {
		workerpool.SetInstance(workerpool.New(workerpool.DefaultConfig()))
	})
	e.Register("Leaky", "Innocent", func(et *engine.T) {})

	s.Initialize()
	assert.Equal(t, 1, e.RunAllCases())
	s.Shutdown()

	doc := readResults(t, out)
	leaked := xmlquery.FindOne(doc, "//testcase[@name='ReplacesPool']/failure")
	require.NotNil(t, leaked, "case failure added at case end must be in the result file")
	assert.Contains(t, leaked.SelectAttr("message"), "WorkerPool")
	assert.Nil(t, xmlquery.FindOne(doc, "//testcase[@name='Innocent']/failure"))

	assert.Contains(t, summary.String(), "Leaky.ReplacesPool")
	assert.Contains(t, summary.String(), "2 cases: 1 passed")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `testsuite_cases_total{group="Leaky",outcome="failed"} 1`)
	assert.Contains(t, string(prom), `testsuite_cases_total{group="Leaky",outcome="passed"} 1`)
}

// poolSwapper replaces the worker pool when a group starts, outside any case.
type poolSwapper struct {
	engine.EmptyListener
}

func (poolSwapper) OnGroupStart(*engine.GroupInfo) {
	workerpool.SetInstance(workerpool.New(workerpool.DefaultConfig()))
}

func TestGroupLevelLeakIsReported(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.xml")
	metricsFile := filepath.Join(dir, "run.prom")
	var summary bytes.Buffer
	s, e := newTestSuite(t, []string{
		"--test-launcher-output=" + out,
		"--test-launcher-metrics=" + metricsFile,
	}, WithSummaryOutput(&summary))
	check.SetDCheckIsFatal(false)

	e.Register("Swapped", "Clean", func(et *engine.T) {})

	s.Initialize()
	e.Listeners().Append(poolSwapper{})
	assert.Equal(t, 1, e.RunAllCases())

	res := e.Results()
	require.Len(t, res, 1)
	assert.False(t, res[0].Failed(), "the case itself left the registries alone")
	s.Shutdown()

	doc := readResults(t, out)
	teardown := xmlquery.FindOne(doc, "//testcase[@name='GroupTeardown' and @classname='Swapped']/failure")
	require.NotNil(t, teardown, "group failure must be in the result file")
	assert.Contains(t, teardown.SelectAttr("message"), "WorkerPool")

	assert.Contains(t, summary.String(), "group failure")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `testsuite_group_failures_total{group="Swapped"} 1`)
}

func TestShutdownTwiceIsFatal(t *testing.T) {
	var summary bytes.Buffer
	s, _ := newTestSuite(t, nil, WithSummaryOutput(&summary))
	s.Initialize()
	s.Shutdown()
	rendered := summary.String()

	assert.PanicsWithValue(t, exited{1}, s.Shutdown)
	assert.Equal(t, rendered, summary.String(), "a second Shutdown must not render again")
	assert.Equal(t, PhaseShutDown, s.Phase())
}
