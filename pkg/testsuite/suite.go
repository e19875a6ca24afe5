// Package testsuite owns the lifecycle of a test binary: it parses the
// process command line once, installs the cross-case invariant listeners on
// the case engine, routes fatal assertions to the result reporter, and
// releases everything it acquired on shutdown.
//
// The usual entry point is RunUnitTests:
//
//	func main() {
//		os.Exit(testsuite.RunUnitTests(os.Args, func(e *engine.Engine) {
//			e.Register("Math", "Add", testAdd)
//		}))
//	}
//
// A binary re-executed with --test-child-process=name runs the helper
// registered under that name with pkg/multiprocess instead of the cases.
package testsuite

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/testsuite/internal/config"
	idebug "github.com/psantana5/testsuite/internal/debug"
	"github.com/psantana5/testsuite/internal/locale"
	"github.com/psantana5/testsuite/internal/statusz"
	"github.com/psantana5/testsuite/pkg/atexit"
	"github.com/psantana5/testsuite/pkg/check"
	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/engine"
	"github.com/psantana5/testsuite/pkg/features"
	"github.com/psantana5/testsuite/pkg/isolation"
	"github.com/psantana5/testsuite/pkg/logging"
	"github.com/psantana5/testsuite/pkg/multiprocess"
	"github.com/psantana5/testsuite/pkg/results"
	"github.com/psantana5/testsuite/pkg/timeouts"
	"github.com/psantana5/testsuite/pkg/tracing"
)

const (
	// DefaultProfileTemplate is used when --profiling-file is absent.
	DefaultProfileTemplate = "test-profile-{pid}"

	debuggerWait  = 60 * time.Second
	atExitTimeout = 10 * time.Second
	defaultLocale = "en_US"
)

var (
	profileOnce sync.Once
	profileName string
)

// ProfileName returns the profile file name for this process. It is derived
// once from --profiling-file, falling back to DefaultProfileTemplate.
func ProfileName() string {
	profileOnce.Do(func() {
		profileName = DefaultProfileTemplate
		if cl := cmdline.ForCurrentProcess(); cl != nil && cl.HasSwitch(cmdline.ProfilingFile) {
			profileName = cl.SwitchValue(cmdline.ProfilingFile)
		}
	})
	return profileName
}

// Option configures a Suite.
type Option func(*Suite)

// WithRunner sets the case engine. The default is a fresh engine.Engine.
func WithRunner(r engine.Runner) Option {
	return func(s *Suite) { s.runner = r }
}

// WithSummaryOutput sets where the end-of-run summary table is written.
// The default is stdout; nil disables it.
func WithSummaryOutput(w io.Writer) Option {
	return func(s *Suite) { s.summaryOut = w }
}

// WithIsolationSources replaces the registries the isolation check watches.
func WithIsolationSources(sources ...isolation.Source) Option {
	return func(s *Suite) { s.isolationSources = sources }
}

// Suite is the process-wide test orchestrator.
type Suite struct {
	runner           engine.Runner
	summaryOut       io.Writer
	isolationSources []isolation.Source

	mu          sync.Mutex
	phase       Phase
	initialized bool

	initializedCommandLine bool
	checkLeakedGlobals     bool
	checkProcessPriority   bool

	runID     string
	startedAt time.Time
	cfg       *config.Config

	atExit        *atexit.Manager
	ownsAtExit    bool
	restoreAssert func()
	stopStackDump func()
	previousLog   *logging.Logger
	log           *logging.Logger

	printer *results.XMLPrinter
	metrics *results.Metrics
	summary *results.Summary
	tracer  *tracing.Provider
	status  *statusz.Server
}

// New constructs the suite, parses args into the process command line and
// sets up logging from it.
func New(args []string, opts ...Option) *Suite {
	s := &Suite{
		summaryOut:           os.Stdout,
		checkLeakedGlobals:   true,
		checkProcessPriority: true,
		runID:                uuid.New().String(),
		startedAt:            time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = engine.New()
	}
	s.preInitialize()
	s.ParseArguments(args)
	s.initializeLogging()
	return s
}

// preInitialize must run before anything that could register at-exit work.
func (s *Suite) preInitialize() {
	check.DCheck(!s.initialized, "preInitialize after Initialize")

	debug.SetTraceback("crash")
	if e, ok := s.runner.(*engine.Engine); ok {
		e.SetDeathTestStyle(engine.DeathTestThreadsafe)
	}

	if m := atexit.Current(); m != nil {
		s.atExit = m
	} else {
		s.atExit = atexit.New(atExitTimeout)
		s.ownsAtExit = true
	}
	s.phase = PhaseConstructed
}

// ParseArguments initializes the process command line from args unless an
// earlier caller already did.
func (s *Suite) ParseArguments(args []string) {
	s.transition(PhaseArgumentsParsed)
	s.initializedCommandLine = cmdline.Init(args)

	cfg, err := config.Load(cmdline.ForCurrentProcess())
	check.Check(err == nil, "failed to load suite configuration: %v", err)
	if err != nil {
		return
	}
	cfg.ApplyToCommandLine(cmdline.ForCurrentProcess())
	s.cfg = cfg
	s.checkLeakedGlobals = cfg.CheckLeakedGlobals
	s.checkProcessPriority = cfg.CheckProcessPriority
}

func (s *Suite) initializeLogging() {
	level, jsonFormat, logFile := logging.INFO, false, ""
	if s.cfg != nil {
		level = logging.ParseLevel(s.cfg.LogLevel)
		jsonFormat = s.cfg.LogJSON
		logFile = s.cfg.LogFile
	}

	l := logging.NewLogger(level, jsonFormat)
	if logFile != "" {
		fl, err := logging.NewFileLogger(logFile, level, jsonFormat)
		if err != nil {
			l.Warn("Falling back to stderr logging", map[string]interface{}{"error": err.Error()})
		} else {
			l = fl
		}
	}
	s.log = l.WithField("run_id", s.runID)
	s.previousLog = logging.SetDefault(s.log)
	if e, ok := s.runner.(*engine.Engine); ok {
		e.SetLogger(s.log.Logr())
	}
}

// SetCheckForLeakedGlobals toggles the registry isolation listener. It must
// be called before Initialize.
func (s *Suite) SetCheckForLeakedGlobals(enabled bool) {
	check.DCheck(!s.initialized, "SetCheckForLeakedGlobals called after Initialize")
	s.checkLeakedGlobals = enabled
}

// SetCheckProcessPriority toggles the process priority listener. It must be
// called before Initialize.
func (s *Suite) SetCheckProcessPriority(enabled bool) {
	check.DCheck(!s.initialized, "SetCheckProcessPriority called after Initialize")
	s.checkProcessPriority = enabled
}

// Initialize installs listeners and process facilities. Calling it twice is
// fatal.
func (s *Suite) Initialize() {
	if s.initialized {
		check.DCheck(false, "Initialize called twice")
		return
	}
	cl := cmdline.ForCurrentProcess()

	timeouts.SetAddFailureOnTimeout()

	if cl.HasSwitch(cmdline.WaitForDebugger) {
		idebug.WaitForDebugger(debuggerWait)
	}
	if cl.HasSwitch(cmdline.InternalRunDeathTest) {
		check.SetDCheckIsFatal(true)
	}

	s.stopStackDump = idebug.EnableInProcessStackDumping()
	s.atExit.Register("stack dumping", func(context.Context) error {
		s.stopStackDump()
		return nil
	})
	if !idebug.BeingDebugged() && !cl.HasSwitch(cmdline.ShowErrorDialogs) {
		idebug.SetSuppressDebugUI(true)
		s.restoreAssert = logging.ScopedAssertHandler(s.OnFatalAssertion)
	}

	if err := locale.SetDefault(defaultLocale); err != nil {
		s.log.Warn("Failed to set default locale", map[string]interface{}{"error": err.Error()})
	}

	// End hooks fire in reverse registration order, so outputs registered
	// first record a case only after every check has added its failures.
	s.registerOutputs(cl)
	s.registerChecks()

	timeouts.Initialize()

	s.startStatusServer(cl)

	if cl.HasSwitch(cmdline.ProfilingFile) {
		idebug.EnableProfiling(true)
	}
	if _, err := idebug.StartProfiling(ProfileName()); err != nil {
		s.log.Warn("Failed to start profiling", map[string]interface{}{"error": err.Error()})
	}

	idebug.VerifyDebugger()

	s.transition(PhaseInitialized)
	s.initialized = true
}

func (s *Suite) registerOutputs(cl *cmdline.CommandLine) {
	ls := s.runner.Listeners()

	s.metrics = results.NewMetrics(s.runID)
	ls.Append(s.metrics)
	if path := cl.SwitchValue(cmdline.TestLauncherMetrics); path != "" {
		s.atExit.Register("metrics file", func(context.Context) error {
			return s.metrics.WriteFile(path)
		})
	}

	s.summary = results.NewSummary()
	ls.Append(s.summary)

	s.addResultPrinter(cl)
	s.startTracing()
}

func (s *Suite) registerChecks() {
	ls := s.runner.Listeners()
	ls.Append(disableMaybeListener{})
	ls.Append(&commandLineRestoreListener{})
	ls.Append(&featureScopeListener{})
	if s.checkLeakedGlobals {
		ls.Append(newLeakedGlobalsListener(s.isolationSources))
	}
	if s.checkProcessPriority {
		ls.Append(newProcessPriorityListener())
	}
	if s.cfg != nil && s.cfg.CheckGoroutineLeaks {
		ls.Append(&goroutineLeakListener{})
	}
}

// addResultPrinter adds the XML reporter when an output path is requested
// and no other process already owns that file.
func (s *Suite) addResultPrinter(cl *cmdline.CommandLine) {
	if !cl.HasSwitch(cmdline.TestLauncherOutput) {
		return
	}
	path := cl.SwitchValue(cmdline.TestLauncherOutput)

	// An existing file means a parent process is writing it.
	if _, err := os.Stat(path); err == nil {
		s.log.Warn("Test launcher output path exists; not adding result printer", map[string]interface{}{
			"path": path,
		})
		return
	}

	printer := results.NewXMLPrinter(s.runID)
	if !printer.Initialize(path) {
		_, statErr := os.Stat(path)
		check.Check(false, "failed to initialize result printer; output path is %s and it exists: %v", path, statErr == nil)
		return
	}
	s.mu.Lock()
	s.printer = printer
	s.mu.Unlock()
	s.runner.Listeners().Append(printer)
	s.atExit.Register("result printer", atexit.CloseResource(printer, "result printer"))
}

func (s *Suite) startTracing() {
	serviceName, endpoint := "testsuite", tracing.DefaultEndpoint
	if s.cfg != nil {
		serviceName, endpoint = s.cfg.ServiceName, s.cfg.TraceEndpoint
	}
	tp, err := tracing.StartFromCommandLine(serviceName, s.runID, endpoint)
	if err != nil {
		s.log.Warn("Tracing disabled", map[string]interface{}{"error": err.Error()})
		return
	}
	s.tracer = tp
	if tp.Enabled() {
		s.runner.Listeners().Append(tp.Listener())
		s.atExit.Register("tracing", tp.Shutdown)
	}
}

func (s *Suite) startStatusServer(cl *cmdline.CommandLine) {
	addr := cl.SwitchValue(cmdline.StatusAddr)
	if addr == "" {
		return
	}
	srv := statusz.New(s.Status, s.metrics.Registry())
	if err := srv.Start(addr); err != nil {
		s.log.Warn("Status server not started", map[string]interface{}{"error": err.Error()})
		return
	}
	s.status = srv
	s.atExit.Register("status server", atexit.StopServer(srv, "status server"))
}

// Run initializes the suite and runs every case, or the child helper named
// by --test-child-process. The helper's result is returned without shutting
// the suite down.
func (s *Suite) Run() int {
	cl := cmdline.ForCurrentProcess()

	// Code run during Initialize may query features before any case scope
	// exists.
	var scoped features.ScopedOverride
	scoped.InitFromCommandLine(cl.SwitchValue(cmdline.EnableFeatures), cl.SwitchValue(cmdline.DisableFeatures))
	s.Initialize()
	scoped.Reset()

	s.transition(PhaseRunning)
	if name := cl.SwitchValue(cmdline.TestChildProcess); name != "" {
		return multiprocess.InvokeChildProcessTest(name)
	}

	result := s.runner.RunAllCases()
	s.Shutdown()
	return result
}

// Shutdown releases what Initialize acquired.
func (s *Suite) Shutdown() {
	if !s.initialized {
		check.DCheck(false, "Shutdown called before Initialize")
		return
	}
	if phase := s.Phase(); phase == PhaseShutDown {
		check.DCheck(false, "Shutdown called twice")
		return
	}
	if err := idebug.StopProfiling(); err != nil {
		s.log.Warn("Failed to stop profiling", map[string]interface{}{"error": err.Error()})
	}
	if s.summary != nil && s.summaryOut != nil {
		s.summary.Render(s.summaryOut)
	}
	if s.ownsAtExit {
		if err := s.atExit.Run(); err != nil {
			s.log.Error("Shutdown completed with errors", map[string]interface{}{"error": err.Error()})
		}
	}
	s.transition(PhaseShutDown)
}

// OnFatalAssertion reports a fatal log entry to the result printer, if
// any, and exits with status 1 without running deferred or at-exit work.
func (s *Suite) OnFatalAssertion(file string, line int, summary, stackTrace string) {
	s.mu.Lock()
	printer := s.printer
	s.mu.Unlock()
	if printer != nil {
		printer.OnAssert(file, line, summary, summary+stackTrace)
	}
	logging.Exit(1)
}

// Close undoes process-wide state the suite installed outside of
// Initialize: the command line it parsed, the assert handler and the
// default logger.
func (s *Suite) Close() {
	if s.restoreAssert != nil {
		s.restoreAssert()
	}
	if s.stopStackDump != nil {
		s.stopStackDump()
	}
	if s.previousLog != nil {
		logging.SetDefault(s.previousLog)
		s.previousLog = nil
		s.log.Close()
	}
	if s.ownsAtExit {
		s.atExit.Release()
	}
	if s.initializedCommandLine {
		cmdline.Reset()
	}
}

// Phase returns the current lifecycle phase.
func (s *Suite) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Initialized reports whether Initialize has completed.
func (s *Suite) Initialized() bool {
	return s.initialized
}

// RunID identifies this run in logs, results and traces.
func (s *Suite) RunID() string {
	return s.runID
}

// Runner returns the case engine.
func (s *Suite) Runner() engine.Runner {
	return s.runner
}

// ResultPrinter returns the XML reporter, or nil when none was added.
func (s *Suite) ResultPrinter() *results.XMLPrinter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.printer
}

// Metrics returns the outcome metrics, nil before Initialize.
func (s *Suite) Metrics() *results.Metrics {
	return s.metrics
}

// Status reports live progress for the status server.
func (s *Suite) Status() statusz.Status {
	st := statusz.Status{
		RunID:     s.runID,
		PID:       os.Getpid(),
		Phase:     string(s.Phase()),
		StartedAt: s.startedAt,
		Cases:     []statusz.CaseStatus{},
	}
	e, ok := s.runner.(*engine.Engine)
	if !ok {
		return st
	}
	if c := e.CurrentCase(); c != nil {
		st.CurrentCase = c.FullName()
	}
	for _, c := range e.Results() {
		if c == e.CurrentCase() {
			continue
		}
		st.Cases = append(st.Cases, statusz.CaseStatus{
			Name:     c.FullName(),
			Outcome:  string(c.Outcome()),
			Duration: c.Duration().String(),
			Failures: len(c.Failures()),
		})
	}
	return st
}

func (s *Suite) transition(to Phase) {
	s.mu.Lock()
	err := ValidatePhaseTransition(s.phase, to)
	if err == nil {
		s.phase = to
	}
	s.mu.Unlock()

	// The fatal path reaches OnFatalAssertion, which takes s.mu.
	check.Check(err == nil, "suite lifecycle: %v", err)
}

// RunUnitTests builds a suite around a fresh engine, lets register add
// cases, runs them and returns the exit status.
func RunUnitTests(args []string, register func(e *engine.Engine)) int {
	e := engine.New()
	s := New(args, WithRunner(e))
	defer s.Close()
	register(e)
	return s.Run()
}
