package cmdline

// Switches consumed by the suite orchestrator.
const (
	EnableFeatures         = "enable-features"
	DisableFeatures        = "disable-features"
	TestLauncherOutput     = "test-launcher-output"
	TestChildProcess       = "test-child-process"
	WaitForDebugger        = "wait-for-debugger"
	ShowErrorDialogs       = "show-error-dialogs"
	InternalRunDeathTest   = "test-internal-run-death-test"
	ProfilingFile          = "profiling-file"
	TestFilter             = "test-filter"
	TestLauncherMetrics    = "test-launcher-metrics"
	EnableTracing          = "enable-tracing"
	TraceEndpoint          = "trace-endpoint"
	CheckGoroutineLeaks    = "check-goroutine-leaks"
	SuiteConfig            = "suite-config"
	LogLevel               = "log-level"
	LogJSON                = "log-json"
	LogFile                = "log-file"
	StatusAddr             = "status-addr"
	TestTinyTimeout        = "test-tiny-timeout"
	UITestActionTimeout    = "ui-test-action-timeout"
	UITestActionMaxTimeout = "ui-test-action-max-timeout"
	TestLauncherTimeout    = "test-launcher-timeout"
)
