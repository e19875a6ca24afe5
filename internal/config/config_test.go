package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/tracing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(cmdline.New("suite"))
	require.NoError(t, err)

	assert.Equal(t, "testsuite", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.CheckLeakedGlobals)
	assert.True(t, cfg.CheckProcessPriority)
	assert.False(t, cfg.CheckGoroutineLeaks)
	assert.False(t, cfg.EnableTracing)
	assert.Equal(t, tracing.DefaultEndpoint, cfg.TraceEndpoint)
	assert.Zero(t, cfg.ActionTimeoutMS)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
check_process_priority: false
trace_endpoint: collector:4318
action_timeout_ms: 2000
metrics_file: /tmp/from-file.prom
`)

	tests := []struct {
		name     string
		env      map[string]string
		switches map[string]string
		check    func(t *testing.T, cfg *Config)
	}{
		{
			name: "file over defaults",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.False(t, cfg.CheckProcessPriority)
				assert.Equal(t, "collector:4318", cfg.TraceEndpoint)
				assert.Equal(t, 2000, cfg.ActionTimeoutMS)
			},
		},
		{
			name: "env over file",
			env:  map[string]string{"TESTSUITE_LOG_LEVEL": "warn", "TESTSUITE_CHECK_GOROUTINE_LEAKS": "true"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "warn", cfg.LogLevel)
				assert.True(t, cfg.CheckGoroutineLeaks)
			},
		},
		{
			name:     "switch over env",
			env:      map[string]string{"TESTSUITE_LOG_LEVEL": "warn"},
			switches: map[string]string{cmdline.LogLevel: "error", cmdline.UITestActionTimeout: "500"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "error", cfg.LogLevel)
				assert.Equal(t, 500, cfg.ActionTimeoutMS)
			},
		},
		{
			name:     "bare boolean switch",
			switches: map[string]string{cmdline.EnableTracing: "", cmdline.LogJSON: ""},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.EnableTracing)
				assert.True(t, cfg.LogJSON)
			},
		},
		{
			name:     "metrics switch",
			switches: map[string]string{cmdline.TestLauncherMetrics: "/tmp/run.prom"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/run.prom", cfg.MetricsFile)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cl := cmdline.New("suite")
			cl.AppendSwitchValue(cmdline.SuiteConfig, path)
			for k, v := range tt.switches {
				cl.AppendSwitchValue(k, v)
			}
			cfg, err := Load(cl)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cl := cmdline.New("suite")
	cl.AppendSwitchValue(cmdline.SuiteConfig, filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load(cl)
	assert.Error(t, err)
}

func TestLoadNilCommandLine(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestApplyToCommandLine(t *testing.T) {
	cfg := &Config{
		LogLevel:            "debug",
		TraceEndpoint:       "collector:4318",
		MetricsFile:         "/tmp/run.prom",
		ActionTimeoutMS:     1500,
		CheckGoroutineLeaks: true,
		EnableTracing:       false,
	}
	cl := cmdline.New("suite")
	cl.AppendSwitchValue(cmdline.LogLevel, "warn")

	cfg.ApplyToCommandLine(cl)

	assert.Equal(t, "warn", cl.SwitchValue(cmdline.LogLevel), "existing switch wins")
	assert.Equal(t, "collector:4318", cl.SwitchValue(cmdline.TraceEndpoint))
	assert.Equal(t, "/tmp/run.prom", cl.SwitchValue(cmdline.TestLauncherMetrics))
	assert.Equal(t, "1500", cl.SwitchValue(cmdline.UITestActionTimeout))
	assert.True(t, cl.HasSwitch(cmdline.CheckGoroutineLeaks))
	assert.False(t, cl.HasSwitch(cmdline.EnableTracing))
	assert.False(t, cl.HasSwitch(cmdline.TestTinyTimeout))
	assert.False(t, cl.HasSwitch(cmdline.StatusAddr))
}

func TestApplyToCommandLineSkipsDefaults(t *testing.T) {
	cl := cmdline.Parse([]string{"suite", "--enable-features=A"})
	before := cl.Argv()

	cfg, err := Load(cl)
	require.NoError(t, err)
	cfg.ApplyToCommandLine(cl)

	assert.Equal(t, before, cl.Argv(), "defaults must not be written as switches")
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, tracing.DefaultEndpoint, cfg.TraceEndpoint)
}

func TestBoolSwitchesTurnOff(t *testing.T) {
	path := writeConfig(t, "check_goroutine_leaks: true\nenable_tracing: true\n")
	cl := cmdline.Parse([]string{"suite",
		"--suite-config=" + path,
		"--check-goroutine-leaks=false",
		"--enable-tracing=0",
	})

	cfg, err := Load(cl)
	require.NoError(t, err)
	assert.False(t, cfg.CheckGoroutineLeaks)
	assert.False(t, cfg.EnableTracing)
}
