// Package config loads suite settings from defaults, an optional YAML file,
// TESTSUITE_* environment variables and the process command line, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/tracing"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "TESTSUITE"

// Config holds suite-wide settings.
type Config struct {
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" yaml:"log_json"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file,omitempty"`

	CheckLeakedGlobals   bool `mapstructure:"check_leaked_globals" yaml:"check_leaked_globals"`
	CheckProcessPriority bool `mapstructure:"check_process_priority" yaml:"check_process_priority"`
	CheckGoroutineLeaks  bool `mapstructure:"check_goroutine_leaks" yaml:"check_goroutine_leaks"`

	EnableTracing bool   `mapstructure:"enable_tracing" yaml:"enable_tracing"`
	TraceEndpoint string `mapstructure:"trace_endpoint" yaml:"trace_endpoint"`

	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	StatusAddr  string `mapstructure:"status_addr" yaml:"status_addr,omitempty"`
	TestFilter  string `mapstructure:"test_filter" yaml:"test_filter,omitempty"`
	Profile     string `mapstructure:"profile" yaml:"profile,omitempty"`

	TinyTimeoutMS      int `mapstructure:"tiny_timeout_ms" yaml:"tiny_timeout_ms,omitempty"`
	ActionTimeoutMS    int `mapstructure:"action_timeout_ms" yaml:"action_timeout_ms,omitempty"`
	ActionMaxTimeoutMS int `mapstructure:"action_max_timeout_ms" yaml:"action_max_timeout_ms,omitempty"`
	LauncherTimeoutMS  int `mapstructure:"launcher_timeout_ms" yaml:"launcher_timeout_ms,omitempty"`
}

// binding ties a config key to the switch that overrides it.
type binding struct {
	key    string
	sw     string
	isBool bool
}

var bindings = []binding{
	{"log_level", cmdline.LogLevel, false},
	{"log_json", cmdline.LogJSON, true},
	{"log_file", cmdline.LogFile, false},
	{"check_goroutine_leaks", cmdline.CheckGoroutineLeaks, true},
	{"enable_tracing", cmdline.EnableTracing, true},
	{"trace_endpoint", cmdline.TraceEndpoint, false},
	{"metrics_file", cmdline.TestLauncherMetrics, false},
	{"status_addr", cmdline.StatusAddr, false},
	{"test_filter", cmdline.TestFilter, false},
	{"profile", cmdline.ProfilingFile, false},
	{"tiny_timeout_ms", cmdline.TestTinyTimeout, false},
	{"action_timeout_ms", cmdline.UITestActionTimeout, false},
	{"action_max_timeout_ms", cmdline.UITestActionMaxTimeout, false},
	{"launcher_timeout_ms", cmdline.TestLauncherTimeout, false},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "testsuite")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("log_file", "")
	v.SetDefault("check_leaked_globals", true)
	v.SetDefault("check_process_priority", true)
	v.SetDefault("check_goroutine_leaks", false)
	v.SetDefault("enable_tracing", false)
	v.SetDefault("trace_endpoint", tracing.DefaultEndpoint)
	v.SetDefault("metrics_file", "")
	v.SetDefault("status_addr", "")
	v.SetDefault("test_filter", "")
	v.SetDefault("profile", "")
	v.SetDefault("tiny_timeout_ms", 0)
	v.SetDefault("action_timeout_ms", 0)
	v.SetDefault("action_max_timeout_ms", 0)
	v.SetDefault("launcher_timeout_ms", 0)
}

// Load resolves the configuration for cl. A nil cl skips the file and
// switch layers.
func Load(cl *cmdline.CommandLine) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cl != nil {
		if path := cl.SwitchValue(cmdline.SuiteConfig); path != "" {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read suite config %s: %w", path, err)
			}
		}

		for _, b := range bindings {
			if !cl.HasSwitch(b.sw) {
				continue
			}
			if b.isBool {
				v.Set(b.key, cl.BoolSwitch(b.sw))
				continue
			}
			v.Set(b.key, cl.SwitchValue(b.sw))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode suite config: %w", err)
	}
	return &cfg, nil
}

// Defaults returns the configuration resolved with no file, environment
// or switches.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

func (c *Config) switchValues() map[string]string {
	return map[string]string{
		cmdline.LogLevel:               c.LogLevel,
		cmdline.LogFile:                c.LogFile,
		cmdline.TraceEndpoint:          c.TraceEndpoint,
		cmdline.TestLauncherMetrics:    c.MetricsFile,
		cmdline.StatusAddr:             c.StatusAddr,
		cmdline.TestFilter:             c.TestFilter,
		cmdline.ProfilingFile:          c.Profile,
		cmdline.TestTinyTimeout:        msValue(c.TinyTimeoutMS),
		cmdline.UITestActionTimeout:    msValue(c.ActionTimeoutMS),
		cmdline.UITestActionMaxTimeout: msValue(c.ActionMaxTimeoutMS),
		cmdline.TestLauncherTimeout:    msValue(c.LauncherTimeoutMS),
	}
}

// ApplyToCommandLine writes settings into cl as switches wherever cl does
// not already carry the switch and the setting differs from its default, so
// packages reading switches see configured values and child processes do
// not inherit switches nobody asked for.
func (c *Config) ApplyToCommandLine(cl *cmdline.CommandLine) {
	defaults := Defaults().switchValues()
	for sw, value := range c.switchValues() {
		if value != "" && value != defaults[sw] && !cl.HasSwitch(sw) {
			cl.AppendSwitchValue(sw, value)
		}
	}

	flags := map[string]bool{
		cmdline.LogJSON:             c.LogJSON,
		cmdline.EnableTracing:       c.EnableTracing,
		cmdline.CheckGoroutineLeaks: c.CheckGoroutineLeaks,
	}
	for sw, on := range flags {
		if on && !cl.HasSwitch(sw) {
			cl.AppendSwitch(sw)
		}
	}
}

func msValue(ms int) string {
	if ms <= 0 {
		return ""
	}
	return strconv.Itoa(ms)
}
