package results

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/psantana5/testsuite/pkg/engine"
)

// Metrics counts case outcomes. It owns its registry so several suites can
// coexist in one test binary.
type Metrics struct {
	engine.EmptyListener

	registry      *prometheus.Registry
	cases         *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	groupFailures *prometheus.CounterVec
	runInfo       *prometheus.GaugeVec
}

// NewMetrics creates and registers the suite metrics.
func NewMetrics(runID string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testsuite_cases_total",
				Help: "Cases finished, by group and outcome",
			},
			[]string{"group", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "testsuite_case_duration_seconds",
				Help:    "Wall time of case bodies",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"group"},
		),
		groupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testsuite_group_failures_total",
				Help: "Failures reported against a group rather than a case",
			},
			[]string{"group"},
		),
		runInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "testsuite_run_info",
				Help: "Constant 1, labelled with the run identifier",
			},
			[]string{"run_id", "pid"},
		),
	}

	m.registry.MustRegister(m.cases)
	m.registry.MustRegister(m.duration)
	m.registry.MustRegister(m.groupFailures)
	m.registry.MustRegister(m.runInfo)
	m.runInfo.WithLabelValues(runID, fmt.Sprintf("%d", os.Getpid())).Set(1)

	return m
}

// Registry exposes the registry for HTTP export.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// OnCaseEnd implements engine.Listener.
func (m *Metrics) OnCaseEnd(c *engine.CaseInfo) {
	m.cases.WithLabelValues(c.Group, string(c.Outcome())).Inc()
	m.duration.WithLabelValues(c.Group).Observe(c.Duration().Seconds())
}

// OnGroupEnd implements engine.Listener.
func (m *Metrics) OnGroupEnd(g *engine.GroupInfo) {
	if n := len(g.Failures()); n > 0 {
		m.groupFailures.WithLabelValues(g.Name).Add(float64(n))
	}
}

// WriteFile writes the current values in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return f.Close()
}
