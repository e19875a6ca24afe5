// Package engine is a small case runner with the extension points a
// process-wide suite needs: ordered listeners, a run-all entry point, and
// strictly framed case and group hooks.
//
// Cases are registered by group. RunAllCases runs groups in registration
// order; within a group cases run in registration order. Every case body runs
// on its own goroutine so that FailNow can unwind it and a watchdog can
// abandon it, but hooks are always fired from the goroutine that called
// RunAllCases and never overlap.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/timeouts"
)

// Runner is what a suite needs from a case engine.
type Runner interface {
	Listeners() *Listeners
	RunAllCases() int
}

// CaseFunc is a case body.
type CaseFunc func(t *T)

// Death test execution styles.
const (
	DeathTestFast       = "fast"
	DeathTestThreadsafe = "threadsafe"
)

type registeredCase struct {
	name string
	fn   CaseFunc
}

type group struct {
	name  string
	cases []registeredCase
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithFilter sets the case filter, overriding the test-filter switch.
func WithFilter(expr string) Option {
	return func(e *Engine) {
		e.filter = expr
		e.filterSet = true
	}
}

// WithCaseTimeout bounds each case body. Zero uses timeouts.ActionMax.
func WithCaseTimeout(d time.Duration) Option {
	return func(e *Engine) { e.caseTimeout = d }
}

// Engine registers and runs cases.
type Engine struct {
	listeners      Listeners
	groups         []*group
	index          map[string]*group
	filter         string
	filterSet      bool
	caseTimeout    time.Duration
	log            logr.Logger
	deathTestStyle string
	slow           rate.Sometimes

	mu      sync.Mutex
	current *CaseInfo
	results []*CaseInfo
}

// New creates an engine with no cases.
func New(opts ...Option) *Engine {
	e := &Engine{
		index:          make(map[string]*group),
		log:            logr.Discard(),
		deathTestStyle: DeathTestFast,
		slow:           rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Listeners returns the ordered listener set.
func (e *Engine) Listeners() *Listeners {
	return &e.listeners
}

// SetDeathTestStyle selects how death tests run. Only "threadsafe" re-execs
// the binary for each death statement; "fast" is accepted for symmetry with
// other runners and behaves the same.
func (e *Engine) SetDeathTestStyle(style string) {
	e.deathTestStyle = style
}

// DeathTestStyle returns the configured death test style.
func (e *Engine) DeathTestStyle() string {
	return e.deathTestStyle
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(log logr.Logger) {
	e.log = log
}

// Register adds a case to group, creating the group on first use.
func (e *Engine) Register(groupName, caseName string, fn CaseFunc) {
	g, ok := e.index[groupName]
	if !ok {
		g = &group{name: groupName}
		e.index[groupName] = g
		e.groups = append(e.groups, g)
	}
	g.cases = append(g.cases, registeredCase{name: caseName, fn: fn})
}

// CurrentCase returns the case whose hooks or body are running, or nil.
func (e *Engine) CurrentCase() *CaseInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// AddFailure reports msg against the running case. It is safe to call from
// any goroutine.
func (e *Engine) AddFailure(msg string) {
	if c := e.CurrentCase(); c != nil {
		c.AddFailure(msg)
		return
	}
	e.log.Info("Failure reported outside of a case", "message", msg)
}

// Results returns every case that ran, in order.
func (e *Engine) Results() []*CaseInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*CaseInfo(nil), e.results...)
}

func (e *Engine) resolveFilter() (*Filter, error) {
	expr := e.filter
	if !e.filterSet {
		if cl := cmdline.ForCurrentProcess(); cl != nil {
			expr = cl.SwitchValue(cmdline.TestFilter)
		}
	}
	if expr == "" {
		return nil, nil
	}
	return ParseFilter(expr)
}

// RunAllCases runs every registered case that passes the filter and returns
// 0 if all of them passed, 1 otherwise.
func (e *Engine) RunAllCases() int {
	filter, err := e.resolveFilter()
	if err != nil {
		e.log.Error(err, "Bad case filter")
		return 1
	}
	defer timeouts.SetFailureReporter(e)()

	start := time.Now()
	status := 0
	var ran, failed, skipped int
	for _, g := range e.groups {
		var selected []registeredCase
		for _, c := range g.cases {
			if filter.Match(g.name + "." + c.name) {
				selected = append(selected, c)
			}
		}
		if len(selected) == 0 {
			continue
		}

		info := &GroupInfo{Name: g.name, Cases: len(selected)}
		e.listeners.fireGroupStart(info)
		for _, c := range selected {
			res := e.runCase(info, c)
			ran++
			switch res.Outcome() {
			case OutcomeFailed, OutcomeTimeout:
				failed++
				info.caseFailed()
				status = 1
			case OutcomeSkipped:
				skipped++
			}
		}
		e.listeners.fireGroupEnd(info)
		if len(info.Failures()) > 0 {
			status = 1
		}
	}

	e.log.Info("Run finished",
		"cases", ran,
		"passed", ran-failed-skipped,
		"failed", failed,
		"skipped", skipped,
		"elapsed", time.Since(start).String())
	return status
}

func (e *Engine) setCurrent(c *CaseInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = c
}

func (e *Engine) caseLimit() time.Duration {
	if e.caseTimeout > 0 {
		return e.caseTimeout
	}
	return timeouts.ActionMax()
}

func (e *Engine) runCase(g *GroupInfo, c registeredCase) *CaseInfo {
	info := newCaseInfo(g.Name, c.name)
	e.mu.Lock()
	e.results = append(e.results, info)
	e.mu.Unlock()
	e.setCurrent(info)
	defer e.setCurrent(nil)

	e.listeners.fireCaseStart(info)

	ctx, cancel := context.WithCancel(context.Background())
	t := newT(ctx, info, e.log)
	t.engine = e
	done := make(chan struct{})

	info.begin()
	scope := timeouts.NewScopedRunTimeout(e.caseLimit())
	go func() {
		defer close(done)
		defer info.finish()
		defer safeCall(info, "cleanup", t.runCleanups)
		safeCall(info, "panic", func() { c.fn(t) })
	}()
	completed := timeouts.Await(done)
	scope.Close()
	cancel()
	if !completed {
		info.markTimedOut()
		info.finish()
		e.log.Info("Case abandoned after timeout", "case", info.FullName())
	}

	if d := info.Duration(); completed && d > timeouts.Action() {
		e.slow.Do(func() {
			e.log.Info("Slow case", "case", info.FullName(), "elapsed", d.String())
		})
	}

	e.listeners.fireCaseEnd(info)
	return info
}

// safeCall runs fn, turning a panic into a case failure.
func safeCall(info *CaseInfo, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			info.addFailure(Failure{Message: fmt.Sprintf("%s: %v\n%s", what, r, debug.Stack())})
		}
	}()
	fn()
}
