package engine

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is the final state of a case.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeTimeout Outcome = "timeout"
)

// Failure is one reported failure.
type Failure struct {
	File    string
	Line    int
	Message string
}

func (f Failure) String() string {
	if f.File == "" {
		return f.Message
	}
	return fmt.Sprintf("%s:%d: %s", f.File, f.Line, f.Message)
}

// CaseInfo describes the case a hook fires for. Failures may be added from
// any goroutine.
type CaseInfo struct {
	Group string
	Name  string

	mu         sync.Mutex
	failures   []Failure
	skipped    bool
	skipReason string
	timedOut   bool
	start      time.Time
	duration   time.Duration
	finished   bool

	// forward, when set, also receives every failure message.
	forward func(msg string)
}

func newCaseInfo(group, name string) *CaseInfo {
	return &CaseInfo{Group: group, Name: name}
}

// FullName returns "Group.Name".
func (c *CaseInfo) FullName() string {
	return c.Group + "." + c.Name
}

// Errorf records a non-fatal failure against the case.
func (c *CaseInfo) Errorf(format string, args ...interface{}) {
	c.addFailure(Failure{Message: fmt.Sprintf(format, args...)})
}

// AddFailure records msg as a failure.
func (c *CaseInfo) AddFailure(msg string) {
	c.addFailure(Failure{Message: msg})
}

func (c *CaseInfo) addFailure(f Failure) {
	c.mu.Lock()
	c.failures = append(c.failures, f)
	fwd := c.forward
	c.mu.Unlock()
	if fwd != nil {
		fwd(f.String())
	}
}

// Failed reports whether any failure was recorded.
func (c *CaseInfo) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures) > 0
}

// Failures returns a copy of the recorded failures.
func (c *CaseInfo) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Failure(nil), c.failures...)
}

// Skipped reports whether the case skipped itself.
func (c *CaseInfo) Skipped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// SkipReason returns the message passed to Skipf.
func (c *CaseInfo) SkipReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipReason
}

// TimedOut reports whether the body was abandoned by the watchdog.
func (c *CaseInfo) TimedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timedOut
}

// Duration is the wall time of the case body. Zero until the body finishes.
func (c *CaseInfo) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Outcome classifies the case. A failure outranks a skip.
func (c *CaseInfo) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.timedOut:
		return OutcomeTimeout
	case len(c.failures) > 0:
		return OutcomeFailed
	case c.skipped:
		return OutcomeSkipped
	default:
		return OutcomePassed
	}
}

func (c *CaseInfo) markSkipped(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped = true
	c.skipReason = reason
}

func (c *CaseInfo) markTimedOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timedOut = true
}

func (c *CaseInfo) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

func (c *CaseInfo) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	c.duration = time.Since(c.start)
}

// GroupInfo describes the group a hook fires for.
type GroupInfo struct {
	Name  string
	Cases int

	mu       sync.Mutex
	failures []Failure
	failed   int
	forward  func(msg string)
}

// Errorf records a failure against the group itself, such as a leak
// detected after its last case.
func (g *GroupInfo) Errorf(format string, args ...interface{}) {
	f := Failure{Message: fmt.Sprintf(format, args...)}
	g.mu.Lock()
	g.failures = append(g.failures, f)
	fwd := g.forward
	g.mu.Unlock()
	if fwd != nil {
		fwd(f.String())
	}
}

// Failures returns the group-level failures.
func (g *GroupInfo) Failures() []Failure {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Failure(nil), g.failures...)
}

// FailedCases is the number of cases in the group that did not pass.
func (g *GroupInfo) FailedCases() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

// Failed reports whether the group or any of its cases failed.
func (g *GroupInfo) Failed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.failures) > 0 || g.failed > 0
}

func (g *GroupInfo) caseFailed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed++
}
