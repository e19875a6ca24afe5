// Package results turns engine events into durable output: an XML result
// file written case by case, Prometheus counters, and a failure table.
package results

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/psantana5/testsuite/pkg/engine"
	"github.com/psantana5/testsuite/pkg/logging"
)

type xmlFailure struct {
	XMLName xml.Name `xml:"failure"`
	Message string   `xml:"message,attr"`
	Type    string   `xml:"type,attr"`
	Body    string   `xml:",chardata"`
}

type xmlCase struct {
	XMLName   xml.Name     `xml:"testcase"`
	Name      string       `xml:"name,attr"`
	Classname string       `xml:"classname,attr"`
	Status    string       `xml:"status,attr"`
	Result    string       `xml:"result,attr"`
	Time      string       `xml:"time,attr"`
	Timestamp string       `xml:"timestamp,attr"`
	Failures  []xmlFailure `xml:"failure"`
}

type xmlCaseStart struct {
	XMLName   xml.Name `xml:"x-teststart"`
	Name      string   `xml:"name,attr"`
	Classname string   `xml:"classname,attr"`
	Timestamp string   `xml:"timestamp,attr"`
}

// XMLPrinter writes a JUnit-style document as the run progresses. Every
// element is written as soon as it is known, so a crashed run still leaves
// a usable prefix.
type XMLPrinter struct {
	engine.EmptyListener

	mu        sync.Mutex
	runID     string
	path      string
	out       io.WriteCloser
	groupOpen bool
	current   *engine.CaseInfo
	startedAt time.Time
	closed    bool
	asserts   int
}

// NewXMLPrinter creates an uninitialized printer.
func NewXMLPrinter(runID string) *XMLPrinter {
	return &XMLPrinter{runID: runID}
}

// Initialize creates the output file and writes the document header. It
// fails if path already exists.
func (p *XMLPrinter) Initialize(path string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		logging.Default().Error("Failed to create result file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	p.out = f
	runID, _ := xmlAttr(p.runID)
	p.writeLocked(fmt.Sprintf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<testsuites run_id=\"%s\">\n", runID))
	return true
}

// Path returns the output file path.
func (p *XMLPrinter) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

func (p *XMLPrinter) writeLocked(s string) {
	if p.out == nil || p.closed {
		return
	}
	if _, err := io.WriteString(p.out, s); err != nil {
		logging.Default().Warn("Failed to write result file", map[string]interface{}{
			"path":  p.path,
			"error": err.Error(),
		})
	}
}

func (p *XMLPrinter) writeElementLocked(indent string, v interface{}) {
	b, err := xml.Marshal(v)
	if err != nil {
		logging.Default().Warn("Failed to encode result element", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	p.writeLocked(indent + string(b) + "\n")
}

// OnGroupStart implements engine.Listener.
func (p *XMLPrinter) OnGroupStart(g *engine.GroupInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, err := xmlAttr(g.Name)
	if err != nil {
		return
	}
	p.writeLocked(fmt.Sprintf("  <testsuite name=\"%s\" tests=\"%d\">\n", name, g.Cases))
	p.groupOpen = true
}

// OnCaseStart implements engine.Listener.
func (p *XMLPrinter) OnCaseStart(c *engine.CaseInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = c
	p.startedAt = time.Now()
	p.writeElementLocked("    ", xmlCaseStart{
		Name:      c.Name,
		Classname: c.Group,
		Timestamp: p.startedAt.Format(time.RFC3339),
	})
}

// OnCaseEnd implements engine.Listener.
func (p *XMLPrinter) OnCaseEnd(c *engine.CaseInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil

	status, result := "run", "completed"
	switch c.Outcome() {
	case engine.OutcomeSkipped:
		status, result = "notrun", "skipped"
	case engine.OutcomeTimeout:
		result = "timeout"
	}
	tc := xmlCase{
		Name:      c.Name,
		Classname: c.Group,
		Status:    status,
		Result:    result,
		Time:      fmt.Sprintf("%.3f", c.Duration().Seconds()),
		Timestamp: p.startedAt.Format(time.RFC3339),
	}
	for _, f := range c.Failures() {
		tc.Failures = append(tc.Failures, xmlFailure{Message: f.Message, Body: f.String()})
	}
	p.writeElementLocked("    ", tc)
}

// OnGroupEnd implements engine.Listener.
func (p *XMLPrinter) OnGroupEnd(g *engine.GroupInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range g.Failures() {
		p.writeElementLocked("    ", xmlCase{
			Name:      "GroupTeardown",
			Classname: g.Name,
			Status:    "run",
			Result:    "completed",
			Time:      "0.000",
			Timestamp: time.Now().Format(time.RFC3339),
			Failures:  []xmlFailure{{Message: f.Message, Body: f.String()}},
		})
	}
	p.writeLocked("  </testsuite>\n")
	p.groupOpen = false
}

// OnAssert records a fatal assertion against the running case and closes
// the document. Nothing is written after it.
func (p *XMLPrinter) OnAssert(file string, line int, summary, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.asserts++

	tc := xmlCase{
		Name:      "unknown",
		Classname: "unknown",
		Status:    "run",
		Result:    "crash",
		Time:      "0.000",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if p.current != nil {
		tc.Name = p.current.Name
		tc.Classname = p.current.Group
		tc.Timestamp = p.startedAt.Format(time.RFC3339)
		tc.Time = fmt.Sprintf("%.3f", time.Since(p.startedAt).Seconds())
	}
	tc.Failures = []xmlFailure{{
		Message: summary,
		Type:    "fatal",
		Body:    fmt.Sprintf("%s:%d\n%s", file, line, message),
	}}
	p.writeElementLocked("    ", tc)
	p.finishLocked()
}

// AssertCount returns how many fatal assertions were recorded.
func (p *XMLPrinter) AssertCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asserts
}

func (p *XMLPrinter) finishLocked() {
	if p.groupOpen {
		p.writeLocked("  </testsuite>\n")
		p.groupOpen = false
	}
	p.writeLocked("</testsuites>\n")
	p.closed = true
	if p.out != nil {
		if err := p.out.Close(); err != nil {
			logging.Default().Warn("Failed to close result file", map[string]interface{}{
				"path":  p.path,
				"error": err.Error(),
			})
		}
	}
}

// Close finishes the document. It is a no-op after OnAssert or a previous
// Close.
func (p *XMLPrinter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.finishLocked()
	return nil
}

func xmlAttr(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}
