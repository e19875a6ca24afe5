package results

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/psantana5/testsuite/pkg/engine"
)

type summaryRow struct {
	name     string
	outcome  string
	duration string
	failure  string
}

// Summary collects non-passing cases and renders them as a table.
type Summary struct {
	engine.EmptyListener

	mu      sync.Mutex
	total   int
	passed  int
	skipped int
	rows    []summaryRow
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{}
}

// OnCaseEnd implements engine.Listener.
func (s *Summary) OnCaseEnd(c *engine.CaseInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	switch c.Outcome() {
	case engine.OutcomePassed:
		s.passed++
		return
	case engine.OutcomeSkipped:
		s.skipped++
		return
	}
	s.rows = append(s.rows, summaryRow{
		name:     c.FullName(),
		outcome:  string(c.Outcome()),
		duration: c.Duration().Round(time.Millisecond).String(),
		failure:  firstLine(c.Failures()),
	})
}

// OnGroupEnd implements engine.Listener.
func (s *Summary) OnGroupEnd(g *engine.GroupInfo) {
	failures := g.Failures()
	if len(failures) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, summaryRow{
		name:     g.Name,
		outcome:  "group failure",
		duration: "-",
		failure:  firstLine(failures),
	})
}

func firstLine(failures []engine.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	msg, _, _ := strings.Cut(failures[0].String(), "\n")
	if len(failures) > 1 {
		msg += fmt.Sprintf(" (+%d more)", len(failures)-1)
	}
	return msg
}

// Failed returns the number of failure rows.
func (s *Summary) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Render writes the failure table followed by the totals line.
func (s *Summary) Render(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rows) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Case", "Outcome", "Duration", "Failure")
		for _, r := range s.rows {
			table.Append(r.name, r.outcome, r.duration, r.failure)
		}
		table.Render()
	}
	fmt.Fprintf(w, "%d cases: %d passed, %d skipped, %d failures\n",
		s.total, s.passed, s.skipped, len(s.rows))
}
