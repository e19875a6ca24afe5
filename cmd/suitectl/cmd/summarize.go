package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var failOnFailure bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize <results.xml>",
	Short: "Summarize a suite result file",
	Long: `Reads a result file written with --test-launcher-output and prints one
row per case. A file cut short by a crash is still summarized up to the
last complete case.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().BoolVar(&failOnFailure, "fail", false, "exit non-zero when any case failed or crashed")
}

// CaseResult is one testcase element.
type CaseResult struct {
	Group    string   `json:"group" yaml:"group"`
	Name     string   `json:"name" yaml:"name"`
	Result   string   `json:"result" yaml:"result"`
	Seconds  float64  `json:"seconds" yaml:"seconds"`
	Failures []string `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// RunSummary is the parsed content of a result file.
type RunSummary struct {
	RunID     string       `json:"run_id" yaml:"run_id"`
	Cases     []CaseResult `json:"cases" yaml:"cases"`
	Crashed   bool         `json:"crashed" yaml:"crashed"`
	Truncated bool         `json:"truncated" yaml:"truncated"`
}

// Failed counts cases that did not pass.
func (s *RunSummary) Failed() int {
	n := 0
	for _, c := range s.Cases {
		if c.Result != "completed" && c.Result != "skipped" {
			n++
		}
	}
	return n
}

func runSummarize(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	summary, err := ParseResults(string(data))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case IsJSONOutput():
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	case IsYAMLOutput():
		if err := yaml.NewEncoder(out).Encode(summary); err != nil {
			return err
		}
	default:
		renderSummary(out, summary)
	}

	if failOnFailure && (summary.Failed() > 0 || summary.Crashed) {
		return fmt.Errorf("%d of %d cases failed", summary.Failed(), len(summary.Cases))
	}
	return nil
}

// ParseResults parses a result document. A document missing its closing
// tags is repaired before parsing.
func ParseResults(doc string) (*RunSummary, error) {
	summary := &RunSummary{}
	trimmed := strings.TrimSpace(doc)
	if !strings.HasSuffix(trimmed, "</testsuites>") {
		summary.Truncated = true
		doc = repairTruncated(trimmed)
	}

	root, err := xmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	if suites := xmlquery.FindOne(root, "//testsuites"); suites != nil {
		summary.RunID = suites.SelectAttr("run_id")
	}

	for _, tc := range xmlquery.Find(root, "//testcase") {
		c := CaseResult{
			Group:  tc.SelectAttr("classname"),
			Name:   tc.SelectAttr("name"),
			Result: tc.SelectAttr("result"),
		}
		c.Seconds, _ = strconv.ParseFloat(tc.SelectAttr("time"), 64)
		for _, f := range xmlquery.Find(tc, "failure") {
			msg := f.SelectAttr("message")
			if msg == "" {
				msg = strings.TrimSpace(f.InnerText())
			}
			c.Failures = append(c.Failures, msg)
		}
		if c.Result == "crash" {
			summary.Crashed = true
		}
		summary.Cases = append(summary.Cases, c)
	}

	// A start marker with no matching testcase was still running when the
	// process died.
	finished := make(map[string]bool, len(summary.Cases))
	for _, c := range summary.Cases {
		finished[c.Group+"."+c.Name] = true
	}
	for _, st := range xmlquery.Find(root, "//x-teststart") {
		key := st.SelectAttr("classname") + "." + st.SelectAttr("name")
		if finished[key] {
			continue
		}
		summary.Cases = append(summary.Cases, CaseResult{
			Group:  st.SelectAttr("classname"),
			Name:   st.SelectAttr("name"),
			Result: "incomplete",
		})
	}
	return summary, nil
}

// repairTruncated drops a trailing partial element and closes whatever
// testsuite and testsuites elements are still open.
func repairTruncated(doc string) string {
	if i := strings.LastIndex(doc, ">"); i >= 0 {
		doc = doc[:i+1]
	}
	openSuites := strings.Count(doc, "<testsuite ") - strings.Count(doc, "</testsuite>")
	for ; openSuites > 0; openSuites-- {
		doc += "\n</testsuite>"
	}
	if !strings.Contains(doc, "</testsuites>") {
		doc += "\n</testsuites>"
	}
	return doc
}

func renderSummary(w io.Writer, s *RunSummary) {
	table := tablewriter.NewWriter(w)
	table.Header("Group", "Case", "Result", "Time", "Failure")
	for _, c := range s.Cases {
		failure := ""
		if len(c.Failures) > 0 {
			failure = firstLine(c.Failures[0])
		}
		table.Append(c.Group, c.Name, c.Result, fmt.Sprintf("%.3fs", c.Seconds), failure)
	}
	table.Render()

	fmt.Fprintf(w, "%d cases, %d not passing", len(s.Cases), s.Failed())
	if s.Crashed {
		fmt.Fprint(w, ", run crashed")
	}
	if s.Truncated {
		fmt.Fprint(w, ", file truncated")
	}
	fmt.Fprintln(w)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
