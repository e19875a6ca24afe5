// Package isolation captures the identity of process-wide singletons so a
// test harness can detect a case that replaced one without restoring it.
package isolation

import (
	"fmt"
	"strings"

	"github.com/psantana5/testsuite/pkg/features"
	"github.com/psantana5/testsuite/pkg/workerpool"
)

// Source reports the current identity of one process-wide registry.
// Identity values are compared with ==, so pointer-valued identities compare
// by address.
type Source interface {
	Name() string
	Identity() interface{}
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	Label string
	Fn    func() interface{}
}

func (s SourceFunc) Name() string          { return s.Label }
func (s SourceFunc) Identity() interface{} { return s.Fn() }

// DefaultSources returns the feature registry and worker pool sources.
func DefaultSources() []Source {
	return []Source{
		SourceFunc{Label: "FeatureList", Fn: func() interface{} { return features.Instance() }},
		SourceFunc{Label: "WorkerPool", Fn: func() interface{} { return workerpool.Instance() }},
	}
}

type entry struct {
	name     string
	identity interface{}
}

// Snapshot is an immutable record of source identities at one point in time.
type Snapshot struct {
	entries []entry
}

// Capture records the identity of every source.
func Capture(sources []Source) Snapshot {
	s := Snapshot{entries: make([]entry, 0, len(sources))}
	for _, src := range sources {
		s.entries = append(s.entries, entry{name: src.Name(), identity: src.Identity()})
	}
	return s
}

// Diff returns the names of sources whose identity differs between s and
// other. Snapshots of different source lists differ in every position past
// the shorter one.
func (s Snapshot) Diff(other Snapshot) []string {
	var changed []string
	n := len(s.entries)
	if len(other.entries) > n {
		n = len(other.entries)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(s.entries):
			changed = append(changed, other.entries[i].name)
		case i >= len(other.entries):
			changed = append(changed, s.entries[i].name)
		case s.entries[i].name != other.entries[i].name ||
			s.entries[i].identity != other.entries[i].identity:
			changed = append(changed, s.entries[i].name)
		}
	}
	return changed
}

// Equal reports whether every identity matches.
func (s Snapshot) Equal(other Snapshot) bool {
	return len(s.Diff(other)) == 0
}

// String renders the snapshot for log output.
func (s Snapshot) String() string {
	parts := make([]string, len(s.entries))
	for i, e := range s.entries {
		if e.identity == nil {
			parts[i] = e.name + "=nil"
			continue
		}
		parts[i] = fmt.Sprintf("%s=%p", e.name, e.identity)
	}
	return strings.Join(parts, " ")
}
