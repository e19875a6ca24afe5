package engine

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter selects cases by full name. The syntax is
// "POSITIVE[:POSITIVE...][-NEGATIVE[:NEGATIVE...]]" where each pattern is a
// glob over "Group.Case". An empty positive part matches everything.
type Filter struct {
	positive []glob.Glob
	negative []glob.Glob
}

// ParseFilter compiles a filter expression.
func ParseFilter(expr string) (*Filter, error) {
	pos, neg, _ := strings.Cut(expr, "-")
	f := &Filter{}
	var err error
	if f.positive, err = compilePatterns(pos); err != nil {
		return nil, err
	}
	if f.negative, err = compilePatterns(neg); err != nil {
		return nil, err
	}
	return f, nil
}

func compilePatterns(list string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, p := range strings.Split(list, ":") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Match reports whether fullName passes the filter.
func (f *Filter) Match(fullName string) bool {
	if f == nil {
		return true
	}
	if len(f.positive) > 0 && !matchAny(f.positive, fullName) {
		return false
	}
	return !matchAny(f.negative, fullName)
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
