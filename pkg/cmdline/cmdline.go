// Package cmdline holds the process-wide argument table: the program name, a
// map of switches and the positional arguments that follow them.
//
// The table is parsed once per process with Init and then read (and, in
// tests, mutated) through ForCurrentProcess. Assign overwrites the live table
// in place so that callers holding the pointer observe the restored values.
package cmdline

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

const switchTerminator = "--"

// CommandLine is a program name plus its switches and positional arguments.
type CommandLine struct {
	mu       sync.RWMutex
	program  string
	switches map[string]string
	args     []string
}

// New creates an empty command line for program.
func New(program string) *CommandLine {
	return &CommandLine{
		program:  program,
		switches: make(map[string]string),
	}
}

// Parse builds a command line from argv. argv[0] is the program name.
// "--name=value", "-name=value", "--name" and "-name" are switches; everything
// after a bare "--" and every argument not starting with "-" is positional.
func Parse(argv []string) *CommandLine {
	if len(argv) == 0 {
		return New("")
	}
	c := New(argv[0])
	parseSwitches := true
	for _, arg := range argv[1:] {
		if parseSwitches && arg == switchTerminator {
			parseSwitches = false
			continue
		}
		if parseSwitches {
			if name, value, ok := splitSwitch(arg); ok {
				c.switches[name] = value
				continue
			}
		}
		c.args = append(c.args, arg)
	}
	return c
}

func splitSwitch(arg string) (string, string, bool) {
	var trimmed string
	switch {
	case strings.HasPrefix(arg, "--"):
		trimmed = arg[2:]
	case strings.HasPrefix(arg, "-") && len(arg) > 1:
		trimmed = arg[1:]
	default:
		return "", "", false
	}
	if trimmed == "" || trimmed[0] == '=' {
		return "", "", false
	}
	name, value, _ := strings.Cut(trimmed, "=")
	return name, value, true
}

// Program returns the program name.
func (c *CommandLine) Program() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.program
}

// HasSwitch reports whether name was given, with or without a value.
func (c *CommandLine) HasSwitch(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.switches[name]
	return ok
}

// SwitchValue returns the value of name, or "" when absent.
func (c *CommandLine) SwitchValue(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.switches[name]
}

// BoolSwitch reports whether name is on. A bare switch is on; a value is
// parsed with strconv.ParseBool and anything unparsable counts as on.
func (c *CommandLine) BoolSwitch(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.switches[name]
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	on, err := strconv.ParseBool(v)
	return on || err != nil
}

// Switches returns a copy of the switch map.
func (c *CommandLine) Switches() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.switches))
	for k, v := range c.switches {
		out[k] = v
	}
	return out
}

// Args returns a copy of the positional arguments.
func (c *CommandLine) Args() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.args...)
}

// AppendSwitch adds a value-less switch.
func (c *CommandLine) AppendSwitch(name string) {
	c.AppendSwitchValue(name, "")
}

// AppendSwitchValue adds or replaces a switch.
func (c *CommandLine) AppendSwitchValue(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switches[name] = value
}

// RemoveSwitch deletes a switch if present.
func (c *CommandLine) RemoveSwitch(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.switches, name)
}

// AppendArg adds a positional argument.
func (c *CommandLine) AppendArg(arg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.args = append(c.args, arg)
}

// Clone returns a deep copy.
func (c *CommandLine) Clone() *CommandLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := New(c.program)
	for k, v := range c.switches {
		out.switches[k] = v
	}
	out.args = append([]string(nil), c.args...)
	return out
}

// Assign overwrites c with the contents of other.
func (c *CommandLine) Assign(other *CommandLine) {
	if c == other {
		return
	}
	snapshot := other.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.program = snapshot.program
	c.switches = snapshot.switches
	c.args = snapshot.args
}

// Equal reports whether both tables hold the same program, switches and args.
func (c *CommandLine) Equal(other *CommandLine) bool {
	if c == other {
		return true
	}
	if other == nil {
		return false
	}
	a, b := c.Clone(), other.Clone()
	if a.program != b.program || len(a.switches) != len(b.switches) || len(a.args) != len(b.args) {
		return false
	}
	for k, v := range a.switches {
		if bv, ok := b.switches[k]; !ok || bv != v {
			return false
		}
	}
	for i := range a.args {
		if a.args[i] != b.args[i] {
			return false
		}
	}
	return true
}

// Argv renders the table back into an argument vector. Switches are sorted by
// name so the output is stable.
func (c *CommandLine) Argv() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.switches))
	for k := range c.switches {
		names = append(names, k)
	}
	sort.Strings(names)

	argv := []string{c.program}
	for _, name := range names {
		if v := c.switches[name]; v != "" {
			argv = append(argv, "--"+name+"="+v)
		} else {
			argv = append(argv, "--"+name)
		}
	}
	if len(c.args) > 0 {
		argv = append(argv, switchTerminator)
		argv = append(argv, c.args...)
	}
	return argv
}

// String joins Argv with spaces.
func (c *CommandLine) String() string {
	return strings.Join(c.Argv(), " ")
}
