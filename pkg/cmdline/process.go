package cmdline

import "sync"

var (
	processMu sync.Mutex
	process   *CommandLine
)

// Init parses argv into the process-wide table. It returns false and leaves
// the table untouched when it was already initialized, so callers can record
// whether they own the table and Reset it symmetrically.
func Init(argv []string) bool {
	processMu.Lock()
	defer processMu.Unlock()
	if process != nil {
		return false
	}
	process = Parse(argv)
	return true
}

// Initialized reports whether Init has run since the last Reset.
func Initialized() bool {
	processMu.Lock()
	defer processMu.Unlock()
	return process != nil
}

// ForCurrentProcess returns the live process-wide table, or nil before Init.
func ForCurrentProcess() *CommandLine {
	processMu.Lock()
	defer processMu.Unlock()
	return process
}

// Reset discards the process-wide table.
func Reset() {
	processMu.Lock()
	defer processMu.Unlock()
	process = nil
}
