// Package locale pins the process locale so output does not depend on the
// machine running the suite.
package locale

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	mu      sync.RWMutex
	current = language.AmericanEnglish
)

// SetDefault parses name ("en_US" or "en-US") and makes it the process
// locale. LANG and LC_ALL are updated for child processes.
func SetDefault(name string) error {
	tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
	if err != nil {
		return fmt.Errorf("invalid locale %q: %w", name, err)
	}
	mu.Lock()
	current = tag
	mu.Unlock()

	posix := posixName(tag) + ".UTF-8"
	if err := os.Setenv("LANG", posix); err != nil {
		return fmt.Errorf("failed to set LANG: %w", err)
	}
	if err := os.Setenv("LC_ALL", posix); err != nil {
		return fmt.Errorf("failed to set LC_ALL: %w", err)
	}
	return nil
}

func posixName(tag language.Tag) string {
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.No {
		return base.String()
	}
	return base.String() + "_" + region.String()
}

// Current returns the process locale.
func Current() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Printer returns a message printer for the process locale.
func Printer() *message.Printer {
	return message.NewPrinter(Current())
}
