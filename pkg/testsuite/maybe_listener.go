package testsuite

import (
	"strings"

	"github.com/psantana5/testsuite/pkg/engine"
)

// MaybePrefix marks a case whose platform-specific rename was never applied.
const MaybePrefix = "MAYBE_"

type disableMaybeListener struct {
	engine.EmptyListener
}

func (disableMaybeListener) OnCaseStart(c *engine.CaseInfo) {
	if strings.HasPrefix(c.Name, MaybePrefix) {
		c.Errorf("case %s still carries the %s prefix; a platform condition is missing", c.FullName(), MaybePrefix)
	}
}
