package testsuite

import (
	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/engine"
	"github.com/psantana5/testsuite/pkg/features"
)

// Marker features every case sees, so tests of the scoping itself can tell
// the command-line lists were applied.
const (
	EnabledMarkerFeature  = "TestFeatureForBrowserTest1"
	DisabledMarkerFeature = "TestFeatureForBrowserTest2"
)

// featureScopeListener gives each case its own feature registry and trial
// list built from enable-features and disable-features, and hides those
// switches from the case.
type featureScopeListener struct {
	engine.EmptyListener

	trials *features.TrialList
	scoped features.ScopedOverride
}

func (l *featureScopeListener) OnCaseStart(c *engine.CaseInfo) {
	cl := cmdline.ForCurrentProcess()
	var enabled, disabled string
	if cl != nil {
		enabled = cl.SwitchValue(cmdline.EnableFeatures)
		disabled = cl.SwitchValue(cmdline.DisableFeatures)
	}
	enabled += "," + EnabledMarkerFeature
	disabled += "," + DisabledMarkerFeature

	l.trials = features.NewTrialList(features.MockEntropyProvider{})
	l.scoped.InitFromCommandLine(enabled, disabled)

	// Tests toggle features through ScopedOverride, not switches.
	if cl != nil {
		cl.RemoveSwitch(cmdline.EnableFeatures)
		cl.RemoveSwitch(cmdline.DisableFeatures)
	}
}

func (l *featureScopeListener) OnCaseEnd(c *engine.CaseInfo) {
	l.scoped.Reset()
	if l.trials != nil {
		l.trials.Close()
		l.trials = nil
	}
}
