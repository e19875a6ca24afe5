// Package features implements named boolean feature flags backed by a
// process-wide registry.
//
// Production code declares a Feature and asks IsEnabled. The registry
// (FeatureList) is built from the enable-features/disable-features switches
// and may be swapped for the duration of a test with ScopedOverride.
package features

import (
	"sort"
	"strings"
	"sync"
)

// FeatureState is the default state of a feature when nothing overrides it.
type FeatureState int

const (
	DisabledByDefault FeatureState = iota
	EnabledByDefault
)

// Feature is a named toggle. Declare features as package-level variables and
// pass them by pointer.
type Feature struct {
	Name         string
	DefaultState FeatureState
}

// OverrideState is the effective override registered for a feature.
type OverrideState int

const (
	OverrideUseDefault OverrideState = iota
	OverrideEnable
	OverrideDisable
)

func (s OverrideState) String() string {
	switch s {
	case OverrideEnable:
		return "enable"
	case OverrideDisable:
		return "disable"
	default:
		return "default"
	}
}

type override struct {
	state OverrideState
	trial *Trial
}

// FeatureList holds the overrides for every feature named on the command
// line or by a test scope.
type FeatureList struct {
	mu        sync.RWMutex
	overrides map[string]override
}

// NewFeatureList creates an empty registry.
func NewFeatureList() *FeatureList {
	return &FeatureList{overrides: make(map[string]override)}
}

// InitFromCommandLine registers overrides from comma-separated lists. Each
// entry is a feature name optionally followed by "<Trial" or "<Trial.Group",
// which associates the feature with a trial in the active TrialList. When a
// feature appears in both lists the disable entry wins.
func (fl *FeatureList) InitFromCommandLine(enable, disable string) {
	fl.registerFromList(disable, OverrideDisable)
	fl.registerFromList(enable, OverrideEnable)
}

func (fl *FeatureList) registerFromList(list string, state OverrideState) {
	for _, entry := range SplitFeatureList(list) {
		name, trialSpec, hasTrial := strings.Cut(entry, "<")
		var trial *Trial
		if hasTrial && trialSpec != "" {
			trialName, group, _ := strings.Cut(trialSpec, ".")
			if group == "" {
				group = DefaultGroupName
			}
			if tl := ActiveTrialList(); tl != nil {
				trial = tl.CreateForcedTrial(trialName, group)
			}
		}
		fl.RegisterOverride(name, state, trial)
	}
}

// RegisterOverride records state for name unless an override already exists.
func (fl *FeatureList) RegisterOverride(name string, state OverrideState, trial *Trial) bool {
	if name == "" {
		return false
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if _, exists := fl.overrides[name]; exists {
		return false
	}
	fl.overrides[name] = override{state: state, trial: trial}
	return true
}

// OverrideStateOf returns the registered override for name.
func (fl *FeatureList) OverrideStateOf(name string) OverrideState {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.overrides[name].state
}

// IsEnabled resolves f against the registered overrides.
func (fl *FeatureList) IsEnabled(f *Feature) bool {
	fl.mu.RLock()
	o, ok := fl.overrides[f.Name]
	fl.mu.RUnlock()
	if !ok || o.state == OverrideUseDefault {
		return f.DefaultState == EnabledByDefault
	}
	if o.trial != nil {
		o.trial.Activate()
	}
	return o.state == OverrideEnable
}

// Overrides returns the enabled and disabled feature lists in command-line
// form, sorted by name. Trial associations are preserved.
func (fl *FeatureList) Overrides() (enabled, disabled string) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	var en, dis []string
	for name, o := range fl.overrides {
		entry := name
		if o.trial != nil {
			entry += "<" + o.trial.Name()
		}
		switch o.state {
		case OverrideEnable:
			en = append(en, entry)
		case OverrideDisable:
			dis = append(dis, entry)
		}
	}
	sort.Strings(en)
	sort.Strings(dis)
	return strings.Join(en, ","), strings.Join(dis, ",")
}

func (fl *FeatureList) copyOverridesInto(dst *FeatureList, skip map[string]bool) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	for name, o := range fl.overrides {
		if skip[name] {
			continue
		}
		dst.RegisterOverride(name, o.state, o.trial)
	}
}

// SplitFeatureList splits a comma-separated list, dropping blanks.
func SplitFeatureList(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	instanceMu sync.RWMutex
	instance   *FeatureList
)

// Instance returns the process-wide registry, or nil if none is installed.
func Instance() *FeatureList {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	return instance
}

// SetInstance installs fl as the process-wide registry and returns the
// previous one.
func SetInstance(fl *FeatureList) *FeatureList {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	prev := instance
	instance = fl
	return prev
}

// IsEnabled resolves f against the process-wide registry, falling back to
// the feature's default when no registry is installed.
func IsEnabled(f *Feature) bool {
	if fl := Instance(); fl != nil {
		return fl.IsEnabled(f)
	}
	return f.DefaultState == EnabledByDefault
}
