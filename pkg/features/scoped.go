package features

import "github.com/psantana5/testsuite/pkg/check"

// ScopedOverride installs a fresh FeatureList for the lifetime of a scope and
// reinstates whatever registry preceded it on Reset.
type ScopedOverride struct {
	installed *FeatureList
	previous  *FeatureList
	active    bool
}

// InitFromCommandLine installs a registry built only from the two lists.
func (s *ScopedOverride) InitFromCommandLine(enable, disable string) {
	fl := NewFeatureList()
	fl.InitFromCommandLine(enable, disable)
	s.install(fl)
}

// InitWithFeatures installs a registry that enables and disables the given
// features and inherits every other override from the current registry.
func (s *ScopedOverride) InitWithFeatures(enabled, disabled []*Feature) {
	fl := NewFeatureList()
	named := make(map[string]bool, len(enabled)+len(disabled))
	for _, f := range disabled {
		fl.RegisterOverride(f.Name, OverrideDisable, nil)
		named[f.Name] = true
	}
	for _, f := range enabled {
		fl.RegisterOverride(f.Name, OverrideEnable, nil)
		named[f.Name] = true
	}
	if prev := Instance(); prev != nil {
		prev.copyOverridesInto(fl, named)
	}
	s.install(fl)
}

// InitAndEnableFeature is InitWithFeatures for a single enabled feature.
func (s *ScopedOverride) InitAndEnableFeature(f *Feature) {
	s.InitWithFeatures([]*Feature{f}, nil)
}

// InitAndDisableFeature is InitWithFeatures for a single disabled feature.
func (s *ScopedOverride) InitAndDisableFeature(f *Feature) {
	s.InitWithFeatures(nil, []*Feature{f})
}

func (s *ScopedOverride) install(fl *FeatureList) {
	check.DCheck(!s.active, "ScopedOverride initialized twice without Reset")
	s.previous = SetInstance(fl)
	s.installed = fl
	s.active = true
}

// Active reports whether the scope currently has a registry installed.
func (s *ScopedOverride) Active() bool {
	return s.active
}

// Reset restores the registry that was current before the scope was
// initialized. It is a no-op on an inactive scope.
func (s *ScopedOverride) Reset() {
	if !s.active {
		return
	}
	current := Instance()
	check.DCheck(current == s.installed,
		"feature registry replaced inside a ScopedOverride and not restored")
	SetInstance(s.previous)
	s.installed = nil
	s.previous = nil
	s.active = false
}
