package features

import (
	"hash/fnv"
	"sort"
	"sync"
)

// DefaultGroupName is used for forced trials created without an explicit group.
const DefaultGroupName = "Default"

// EntropyProvider supplies the value in [0, 1) used to place this process in
// a trial group.
type EntropyProvider interface {
	Entropy(trialName string) float64
}

// MockEntropyProvider returns a fixed value, so group assignment in tests is
// deterministic.
type MockEntropyProvider struct {
	Value float64
}

// Entropy implements EntropyProvider.
func (m MockEntropyProvider) Entropy(string) float64 {
	return m.Value
}

// HashEntropyProvider derives entropy from a seed and the trial name.
type HashEntropyProvider struct {
	Seed string
}

// Entropy implements EntropyProvider.
func (h HashEntropyProvider) Entropy(trialName string) float64 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(h.Seed))
	_, _ = f.Write([]byte(trialName))
	return float64(f.Sum64()%10000) / 10000
}

type trialGroup struct {
	name        string
	probability int
}

// Trial is an experiment with weighted groups. The group is chosen lazily on
// first query and never changes afterwards.
type Trial struct {
	mu               sync.Mutex
	name             string
	totalProbability int
	groups           []trialGroup
	entropy          float64
	forced           string
	chosen           string
	active           bool
}

// Name returns the trial name.
func (t *Trial) Name() string {
	return t.name
}

// AppendGroup adds a group with the given share of the total probability.
func (t *Trial) AppendGroup(name string, probability int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chosen != "" {
		return
	}
	t.groups = append(t.groups, trialGroup{name: name, probability: probability})
}

// GroupName finalizes and returns the chosen group.
func (t *Trial) GroupName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalizeLocked()
	return t.chosen
}

// Activate finalizes the group and marks the trial as queried.
func (t *Trial) Activate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalizeLocked()
	t.active = true
}

// Active reports whether the trial has been queried.
func (t *Trial) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Trial) finalizeLocked() {
	if t.chosen != "" {
		return
	}
	if t.forced != "" {
		t.chosen = t.forced
		return
	}
	threshold := int(t.entropy * float64(t.totalProbability))
	cumulative := 0
	for _, g := range t.groups {
		cumulative += g.probability
		if threshold < cumulative {
			t.chosen = g.name
			return
		}
	}
	t.chosen = DefaultGroupName
}

// TrialList is the experiment-assignment source for a process or test scope.
// Creating one makes it the active list; Close reinstates the previous one.
type TrialList struct {
	mu       sync.Mutex
	entropy  EntropyProvider
	trials   map[string]*Trial
	previous *TrialList
	closed   bool
}

var (
	activeMu    sync.Mutex
	activeTrial *TrialList
)

// NewTrialList creates a trial list and installs it as the active one.
func NewTrialList(entropy EntropyProvider) *TrialList {
	if entropy == nil {
		entropy = MockEntropyProvider{Value: 0.5}
	}
	l := &TrialList{entropy: entropy, trials: make(map[string]*Trial)}
	activeMu.Lock()
	l.previous = activeTrial
	activeTrial = l
	activeMu.Unlock()
	return l
}

// ActiveTrialList returns the active trial list, or nil.
func ActiveTrialList() *TrialList {
	activeMu.Lock()
	defer activeMu.Unlock()
	return activeTrial
}

// Close uninstalls l, reinstating the list that was active when it was
// created.
func (l *TrialList) Close() {
	activeMu.Lock()
	defer activeMu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if activeTrial == l {
		activeTrial = l.previous
	}
}

// CreateTrial registers a weighted trial. An existing trial of the same name
// is returned unchanged.
func (l *TrialList) CreateTrial(name string, totalProbability int) *Trial {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.trials[name]; ok {
		return t
	}
	t := &Trial{
		name:             name,
		totalProbability: totalProbability,
		entropy:          l.entropy.Entropy(name),
	}
	l.trials[name] = t
	return t
}

// CreateForcedTrial registers a trial pinned to group.
func (l *TrialList) CreateForcedTrial(name, group string) *Trial {
	t := l.CreateTrial(name, 100)
	t.mu.Lock()
	if t.chosen == "" {
		t.forced = group
	}
	t.mu.Unlock()
	return t
}

// Find returns the named trial or nil.
func (l *TrialList) Find(name string) *Trial {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trials[name]
}

// ActiveGroups returns trial name to group for every queried trial.
func (l *TrialList) ActiveGroups() map[string]string {
	l.mu.Lock()
	names := make([]string, 0, len(l.trials))
	for name := range l.trials {
		names = append(names, name)
	}
	l.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]string)
	for _, name := range names {
		t := l.Find(name)
		if t.Active() {
			out[name] = t.GroupName()
		}
	}
	return out
}
