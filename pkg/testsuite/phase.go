package testsuite

import "fmt"

// Phase is a step in the suite lifecycle.
type Phase string

const (
	PhaseConstructed     Phase = "constructed"      // pre-initialization done
	PhaseArgumentsParsed Phase = "arguments_parsed" // command line owned or adopted
	PhaseInitialized     Phase = "initialized"      // listeners and facilities installed
	PhaseRunning         Phase = "running"          // engine or child helper running
	PhaseShutDown        Phase = "shut_down"        // resources released
)

// validPhaseTransitions maps from-phase to allowed to-phases.
var validPhaseTransitions = map[Phase]map[Phase]bool{
	PhaseConstructed: {
		PhaseArgumentsParsed: true,
	},
	PhaseArgumentsParsed: {
		PhaseInitialized: true,
	},
	PhaseInitialized: {
		PhaseRunning:  true,
		PhaseShutDown: true, // Initialize then Shutdown without Run
	},
	PhaseRunning: {
		PhaseShutDown: true,
	},
	PhaseShutDown: {},
}

// ValidatePhaseTransition checks if a phase transition is valid.
func ValidatePhaseTransition(from, to Phase) error {
	allowed, exists := validPhaseTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source phase: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalPhase returns true if no further transitions are allowed.
func IsTerminalPhase(p Phase) bool {
	return p == PhaseShutDown
}
