package kernel

// State is a plugin's position in its lifecycle state machine (spec.md §3).
type State string

const (
	StateUninstalled State = "Uninstalled"
	StateInstalled   State = "Installed"
	StateLoaded      State = "Loaded"
	StateActivated   State = "Activated"
	StateRunning     State = "Running"
	StateDeactivated State = "Deactivated"
)

// legalTransitions is the closed set of allowed moves. Anything not listed
// here is rejected as InvalidStateTransition.
var legalTransitions = map[State]map[State]bool{
	StateUninstalled: {StateInstalled: true},
	StateInstalled:   {StateLoaded: true, StateUninstalled: true},
	StateLoaded:      {StateActivated: true},
	StateActivated:   {StateRunning: true},
	StateRunning:     {StateDeactivated: true},
	StateDeactivated: {StateActivated: true, StateInstalled: true, StateUninstalled: true},
}

// CanTransitionTo reports whether moving from s to target is legal. It is a
// pure function, exhaustively tested against the table in spec.md §3.
func (s State) CanTransitionTo(target State) bool {
	return legalTransitions[s][target]
}
