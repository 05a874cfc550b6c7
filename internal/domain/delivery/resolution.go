package delivery

// ResolutionState classifies a (code, order) pair against the two record
// sets. Classification is total: every lookup lands in exactly one state.
type ResolutionState string

const (
	// StateReady - pending record found, eligible for confirmation
	StateReady ResolutionState = "ready"
	// StateAlreadyConfirmed - the code has been consumed; idempotent no-op
	StateAlreadyConfirmed ResolutionState = "already_confirmed"
	// StateInvalid - the code is in neither set; terminal
	StateInvalid ResolutionState = "invalid"
)

// IsValid checks if the state is a valid ResolutionState
func (s ResolutionState) IsValid() bool {
	switch s {
	case StateReady, StateAlreadyConfirmed, StateInvalid:
		return true
	}
	return false
}

// String returns the string representation of ResolutionState
func (s ResolutionState) String() string {
	return string(s)
}

// Confirmable reports whether the executor may commit the transition
func (s ResolutionState) Confirmable() bool {
	return s == StateReady
}
