package randomness

import "fmt"

// ViolationError reports a randomness draw that the active policy does not
// permit: either a draw under forbidden mode, or a seeded-mode draw with no
// registered seed. Requirement states what the caller needed, so the two
// cases stay distinguishable through error wrapping.
type ViolationError struct {
	Mode        Mode
	Requirement string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("randomness violation under mode %q: %s", e.Mode, e.Requirement)
}

// ModeError reports an operation invoked under the wrong randomness mode.
type ModeError struct {
	Op   string
	Mode Mode
	Want Mode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("%s requires mode %q, current mode is %q", e.Op, e.Want, e.Mode)
}
