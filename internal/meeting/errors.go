package meeting

import "fmt"

// UserInputError reports a malformed command argument. The driver replies to the sender
// with Msg and nothing changes.
type UserInputError struct {
	Msg string
}

func (e *UserInputError) Error() string {
	return e.Msg
}

// StateViolation reports a command issued in a phase that does not allow it.
type StateViolation struct {
	Phase Phase
	Msg   string
}

func (e *StateViolation) Error() string {
	return e.Msg
}

func userErrorf(format string, args ...interface{}) error {
	return &UserInputError{Msg: fmt.Sprintf(format, args...)}
}

func stateErrorf(phase Phase, format string, args ...interface{}) error {
	return &StateViolation{Phase: phase, Msg: fmt.Sprintf(format, args...)}
}
