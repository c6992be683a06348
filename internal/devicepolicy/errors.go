package devicepolicy

import "fmt"

// InvalidTransitionError reports an event that is not legal from the
// device's current state.
type InvalidTransitionError struct {
	From  DeviceState
	Event EventType
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s + %s", e.From, e.Event)
}

// NotFoundError reports an unknown serial or command id.
type NotFoundError struct {
	Kind string // "device" or "command"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// CircuitOpenError reports that the lock-rate circuit breaker is OPEN and
// refused to admit a lock-producing transition. The caller should back off.
type CircuitOpenError struct{}

func (e *CircuitOpenError) Error() string {
	return "circuit breaker open: lock operations halted"
}
