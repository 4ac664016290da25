package service

import "sync"

// ConnState is the live-subscription lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnStatus is the externally visible health snapshot of one subscription.
type ConnStatus struct {
	Connected    bool `json:"connected"`
	Reconnecting bool `json:"reconnecting"`
}

// ConnectionSupervisor reflects the health of a single live event
// subscription. It never retries on its own; the transport owns backoff and
// re-open. The supervisor only maps open/error/close transitions onto a
// connected/reconnecting snapshot and notifies on changes.
type ConnectionSupervisor struct {
	mu       sync.Mutex
	state    ConnState
	onChange func(ConnStatus)
}

// NewConnectionSupervisor starts in Disconnected. onChange may be nil; when
// set it is invoked (outside the lock) after every state transition.
func NewConnectionSupervisor(onChange func(ConnStatus)) *ConnectionSupervisor {
	return &ConnectionSupervisor{state: StateDisconnected, onChange: onChange}
}

// Connecting marks a connection attempt (initial or after an error).
func (s *ConnectionSupervisor) Connecting() {
	s.transition(StateConnecting)
}

// Opened marks a successful open and clears the reconnecting flag.
func (s *ConnectionSupervisor) Opened() {
	s.transition(StateConnected)
}

// Errored marks a transport error; the transport is expected to re-open.
func (s *ConnectionSupervisor) Errored() {
	s.transition(StateReconnecting)
}

// Closed marks deliberate teardown.
func (s *ConnectionSupervisor) Closed() {
	s.transition(StateDisconnected)
}

// State returns the current lifecycle state.
func (s *ConnectionSupervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the boolean snapshot the rest of the engine consumes.
func (s *ConnectionSupervisor) Status() ConnStatus {
	return statusFor(s.State())
}

func (s *ConnectionSupervisor) transition(next ConnState) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	cb := s.onChange
	s.mu.Unlock()

	if changed && cb != nil {
		cb(statusFor(next))
	}
}

func statusFor(state ConnState) ConnStatus {
	return ConnStatus{
		Connected:    state == StateConnected,
		Reconnecting: state == StateReconnecting,
	}
}
