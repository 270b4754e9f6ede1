package ble

import "github.com/heatsync/heatsync/internal/ble/protocol"

// State is the session's connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscoveringServices
	StateDiscoveringCharacteristics
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateDiscoveringServices:
		return "discovering services"
	case StateDiscoveringCharacteristics:
		return "discovering characteristics"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Status is a snapshot of everything the display layer renders. A new
// Status is presented after every state transition and control change.
type Status struct {
	State  State
	Device *Device // nil when no device is connected

	// Display fields. Readings are placeholders until a read path exists.
	Radio       string
	VestTemp    string
	PeltierTemp string
	Battery     string
	HeartRate   string
	Cooling     string

	// Control surface.
	Power           bool
	VestSetpoint    uint8
	PeltierSetpoint uint8
	VestLabel       string
	PeltierLabel    string
}

// Ready reports whether control writes are currently delivered.
func (s Status) Ready() bool {
	return s.State == StateReady && s.Device != nil
}

// Presenter renders session status. Present is called on the session's
// event-loop goroutine and must not block.
type Presenter interface {
	Present(Status)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Status)

func (f PresenterFunc) Present(s Status) { f(s) }

func initialStatus(suffix string) Status {
	s := Status{Radio: protocol.NotAvailable}
	resetDisplay(&s, suffix)
	return s
}

// resetDisplay puts every reading back to the "not available" sentinel and
// zeroes both setpoints.
func resetDisplay(s *Status, suffix string) {
	s.Radio = protocol.NotAvailable
	s.VestTemp = protocol.NotAvailable
	s.PeltierTemp = protocol.NotAvailable
	s.Battery = protocol.NotAvailable
	s.HeartRate = protocol.NotAvailable
	s.Cooling = protocol.NotAvailable
	s.VestSetpoint = 0
	s.PeltierSetpoint = 0
	s.VestLabel = protocol.SetpointLabel(0, suffix)
	s.PeltierLabel = protocol.SetpointLabel(0, suffix)
}
