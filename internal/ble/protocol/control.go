// Package protocol encodes the HeatSync control values. Every control write
// is a single unsigned byte.
package protocol

import "strconv"

// Display sentinels.
const (
	NotAvailable = "NA"
	RadioOn      = "ON"
	RadioOff     = "OFF"
)

// DefaultUnitSuffix is appended to setpoint values for display.
const DefaultUnitSuffix = "°F"

// Power switch bytes.
const (
	PowerOff byte = 0
	PowerOn  byte = 1
)

// EncodePower returns the one-byte payload for the power characteristic.
func EncodePower(on bool) []byte {
	if on {
		return []byte{PowerOn}
	}
	return []byte{PowerOff}
}

// EncodeSetpoint returns the one-byte payload for a temperature setpoint.
// The value is whole degrees; no unit conversion is applied.
func EncodeSetpoint(v uint8) []byte {
	return []byte{v}
}

// SetpointLabel renders a setpoint for display, e.g. "72°F".
func SetpointLabel(v uint8, suffix string) string {
	return strconv.Itoa(int(v)) + suffix
}

// ClampSetpoint bounds v to the slider range 0..255.
func ClampSetpoint(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
