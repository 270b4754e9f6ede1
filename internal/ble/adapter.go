// Package ble provides the session manager for a HeatSync cooling vest.
// It owns the BLE central role: it scans for the vest's service, connects,
// discovers the control characteristics and writes single-byte control
// values to them.
package ble

// Default HeatSync BLE UUIDs. The vest characteristic is the "edit"
// characteristic advertised by the controller firmware.
const (
	ServiceUUID     = "19b10000-e8f2-537e-4f6c-d104768a1214"
	VestCharUUID    = "19b10001-e8f2-537e-4f6c-d104768a1214"
	PowerCharUUID   = "19b10002-e8f2-537e-4f6c-d104768a1214"
	PeltierCharUUID = "19b10003-e8f2-537e-4f6c-d104768a1214"
)

// Device identifies a discovered BLE peripheral.
type Device struct {
	ID   string // MAC address, or CoreBluetooth UUID on macOS
	Name string
	RSSI int
}

// Service is a GATT service found on a connected device.
type Service interface {
	UUID() string
}

// Characteristic is a GATT characteristic used to write control values.
type Characteristic interface {
	UUID() string
	// CanWriteWithoutResponse reports whether the characteristic accepts
	// write-without-response.
	CanWriteWithoutResponse() bool
	// WriteWithoutResponse sends data without waiting for an acknowledgement.
	WriteWithoutResponse(data []byte) error
}

// Adapter abstracts the local BLE radio.
//
// Every method returns immediately. Completions are reported later through
// the sink passed to Enable, as Event values.
type Adapter interface {
	// Enable powers on the radio and registers the event sink. The adapter
	// reports the resulting power state as an AdapterStateChanged event.
	Enable(sink func(Event)) error
	// StartScan reports each peripheral advertising serviceUUID as a
	// DeviceDiscovered event until StopScan is called.
	StartScan(serviceUUID string) error
	StopScan() error
	// Connect reports Connected on success.
	Connect(dev Device) error
	// DiscoverServices reports ServicesDiscovered.
	DiscoverServices(dev Device, serviceUUID string) error
	// DiscoverCharacteristics reports CharacteristicsDiscovered.
	DiscoverCharacteristics(svc Service, charUUIDs []string) error
	// Disconnect terminates the connection. A Disconnected event follows.
	Disconnect(dev Device) error
}

// Event is a radio or control-input event consumed by Session.Handle.
type Event interface {
	event()
}

// AdapterStateChanged reports the radio's power state.
type AdapterStateChanged struct {
	PoweredOn bool
}

// DeviceDiscovered reports a peripheral advertising the scanned service.
type DeviceDiscovered struct {
	Device Device
}

// Connected reports a successful connection.
type Connected struct {
	Device Device
}

// ServicesDiscovered lists the services found on a device.
type ServicesDiscovered struct {
	Device   Device
	Services []Service
}

// CharacteristicsDiscovered lists the characteristics found on a service.
type CharacteristicsDiscovered struct {
	Service         Service
	Characteristics []Characteristic
}

// Disconnected reports a dropped connection, whatever the cause.
type Disconnected struct {
	Device Device
}

// PowerInput is a change of the power switch.
type PowerInput struct {
	On bool
}

// VestSetpointInput is a change of the vest temperature slider.
type VestSetpointInput struct {
	Value uint8
}

// PeltierSetpointInput is a change of the peltier temperature slider.
type PeltierSetpointInput struct {
	Value uint8
}

func (AdapterStateChanged) event()       {}
func (DeviceDiscovered) event()          {}
func (Connected) event()                 {}
func (ServicesDiscovered) event()        {}
func (CharacteristicsDiscovered) event() {}
func (Disconnected) event()              {}
func (PowerInput) event()                {}
func (VestSetpointInput) event()         {}
func (PeltierSetpointInput) event()      {}
