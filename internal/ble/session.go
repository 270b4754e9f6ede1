package ble

import (
	"context"
	"log/slog"
	"strings"

	"github.com/heatsync/heatsync/internal/ble/protocol"
)

// SessionOptions configures the session.
type SessionOptions struct {
	ServiceUUID     string
	VestCharUUID    string // presence of this characteristic makes the session Ready
	PowerCharUUID   string
	PeltierCharUUID string
	UnitSuffix      string // appended to setpoint labels
	QueueSize       int    // event queue capacity
}

// DefaultSessionOptions returns the stock HeatSync identifiers.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ServiceUUID:     ServiceUUID,
		VestCharUUID:    VestCharUUID,
		PowerCharUUID:   PowerCharUUID,
		PeltierCharUUID: PeltierCharUUID,
		UnitSuffix:      protocol.DefaultUnitSuffix,
		QueueSize:       64,
	}
}

// Session manages the connection to one vest. All state lives on the
// goroutine running Run; everything else only posts events.
type Session struct {
	adapter   Adapter
	presenter Presenter
	opts      SessionOptions

	events chan Event
	done   chan struct{}

	state       State
	device      *Device
	service     Service
	vestChar    Characteristic
	powerChar   Characteristic
	peltierChar Characteristic
	status      Status
}

// NewSession creates a session bound to adapter. A nil presenter discards
// status updates.
func NewSession(adapter Adapter, presenter Presenter, opts SessionOptions) *Session {
	def := DefaultSessionOptions()
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = def.ServiceUUID
	}
	if opts.VestCharUUID == "" {
		opts.VestCharUUID = def.VestCharUUID
	}
	if opts.PowerCharUUID == "" {
		opts.PowerCharUUID = def.PowerCharUUID
	}
	if opts.PeltierCharUUID == "" {
		opts.PeltierCharUUID = def.PeltierCharUUID
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if presenter == nil {
		presenter = PresenterFunc(func(Status) {})
	}
	return &Session{
		adapter:   adapter,
		presenter: presenter,
		opts:      opts,
		events:    make(chan Event, opts.QueueSize),
		done:      make(chan struct{}),
		state:     StateIdle,
		status:    initialStatus(opts.UnitSuffix),
	}
}

// Begin enables the radio. The state machine starts once the adapter
// reports that it is powered on. An enable failure is logged and shown as
// a powered-off radio.
func (s *Session) Begin() {
	if err := s.adapter.Enable(s.Post); err != nil {
		slog.Error("[BLE] enable adapter", "error", err)
		s.Post(AdapterStateChanged{PoweredOn: false})
	}
}

// Run processes events until ctx is cancelled. On return the scan is
// stopped and the current device, if any, is disconnected.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.present()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.Handle(ev)
		}
	}
}

// Post queues an event for the event loop. It never blocks once Run has
// returned; the event is dropped instead.
func (s *Session) Post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// SetPower requests the power switch state.
func (s *Session) SetPower(on bool) { s.Post(PowerInput{On: on}) }

// SetVestSetpoint requests a vest temperature setpoint.
func (s *Session) SetVestSetpoint(v uint8) { s.Post(VestSetpointInput{Value: v}) }

// SetPeltierSetpoint requests a peltier temperature setpoint.
func (s *Session) SetPeltierSetpoint(v uint8) { s.Post(PeltierSetpointInput{Value: v}) }

// Handle applies one event to the state machine. It must only be called
// from the goroutine running Run, or when Run is not running.
func (s *Session) Handle(ev Event) {
	switch ev := ev.(type) {
	case AdapterStateChanged:
		s.onAdapterState(ev.PoweredOn)
	case DeviceDiscovered:
		s.onDeviceDiscovered(ev.Device)
	case Connected:
		s.onConnected(ev.Device)
	case ServicesDiscovered:
		s.onServicesDiscovered(ev)
	case CharacteristicsDiscovered:
		s.onCharacteristicsDiscovered(ev)
	case Disconnected:
		s.onDisconnected(ev.Device)
	case PowerInput:
		s.status.Power = ev.On
		s.present()
		s.write(s.powerChar, "power", protocol.EncodePower(ev.On))
	case VestSetpointInput:
		s.status.VestSetpoint = ev.Value
		s.status.VestLabel = protocol.SetpointLabel(ev.Value, s.opts.UnitSuffix)
		s.present()
		s.write(s.vestChar, "vest", protocol.EncodeSetpoint(ev.Value))
	case PeltierSetpointInput:
		s.status.PeltierSetpoint = ev.Value
		s.status.PeltierLabel = protocol.SetpointLabel(ev.Value, s.opts.UnitSuffix)
		s.present()
		s.write(s.peltierChar, "peltier", protocol.EncodeSetpoint(ev.Value))
	default:
		slog.Debug("[BLE] unhandled event", "event", ev)
	}
}

func (s *Session) onAdapterState(poweredOn bool) {
	if !poweredOn {
		slog.Warn("[BLE] radio is not powered on")
		s.clearDevice()
		s.status.Radio = protocol.RadioOff
		s.setState(StateIdle)
		return
	}
	if s.state != StateIdle && s.state != StateDisconnected {
		slog.Debug("[BLE] radio powered on, already active", "state", s.state)
		return
	}
	s.status.Radio = protocol.RadioOn
	s.startScan()
}

func (s *Session) startScan() {
	if err := s.adapter.StartScan(s.opts.ServiceUUID); err != nil {
		slog.Error("[BLE] start scan", "service", s.opts.ServiceUUID, "error", err)
		s.present()
		return
	}
	slog.Info("[BLE] scanning", "service", s.opts.ServiceUUID)
	s.setState(StateScanning)
}

func (s *Session) onDeviceDiscovered(dev Device) {
	if s.state != StateScanning {
		slog.Debug("[BLE] ignoring discovery", "id", dev.ID, "state", s.state)
		return
	}
	if err := s.adapter.StopScan(); err != nil {
		slog.Warn("[BLE] stop scan", "error", err)
	}

	s.device = &dev
	s.status.Device = &dev
	s.setState(StateConnecting)
	slog.Info("[BLE] connecting", "id", dev.ID, "name", dev.Name, "rssi", dev.RSSI)

	if err := s.adapter.Connect(dev); err != nil {
		// Nothing retries here; a later disconnect or power cycle restarts
		// the scan.
		slog.Error("[BLE] connect", "id", dev.ID, "error", err)
	}
}

func (s *Session) onConnected(dev Device) {
	if s.state != StateConnecting || !s.isCurrent(dev) {
		slog.Debug("[BLE] ignoring connect", "id", dev.ID, "state", s.state)
		return
	}
	slog.Info("[BLE] connected", "id", dev.ID)
	s.setState(StateDiscoveringServices)
	if err := s.adapter.DiscoverServices(dev, s.opts.ServiceUUID); err != nil {
		slog.Error("[BLE] discover services", "id", dev.ID, "error", err)
	}
}

func (s *Session) onServicesDiscovered(ev ServicesDiscovered) {
	if s.state != StateDiscoveringServices || !s.isCurrent(ev.Device) {
		slog.Debug("[BLE] ignoring services", "id", ev.Device.ID, "state", s.state)
		return
	}
	var svc Service
	for _, candidate := range ev.Services {
		if sameUUID(candidate.UUID(), s.opts.ServiceUUID) {
			svc = candidate
			break
		}
	}
	if svc == nil {
		// Known stall: no timeout, the session waits for a disconnect.
		slog.Warn("[BLE] service not found, discovery stalled until disconnect",
			"service", s.opts.ServiceUUID, "id", ev.Device.ID)
		return
	}

	slog.Info("[BLE] service found", "service", svc.UUID())
	s.service = svc
	s.setState(StateDiscoveringCharacteristics)
	ids := []string{s.opts.VestCharUUID, s.opts.PowerCharUUID, s.opts.PeltierCharUUID}
	if err := s.adapter.DiscoverCharacteristics(svc, ids); err != nil {
		slog.Error("[BLE] discover characteristics", "service", svc.UUID(), "error", err)
	}
}

func (s *Session) onCharacteristicsDiscovered(ev CharacteristicsDiscovered) {
	if s.state != StateDiscoveringCharacteristics {
		slog.Debug("[BLE] ignoring characteristics", "state", s.state)
		return
	}
	if ev.Service != nil && s.service != nil && !sameUUID(ev.Service.UUID(), s.service.UUID()) {
		slog.Debug("[BLE] ignoring characteristics of other service", "service", ev.Service.UUID())
		return
	}

	for _, c := range ev.Characteristics {
		switch {
		case sameUUID(c.UUID(), s.opts.VestCharUUID):
			s.vestChar = c
		case sameUUID(c.UUID(), s.opts.PowerCharUUID):
			s.powerChar = c
		case sameUUID(c.UUID(), s.opts.PeltierCharUUID):
			s.peltierChar = c
		}
	}
	if s.vestChar == nil {
		// Known stall, as for a missing service.
		slog.Warn("[BLE] control characteristic not found, discovery stalled until disconnect",
			"characteristic", s.opts.VestCharUUID)
		return
	}

	slog.Info("[BLE] ready",
		"power", s.powerChar != nil,
		"peltier", s.peltierChar != nil)
	s.setState(StateReady)
}

func (s *Session) onDisconnected(dev Device) {
	if !s.isCurrent(dev) {
		slog.Debug("[BLE] ignoring disconnect", "id", dev.ID)
		return
	}
	slog.Warn("[BLE] disconnected, rescanning", "id", dev.ID, "state", s.state)

	s.clearDevice()
	resetDisplay(&s.status, s.opts.UnitSuffix)
	s.setState(StateDisconnected)
	s.startScan()
}

// write delivers data to c only when the session is Ready. Anything else
// is dropped, never queued.
func (s *Session) write(c Characteristic, control string, data []byte) {
	if s.state != StateReady || s.device == nil {
		slog.Debug("[BLE] not ready, dropping write", "control", control, "state", s.state)
		return
	}
	if c == nil {
		slog.Debug("[BLE] characteristic not bound, dropping write", "control", control)
		return
	}
	if !c.CanWriteWithoutResponse() {
		slog.Debug("[BLE] characteristic lacks write-without-response, dropping write", "control", control)
		return
	}
	if err := c.WriteWithoutResponse(data); err != nil {
		slog.Error("[BLE] write", "control", control, "error", err)
	}
}

func (s *Session) shutdown() {
	switch {
	case s.state == StateScanning:
		if err := s.adapter.StopScan(); err != nil {
			slog.Warn("[BLE] stop scan", "error", err)
		}
	case s.device != nil:
		if err := s.adapter.Disconnect(*s.device); err != nil {
			slog.Warn("[BLE] disconnect", "id", s.device.ID, "error", err)
		}
	}
}

func (s *Session) clearDevice() {
	s.device = nil
	s.service = nil
	s.vestChar = nil
	s.powerChar = nil
	s.peltierChar = nil
	s.status.Device = nil
}

func (s *Session) isCurrent(dev Device) bool {
	return s.device != nil && s.device.ID == dev.ID
}

func (s *Session) setState(st State) {
	if s.state != st {
		slog.Debug("[BLE] state", "from", s.state, "to", st)
	}
	s.state = st
	s.present()
}

func (s *Session) present() {
	st := s.status
	st.State = s.state
	if st.Device != nil {
		d := *st.Device
		st.Device = &d
	}
	s.presenter.Present(st)
}

func sameUUID(a, b string) bool {
	return strings.EqualFold(a, b)
}
