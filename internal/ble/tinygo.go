package ble

import (
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter implements Adapter on tinygo-org/bluetooth. The library's
// blocking calls run on their own goroutines and report back as events.
// On macOS, device IDs are CoreBluetooth UUIDs rather than MAC addresses.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects sink, addresses and devices.
	mu        sync.Mutex
	sink      func(Event)
	addresses map[string]bluetooth.Address // scan results, keyed by device ID
	devices   map[string]*bluetooth.Device // live connections, keyed by device ID

	pending pendingConnects
}

// NewTinyGoAdapter creates an adapter on the system's default radio.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:   bluetooth.DefaultAdapter,
		addresses: make(map[string]bluetooth.Address),
		devices:   make(map[string]*bluetooth.Device),
		pending:   pendingConnects{abandoned: make(map[string]bool)},
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

func (a *TinyGoAdapter) Enable(sink func(Event)) error {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()

	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable: %w", err)
	}

	// tinygo/bluetooth reports peripheral disconnects through the
	// adapter-level connect handler with connected=false.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		_, ok := a.devices[id]
		delete(a.devices, id)
		a.mu.Unlock()
		if ok {
			a.emit(Disconnected{Device: Device{ID: id}})
		}
	})

	a.emit(AdapterStateChanged{PoweredOn: true})
	return nil
}

func (a *TinyGoAdapter) StartScan(serviceUUID string) error {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	go func() {
		err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(uuid) {
				return
			}
			id := result.Address.String()
			a.mu.Lock()
			a.addresses[id] = result.Address
			a.mu.Unlock()
			a.emit(DeviceDiscovered{Device: Device{
				ID:   id,
				Name: result.LocalName(),
				RSSI: int(result.RSSI),
			}})
		})
		if err != nil {
			slog.Error("[BLE] scan", "error", err)
		}
	}()
	return nil
}

func (a *TinyGoAdapter) StopScan() error {
	if err := a.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	return nil
}

func (a *TinyGoAdapter) Connect(dev Device) error {
	a.mu.Lock()
	addr, ok := a.addresses[dev.ID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: connect to %s: device was not scanned", dev.ID)
	}

	a.pending.start(dev.ID)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		abandoned := a.pending.finish(dev.ID)
		if err != nil {
			slog.Error("[BLE] connect", "id", dev.ID, "error", err)
			return
		}
		if abandoned {
			slog.Info("[BLE] dropping connection abandoned while connecting", "id", dev.ID)
			if err := device.Disconnect(); err != nil {
				slog.Warn("[BLE] disconnect", "id", dev.ID, "error", err)
			}
			return
		}
		a.mu.Lock()
		a.devices[dev.ID] = &device
		a.mu.Unlock()
		a.emit(Connected{Device: dev})
	}()
	return nil
}

func (a *TinyGoAdapter) DiscoverServices(dev Device, serviceUUID string) error {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}
	device, err := a.device(dev.ID)
	if err != nil {
		return err
	}

	go func() {
		svcs, err := device.DiscoverServices([]bluetooth.UUID{uuid})
		if err != nil {
			slog.Warn("[BLE] discover services", "id", dev.ID, "error", err)
		}
		found := make([]Service, 0, len(svcs))
		for _, svc := range svcs {
			found = append(found, &tinyGoService{svc: svc})
		}
		a.emit(ServicesDiscovered{Device: dev, Services: found})
	}()
	return nil
}

func (a *TinyGoAdapter) DiscoverCharacteristics(svc Service, charUUIDs []string) error {
	ts, ok := svc.(*tinyGoService)
	if !ok {
		return fmt.Errorf("ble: discover characteristics: foreign service %T", svc)
	}
	uuids := make([]bluetooth.UUID, 0, len(charUUIDs))
	for _, s := range charUUIDs {
		uuid, err := bluetooth.ParseUUID(s)
		if err != nil {
			return fmt.Errorf("ble: parse characteristic UUID: %w", err)
		}
		uuids = append(uuids, uuid)
	}

	go func() {
		// Filtering can fail when some of the requested characteristics are
		// absent, so ask for all of them and let the session pick.
		chars, err := ts.svc.DiscoverCharacteristics(nil)
		if err != nil {
			slog.Warn("[BLE] discover characteristics", "service", ts.UUID(), "error", err)
		}
		found := make([]Characteristic, 0, len(uuids))
		for _, c := range chars {
			if containsUUID(uuids, c.UUID()) {
				found = append(found, &tinyGoCharacteristic{char: c})
			}
		}
		a.emit(CharacteristicsDiscovered{Service: svc, Characteristics: found})
	}()
	return nil
}

// Disconnect closes the link to dev. A connect still in flight is
// abandoned and torn down as soon as it completes.
func (a *TinyGoAdapter) Disconnect(dev Device) error {
	if a.pending.abandon(dev.ID) {
		return nil
	}
	device, err := a.device(dev.ID)
	if err != nil {
		return err
	}
	if err := device.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", dev.ID, err)
	}
	return nil
}

func (a *TinyGoAdapter) device(id string) (*bluetooth.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	device, ok := a.devices[id]
	if !ok {
		return nil, fmt.Errorf("ble: device %s is not connected", id)
	}
	return device, nil
}

func (a *TinyGoAdapter) emit(ev Event) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

// pendingConnects tracks connects that have been started but not yet
// completed, keyed by device ID. The value is true once the connect is
// abandoned.
type pendingConnects struct {
	mu        sync.Mutex
	abandoned map[string]bool
}

func (p *pendingConnects) start(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandoned[id] = false
}

// abandon marks an in-flight connect to id as unwanted. It reports false
// when no connect to id is in flight.
func (p *pendingConnects) abandon(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.abandoned[id]; !ok {
		return false
	}
	p.abandoned[id] = true
	return true
}

// finish ends tracking of the connect to id and reports whether it was
// abandoned meanwhile.
func (p *pendingConnects) finish(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	abandoned := p.abandoned[id]
	delete(p.abandoned, id)
	return abandoned
}

func containsUUID(uuids []bluetooth.UUID, u bluetooth.UUID) bool {
	for _, candidate := range uuids {
		if candidate == u {
			return true
		}
	}
	return false
}

type tinyGoService struct {
	svc bluetooth.DeviceService
}

func (s *tinyGoService) UUID() string {
	return s.svc.UUID().String()
}

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) UUID() string {
	return c.char.UUID().String()
}

// CanWriteWithoutResponse is always true: tinygo/bluetooth does not expose
// characteristic properties on every backend.
func (c *tinyGoCharacteristic) CanWriteWithoutResponse() bool {
	return true
}

func (c *tinyGoCharacteristic) WriteWithoutResponse(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}
