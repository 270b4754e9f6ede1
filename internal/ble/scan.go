package ble

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ScanForDevices scans for vests advertising serviceUUID until timeout and
// returns each device once, in discovery order.
func ScanForDevices(adapter Adapter, serviceUUID string, timeout time.Duration) ([]Device, error) {
	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)
	powered := make(chan bool, 1)

	sink := func(ev Event) {
		switch ev := ev.(type) {
		case AdapterStateChanged:
			select {
			case powered <- ev.PoweredOn:
			default:
			}
		case DeviceDiscovered:
			mu.Lock()
			defer mu.Unlock()
			if seen[ev.Device.ID] {
				return
			}
			seen[ev.Device.ID] = true
			devices = append(devices, ev.Device)
		}
	}

	if err := adapter.Enable(sink); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case on := <-powered:
		if !on {
			return nil, fmt.Errorf("ble: radio is powered off")
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: radio did not power on: %w", ctx.Err())
	}

	if err := adapter.StartScan(serviceUUID); err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	<-ctx.Done()
	if err := adapter.StopScan(); err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Device, len(devices))
	copy(out, devices)
	return out, nil
}
