// Package statusbus fans session status out to every display that renders
// it (the terminal UI, the headless logger).
package statusbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cskr/pubsub/v2"

	"github.com/heatsync/heatsync/internal/ble"
)

const topic = "status"

// Bus is a ble.Presenter that republishes every status to its subscribers,
// in order. Present never blocks: statuses queue in the bus and a pump
// goroutine publishes them. Subscribers must keep reading until they
// unsubscribe.
type Bus struct {
	ps *pubsub.PubSub[string, ble.Status]

	mu      sync.Mutex
	pending []ble.Status
	kick    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Compile-time check that Bus implements ble.Presenter.
var _ ble.Presenter = (*Bus)(nil)

// New creates a bus whose subscriber channels hold capacity statuses.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 16
	}
	b := &Bus{
		ps:      pubsub.New[string, ble.Status](capacity),
		kick:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.pump()
	return b
}

// Present queues s for all subscribers.
func (b *Bus) Present(s ble.Status) {
	b.mu.Lock()
	b.pending = append(b.pending, s)
	b.mu.Unlock()
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *Bus) pump() {
	defer close(b.stopped)
	for {
		select {
		case <-b.quit:
			return
		case <-b.kick:
		}
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		b.mu.Unlock()
		for _, s := range batch {
			b.ps.Pub(s, topic)
		}
	}
}

// Subscribe returns a channel of statuses and a function that ends the
// subscription. The channel is closed once unsubscribed; anything still
// in flight is discarded.
func (b *Bus) Subscribe() (<-chan ble.Status, func()) {
	ch := b.ps.Sub(topic)
	return ch, func() {
		// Drain so a publish blocked on this channel can finish.
		go func() {
			for range ch {
			}
		}()
		go b.ps.Unsub(ch, topic)
	}
}

// Close stops publishing and closes every subscriber channel. Queued
// statuses that were not yet published are dropped.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.quit)
		<-b.stopped
		b.ps.Shutdown()
	})
}

// Log writes a line for every status that differs from the previous one,
// until ctx is done or ch is closed.
func Log(ctx context.Context, ch <-chan ble.Status) {
	var prev ble.Status
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			if !first && sameDisplay(prev, st) {
				continue
			}
			first = false
			prev = st
			slog.Info("status",
				"state", st.State.String(),
				"device", deviceID(st),
				"radio", st.Radio,
				"power", st.Power,
				"vest", st.VestLabel,
				"peltier", st.PeltierLabel,
				"vest_temp", st.VestTemp,
				"peltier_temp", st.PeltierTemp,
				"battery", st.Battery,
				"heart_rate", st.HeartRate,
				"cooling", st.Cooling)
		}
	}
}

func sameDisplay(a, b ble.Status) bool {
	return a.State == b.State &&
		deviceID(a) == deviceID(b) &&
		a.Radio == b.Radio &&
		a.Power == b.Power &&
		a.VestLabel == b.VestLabel &&
		a.PeltierLabel == b.PeltierLabel &&
		a.VestTemp == b.VestTemp &&
		a.PeltierTemp == b.PeltierTemp &&
		a.Battery == b.Battery &&
		a.HeartRate == b.HeartRate &&
		a.Cooling == b.Cooling
}

func deviceID(s ble.Status) string {
	if s.Device == nil {
		return ""
	}
	return s.Device.ID
}
