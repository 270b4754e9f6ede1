package statusbus

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/heatsync/heatsync/internal/ble"
)

func receive(t *testing.T, ch <-chan ble.Status) ble.Status {
	t.Helper()
	select {
	case st, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return st
	case <-time.After(time.Second):
		t.Fatal("no status received")
	}
	return ble.Status{}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := New(4)
	defer bus.Close()

	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Present(ble.Status{State: ble.StateScanning, Radio: "ON"})

	for _, ch := range []<-chan ble.Status{a, b} {
		st := receive(t, ch)
		if st.State != ble.StateScanning || st.Radio != "ON" {
			t.Errorf("status = %+v, want scanning/ON", st)
		}
	}
}

func TestBusPreservesOrder(t *testing.T) {
	bus := New(8)
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	states := []ble.State{ble.StateScanning, ble.StateConnecting, ble.StateReady}
	for _, st := range states {
		bus.Present(ble.Status{State: st})
	}
	for _, want := range states {
		if got := receive(t, ch).State; got != want {
			t.Errorf("State = %v, want %v", got, want)
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := New(4)
	defer bus.Close()
	ch, cancel := bus.Subscribe()

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received a status after unsubscribe, want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestBusAsSessionPresenter(t *testing.T) {
	bus := New(4)
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	var p ble.Presenter = bus
	p.Present(ble.Status{VestLabel: "72°F"})

	if got := receive(t, ch).VestLabel; got != "72°F" {
		t.Errorf("VestLabel = %q, want %q", got, "72°F")
	}
}

func TestLogSkipsUnchangedStatuses(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ch := make(chan ble.Status, 4)
	ch <- ble.Status{State: ble.StateScanning, Radio: "ON"}
	ch <- ble.Status{State: ble.StateScanning, Radio: "ON"}
	ch <- ble.Status{State: ble.StateReady, Radio: "ON", Device: &ble.Device{ID: "AA"}}
	close(ch)

	Log(context.Background(), ch)

	out := buf.String()
	if n := strings.Count(out, "msg=status"); n != 2 {
		t.Errorf("logged %d status lines, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "state=ready") || !strings.Contains(out, "device=AA") {
		t.Errorf("log output missing ready line:\n%s", out)
	}
}

func TestBusKeepsEveryStatusForSlowSubscriber(t *testing.T) {
	bus := New(2)
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	// More statuses than the subscriber buffer holds, with nobody reading.
	const n = 50
	for i := 0; i < n; i++ {
		bus.Present(ble.Status{VestSetpoint: uint8(i)})
	}
	bus.Present(ble.Status{State: ble.StateDisconnected})

	for i := 0; i < n; i++ {
		if got := receive(t, ch).VestSetpoint; got != uint8(i) {
			t.Fatalf("status %d: VestSetpoint = %d, want %d", i, got, i)
		}
	}
	if got := receive(t, ch).State; got != ble.StateDisconnected {
		t.Errorf("last State = %v, want %v", got, ble.StateDisconnected)
	}
}

func TestBusCloseWithQueuedStatuses(t *testing.T) {
	bus := New(1)
	ch, cancel := bus.Subscribe()
	for i := 0; i < 10; i++ {
		bus.Present(ble.Status{VestSetpoint: uint8(i)})
	}

	cancel()
	done := make(chan struct{})
	go func() {
		bus.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an unsubscribed channel")
	}
	for range ch {
	}
}
