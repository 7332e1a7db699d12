package events_test

import (
	"testing"

	"github.com/pkgforge/soar/internal/events"
)

func TestOperationIDMonotonic(t *testing.T) {
	a := events.NextOperationID()
	b := events.NextOperationID()
	if b <= a {
		t.Errorf("operation ids not monotonic: %d then %d", a, b)
	}
}

func TestCollector(t *testing.T) {
	c := events.NewCollector()
	bus := events.NewBus(c)
	bus.Emit(events.Event{Kind: events.DownloadStarting, PkgName: "curl", Total: 42})
	bus.Emit(events.Event{Kind: events.DownloadComplete, PkgName: "curl", Total: 42})
	got := c.Events()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Kind != events.DownloadStarting || got[1].Kind != events.DownloadComplete {
		t.Errorf("unexpected event kinds: %v, %v", got[0].Kind, got[1].Kind)
	}
}

func TestNilBusDiscards(t *testing.T) {
	var bus *events.Bus
	bus.Emit(events.Event{Kind: events.Log, Message: "dropped"}) // must not panic
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	s := events.NewChannelSink(1)
	s.Emit(events.Event{Kind: events.Log, Message: "first"})
	s.Emit(events.Event{Kind: events.Log, Message: "second"}) // dropped, not blocked
	select {
	case ev := <-s.C:
		if ev.Message != "first" {
			t.Errorf("got %q, want first", ev.Message)
		}
	default:
		t.Fatal("channel empty")
	}
	select {
	case ev := <-s.C:
		t.Fatalf("unexpected second event %q", ev.Message)
	default:
	}
}
