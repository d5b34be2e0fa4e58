package hub

import (
	"testing"

	"github.com/okats/boardroom/model"
	"github.com/rs/zerolog"
)

type dropCount struct {
	n int
}

func (d *dropCount) RecordDrop() { d.n++ }

func newTestHub(dropped DropCounter) *Hub {
	logger := zerolog.Nop()
	return NewHub(&logger, dropped)
}

func drain(wire model.Wire) []model.Event {
	out := make([]model.Event, 0)
	for {
		select {
		case ev := <-wire.TX:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_Broadcast(t *testing.T) {
	h := newTestHub(nil)
	w1, w2 := model.NewWire(), model.NewWire()
	h.Attach("r1", "c1", w1)
	h.Attach("r1", "c2", w2)

	h.Broadcast("r1", model.Event{Type: "chatMessage"})

	for _, w := range []model.Wire{w1, w2} {
		if got := drain(w); len(got) != 1 || got[0].Type != "chatMessage" {
			t.Errorf("unexpected delivery: %+v", got)
		}
	}
}

func TestHub_BroadcastExcept(t *testing.T) {
	h := newTestHub(nil)
	w1, w2 := model.NewWire(), model.NewWire()
	h.Attach("r1", "c1", w1)
	h.Attach("r1", "c2", w2)

	h.BroadcastExcept("r1", "c1", model.Event{Type: "drawElement"})

	if got := drain(w1); len(got) != 0 {
		t.Errorf("sender received its own relay: %+v", got)
	}
	if got := drain(w2); len(got) != 1 {
		t.Errorf("other connection missed the relay: %+v", got)
	}
}

func TestHub_RoomIsolation(t *testing.T) {
	h := newTestHub(nil)
	w1, w2 := model.NewWire(), model.NewWire()
	h.Attach("r1", "c1", w1)
	h.Attach("r2", "c2", w2)

	h.Broadcast("r1", model.Event{Type: "clearCanvas"})

	if got := drain(w2); len(got) != 0 {
		t.Errorf("event leaked into another room: %+v", got)
	}
}

func TestHub_Unicast(t *testing.T) {
	h := newTestHub(nil)
	w1, w2 := model.NewWire(), model.NewWire()
	h.Attach("r1", "c1", w1)
	h.Attach("r1", "c2", w2)

	if !h.Unicast("r1", "c1", model.Event{Type: "loadCanvas"}) {
		t.Fatal("unicast to attached connection failed")
	}
	if got := drain(w1); len(got) != 1 || got[0].Type != "loadCanvas" {
		t.Errorf("unexpected unicast delivery: %+v", got)
	}
	if got := drain(w2); len(got) != 0 {
		t.Errorf("unicast reached a bystander: %+v", got)
	}

	if h.Unicast("r1", "ghost", model.Event{Type: "loadCanvas"}) {
		t.Error("unicast to unknown connection reported success")
	}
}

func TestHub_DetachStopsDelivery(t *testing.T) {
	h := newTestHub(nil)
	w1 := model.NewWire()
	h.Attach("r1", "c1", w1)
	h.Detach("r1", "c1")

	h.Broadcast("r1", model.Event{Type: "chatMessage"})

	if got := drain(w1); len(got) != 0 {
		t.Errorf("detached connection still received events: %+v", got)
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	dropped := &dropCount{}
	h := newTestHub(dropped)

	wire := model.Wire{TX: make(chan model.Event, 1)}
	h.Attach("r1", "c1", wire)

	h.Broadcast("r1", model.Event{Type: "chatMessage"})
	h.Broadcast("r1", model.Event{Type: "chatMessage"}) // buffer full, must not block

	if dropped.n != 1 {
		t.Errorf("expected 1 dropped event, got %d", dropped.n)
	}
}
