// Package hub fans server events out to the websocket connections attached
// to a room: whole room, room minus a sender, or a single connection.
package hub

import (
	"sync"

	"github.com/okats/boardroom/model"
	"github.com/rs/zerolog"
)

// DropCounter counts outbound events discarded on a full connection buffer.
type DropCounter interface {
	RecordDrop()
}

type Hub struct {
	logger  zerolog.Logger
	mx      *sync.RWMutex
	rooms   map[string]map[string]model.Wire // roomID -> connectionID -> wire
	dropped DropCounter
}

func NewHub(logger *zerolog.Logger, dropped DropCounter) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "hub").Logger(),
		mx:      &sync.RWMutex{},
		rooms:   make(map[string]map[string]model.Wire),
		dropped: dropped,
	}
}

// Attach binds the connection's wire to a room so it receives that room's
// fan-out from now on.
func (h *Hub) Attach(roomID, connID string, wire model.Wire) {
	h.mx.Lock()
	defer func() {
		h.mx.Unlock()
		h.logger.Debug().
			Str("roomID", roomID).
			Str("connID", connID).
			Msg("connection attached")
	}()

	conns, ok := h.rooms[roomID]
	if !ok {
		conns = make(map[string]model.Wire)
		h.rooms[roomID] = conns
	}
	conns[connID] = wire
}

// Detach removes the connection from the room's fan-out. The room's entry is
// dropped once no connections remain attached.
func (h *Hub) Detach(roomID, connID string) {
	h.mx.Lock()
	defer func() {
		h.mx.Unlock()
		h.logger.Debug().
			Str("roomID", roomID).
			Str("connID", connID).
			Msg("connection detached")
	}()

	conns, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast delivers the event to every connection attached to the room,
// sender included.
func (h *Hub) Broadcast(roomID string, ev model.Event) {
	h.fanout(roomID, "", ev)
}

// BroadcastExcept delivers the event to every connection attached to the room
// except the one given. Used for relays whose sender already holds the state
// locally.
func (h *Hub) BroadcastExcept(roomID, exceptConnID string, ev model.Event) {
	h.fanout(roomID, exceptConnID, ev)
}

// Unicast delivers the event to a single connection in the room. Returns
// false if the connection is not attached there.
func (h *Hub) Unicast(roomID, connID string, ev model.Event) bool {
	h.mx.RLock()
	wire, ok := h.rooms[roomID][connID]
	h.mx.RUnlock()

	if !ok {
		h.logger.Debug().
			Str("roomID", roomID).
			Str("connID", connID).
			Msg("cannot deliver, connection not attached")
		return false
	}
	h.send(roomID, connID, wire, ev)
	return true
}

func (h *Hub) fanout(roomID, exceptConnID string, ev model.Event) {
	h.mx.RLock()
	conns := h.rooms[roomID]
	h.mx.RUnlock()

	if len(conns) == 0 {
		h.logger.Debug().
			Str("roomID", roomID).
			Str("type", ev.Type).
			Msg("fan-out did not reach anyone")
		return
	}
	for connID, wire := range conns {
		if connID != exceptConnID {
			h.send(roomID, connID, wire, ev)
		}
	}
}

// send enqueues without blocking. A connection that cannot drain its buffer
// loses events rather than stalling the gateway's event loop.
func (h *Hub) send(roomID, connID string, wire model.Wire, ev model.Event) {
	select {
	case wire.TX <- ev:
		h.logger.Trace().
			Str("roomID", roomID).
			Str("connID", connID).
			Str("type", ev.Type).
			Msg("event delivered")
	default:
		if h.dropped != nil {
			h.dropped.RecordDrop()
		}
		h.logger.Warn().
			Str("roomID", roomID).
			Str("connID", connID).
			Str("type", ev.Type).
			Msg("connection buffer full, event dropped")
	}
}
