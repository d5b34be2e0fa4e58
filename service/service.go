// Package service implements the session gateway: the single event-processing
// path through which every room mutation flows. All joins, leaves, appends and
// clears for all rooms are applied by one goroutine in arrival order, and the
// broadcasts an event produces are emitted before the next event is taken.
// Concurrency exists only at the transport layer.
package service

import (
	"context"
	"encoding/json"

	"github.com/okats/boardroom/metrics"
	"github.com/okats/boardroom/model"
	"github.com/rs/zerolog"
)

const defaultEventQueue = 512

type (
	// RoomStore is the authoritative holder of presence and element state.
	// It assumes pre-validated input; all checks happen in the gateway.
	RoomStore interface {
		Join(roomID string, p model.Participant) ([]model.Participant, bool)
		Leave(roomID, userID string) ([]model.Participant, bool)
		LeaveByConnection(connID string) (string, []model.Participant, bool)
		RemoveIfEmpty(roomID string)
		AppendElement(roomID string, el model.Element)
		ClearElements(roomID string)
		SnapshotElements(roomID string) []model.Element
		RoomCount() int
	}

	// Fanout delivers server events to the connections attached to a room.
	Fanout interface {
		Attach(roomID, connID string, wire model.Wire)
		Detach(roomID, connID string)
		Broadcast(roomID string, ev model.Event)
		BroadcastExcept(roomID, exceptConnID string, ev model.Event)
		Unicast(roomID, connID string, ev model.Event) bool
	}

	Gateway struct {
		store    RoomStore
		fanout   Fanout
		mtr      *metrics.Collector
		logger   zerolog.Logger
		requests chan request

		// touched only by the Run goroutine
		sessions map[string]*session
	}

	Config struct {
		Store   RoomStore
		Fanout  Fanout
		Metrics *metrics.Collector
		Logger  *zerolog.Logger
	}

	// session is one authenticated connection's state. roomID is empty while
	// the connection is roomless.
	session struct {
		identity model.UserIdentity
		wire     model.Wire
		roomID   string
	}

	reqKind int

	request struct {
		kind     reqKind
		connID   string
		identity model.UserIdentity
		wire     model.Wire
		event    model.Event
	}
)

const (
	reqConnect reqKind = iota
	reqDisconnect
	reqEvent
)

func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		store:    cfg.Store,
		fanout:   cfg.Fanout,
		mtr:      cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "gateway").Logger(),
		requests: make(chan request, defaultEventQueue),
		sessions: make(map[string]*session),
	}
}

// Connect admits an authenticated connection into the event-handling path and
// starts pumping its inbound events. The credential must already be resolved;
// the gateway never sees unauthenticated traffic.
func (g *Gateway) Connect(ctx context.Context, connID string, identity model.UserIdentity, wire model.Wire) {
	g.enqueue(ctx, request{kind: reqConnect, connID: connID, identity: identity, wire: wire})
	go g.pump(ctx, connID, wire.RX)
}

// Disconnect removes the connection and, transitively, its room membership.
func (g *Gateway) Disconnect(connID string) {
	g.enqueue(context.Background(), request{kind: reqDisconnect, connID: connID})
}

func (g *Gateway) enqueue(ctx context.Context, req request) {
	select {
	case g.requests <- req:
	case <-ctx.Done():
	}
}

// pump forwards one connection's inbound events into the shared request
// queue, preserving their order.
func (g *Gateway) pump(ctx context.Context, connID string, rx <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-rx:
			g.enqueue(ctx, request{kind: reqEvent, connID: connID, event: ev})
		}
	}
}

// Run drains the request queue until ctx is canceled. It is the only
// goroutine that touches sessions or mutates room state.
func (g *Gateway) Run(ctx context.Context) {
	g.logger.Info().Msg("gateway started")
	for {
		select {
		case <-ctx.Done():
			g.logger.Debug().Msg("gateway stopped")
			return
		case req := <-g.requests:
			switch req.kind {
			case reqConnect:
				g.handleConnect(req)
			case reqDisconnect:
				g.handleDisconnect(req.connID)
			case reqEvent:
				g.handleEvent(req.connID, req.event)
			}
		}
	}
}

func (g *Gateway) handleConnect(req request) {
	g.sessions[req.connID] = &session{identity: req.identity, wire: req.wire}
	g.mtr.SetConnections(len(g.sessions))
	g.logger.Debug().
		Str("connID", req.connID).
		Str("userID", req.identity.ID).
		Msg("connection admitted")
}

func (g *Gateway) handleDisconnect(connID string) {
	sess, ok := g.sessions[connID]
	if !ok {
		return
	}
	delete(g.sessions, connID)

	// The room is not taken from the session here: membership is matched by
	// connection id, so a stale disconnect arriving after the same user
	// rejoined on a fresh connection removes nothing.
	if roomID, snapshot, found := g.store.LeaveByConnection(connID); found {
		g.store.RemoveIfEmpty(roomID)
		g.fanout.Detach(roomID, connID)
		ev, _ := model.NewEvent(model.EventUpdateUsers, snapshot)
		g.fanout.Broadcast(roomID, ev)
	} else if sess.roomID != "" {
		// Presence was superseded by a reconnect on a fresh connection; the
		// stale wire still has to stop receiving the room's fan-out.
		g.fanout.Detach(sess.roomID, connID)
	}
	g.mtr.SetConnections(len(g.sessions))
	g.mtr.SetRooms(g.store.RoomCount())
	g.logger.Debug().
		Str("connID", connID).
		Str("userID", sess.identity.ID).
		Msg("connection removed")
}

func (g *Gateway) handleEvent(connID string, ev model.Event) {
	sess, ok := g.sessions[connID]
	if !ok {
		g.logger.Debug().Str("connID", connID).Msg("event from unknown connection dropped")
		return
	}
	g.mtr.RecordEvent(ev.Type)

	switch ev.Type {
	case model.EventJoinRoom:
		g.handleJoin(connID, sess, ev.Payload)
	case model.EventLeaveRoom:
		g.handleLeave(connID, sess, ev.Payload)
	case model.EventDrawElement:
		g.handleDraw(connID, sess, ev.Payload)
	case model.EventChatMessage:
		g.handleChat(sess, ev.Payload)
	case model.EventClearCanvas:
		g.handleClear(sess, ev.Payload)
	default:
		g.refuse(sess, "unknown event type: "+ev.Type)
	}
}

func (g *Gateway) handleJoin(connID string, sess *session, payload json.RawMessage) {
	var p model.JoinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		g.refuse(sess, "joinRoom requires roomId")
		return
	}

	// Joining while in another room switches rooms: the connection is
	// detached with full leave semantics first, so only one membership is
	// ever live per connection.
	if sess.roomID != "" && sess.roomID != p.RoomID {
		g.detachFromRoom(connID, sess)
	}

	participant := model.Participant{
		UserID:       sess.identity.ID,
		DisplayName:  sess.identity.Name,
		ConnectionID: connID,
	}
	snapshot, rejoined := g.store.Join(p.RoomID, participant)
	sess.roomID = p.RoomID
	g.fanout.Attach(p.RoomID, connID, sess.wire)

	users, _ := model.NewEvent(model.EventUpdateUsers, snapshot)
	g.fanout.Broadcast(p.RoomID, users)

	// Canvas state goes to the joiner only; nobody else re-renders on a join.
	canvas, _ := model.NewEvent(model.EventLoadCanvas, g.store.SnapshotElements(p.RoomID))
	g.fanout.Unicast(p.RoomID, connID, canvas)

	g.mtr.SetRooms(g.store.RoomCount())
	g.logger.Debug().
		Str("connID", connID).
		Str("userID", sess.identity.ID).
		Str("roomID", p.RoomID).
		Bool("reconnect", rejoined).
		Msg("user joined room")
}

func (g *Gateway) handleLeave(connID string, sess *session, payload json.RawMessage) {
	var p model.LeaveRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		g.refuse(sess, "leaveRoom requires roomId")
		return
	}
	if sess.roomID == "" || sess.roomID != p.RoomID {
		g.refuse(sess, "not in room "+p.RoomID)
		return
	}
	g.detachFromRoom(connID, sess)
}

// detachFromRoom applies leave semantics for the session's current room:
// presence removal, empty-room teardown, membership broadcast to whoever
// remains.
func (g *Gateway) detachFromRoom(connID string, sess *session) {
	roomID := sess.roomID
	snapshot, _ := g.store.Leave(roomID, sess.identity.ID)
	g.store.RemoveIfEmpty(roomID)
	g.fanout.Detach(roomID, connID)
	sess.roomID = ""

	ev, _ := model.NewEvent(model.EventUpdateUsers, snapshot)
	g.fanout.Broadcast(roomID, ev)
	g.mtr.SetRooms(g.store.RoomCount())
	g.logger.Debug().
		Str("connID", connID).
		Str("userID", sess.identity.ID).
		Str("roomID", roomID).
		Msg("user left room")
}

func (g *Gateway) handleDraw(connID string, sess *session, payload json.RawMessage) {
	var probe struct {
		RoomID    string `json:"roomId"`
		ElementID string `json:"elementId"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.RoomID == "" || probe.ElementID == "" {
		g.refuse(sess, "drawElement requires roomId and elementId")
		return
	}
	if sess.roomID == "" || sess.roomID != probe.RoomID {
		g.refuse(sess, "not in room "+probe.RoomID)
		return
	}

	// Stored and relayed verbatim; the sender already has it locally, so the
	// relay excludes them.
	g.store.AppendElement(sess.roomID, model.Element(payload))
	g.fanout.BroadcastExcept(sess.roomID, connID, model.Event{
		Type:    model.EventDrawElement,
		Payload: payload,
	})
}

func (g *Gateway) handleChat(sess *session, payload json.RawMessage) {
	var p model.ChatInbound
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" || p.Message == "" {
		g.refuse(sess, "chatMessage requires roomId and message")
		return
	}
	if sess.roomID == "" || sess.roomID != p.RoomID {
		g.refuse(sess, "not in room "+p.RoomID)
		return
	}

	// No server-side chat history: the broadcast itself is the log of record.
	// Sender included, the room converges on one message stream.
	ev, _ := model.NewEvent(model.EventChatMessage, model.ChatOutbound{
		User: sess.identity.Name,
		Text: p.Message,
	})
	g.fanout.Broadcast(sess.roomID, ev)
}

func (g *Gateway) handleClear(sess *session, payload json.RawMessage) {
	var p struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		g.refuse(sess, "clearCanvas requires roomId")
		return
	}
	if sess.roomID == "" || sess.roomID != p.RoomID {
		g.refuse(sess, "not in room "+p.RoomID)
		return
	}

	// Sender included: even a drifted optimistic local canvas converges on
	// the cleared state.
	g.store.ClearElements(sess.roomID)
	g.fanout.Broadcast(sess.roomID, model.Event{Type: model.EventClearCanvas})
}

// refuse answers a malformed or out-of-context event with a diagnostic to the
// sender only. The event is dropped, the connection stays open.
func (g *Gateway) refuse(sess *session, msg string) {
	ev, _ := model.NewEvent(model.EventError, model.ErrorPayload{Message: msg})
	select {
	case sess.wire.TX <- ev:
	default:
	}
	g.logger.Debug().
		Str("userID", sess.identity.ID).
		Str("reason", msg).
		Msg("event refused")
}
