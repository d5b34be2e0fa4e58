package model

import (
	"encoding/json"
	"time"
)

// UserIdentity is resolved from a bearer credential once per connection
// and stays fixed for the connection's lifetime.
type UserIdentity struct {
	ID   string `json:"id"`
	Name string `json:"username"`
}

// Participant is one user's presence record inside a room. Records are keyed
// by user id: a reconnecting user keeps a single record whose connection id
// is updated in place.
type Participant struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
}

// Element is one opaque unit of whiteboard content. The server stores and
// relays it verbatim; only clients interpret its fields.
type Element = json.RawMessage

// Client-originated event types.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventDrawElement = "drawElement"
	EventChatMessage = "chatMessage"
	EventClearCanvas = "clearCanvas"
)

// Server-originated event types. drawElement, chatMessage and clearCanvas
// also flow server to client under their inbound names.
const (
	EventUpdateUsers = "updateUsers"
	EventLoadCanvas  = "loadCanvas"
	EventError       = "error"
)

// Event is the envelope for every message crossing a websocket connection,
// in either direction.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent wraps payload into an envelope of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: b}, nil
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type ChatInbound struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type ChatOutbound struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Account is a registered user in the directory database.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RoomRecord is a room directory entry. It says nothing about live room
// state, which exists only while participants are connected.
type RoomRecord struct {
	RoomID    string    `json:"roomId"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

const defaultTXBuffer = 256

// Wire is the pair of channels binding one websocket connection to the
// session gateway. RX carries inbound client events, TX carries events to be
// written out. TX is buffered so a slow consumer never stalls the gateway.
type Wire struct {
	RX chan Event
	TX chan Event
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Event),
		TX: make(chan Event, defaultTXBuffer),
	}
}
