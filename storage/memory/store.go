package memory

import (
	"slices"
	"strings"
	"sync"

	"github.com/okats/boardroom/model"
)

// MemStore is the authoritative in-memory holder of live room state:
// presence records and the per-room element log. Rooms come into existence on
// first join and are dropped the moment the last participant leaves; an empty
// room never outlives the removal that emptied it, which is the only garbage
// collection there is.
type MemStore struct {
	mx    *sync.Mutex
	rooms map[string]*room
}

type room struct {
	participants map[string]model.Participant // keyed by user id
	elements     []model.Element
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:    &sync.Mutex{},
		rooms: make(map[string]*room),
	}
}

// Join adds the participant to the room, creating the room if needed. If the
// user already has a record there, only its connection id changes (reconnect).
// Returns the resulting membership snapshot and whether this was a reconnect.
func (ms *MemStore) Join(roomID string, p model.Participant) ([]model.Participant, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	rm, ok := ms.rooms[roomID]
	if !ok {
		rm = &room{participants: make(map[string]model.Participant)}
		ms.rooms[roomID] = rm
	}
	_, rejoined := rm.participants[p.UserID]
	rm.participants[p.UserID] = p
	return rm.snapshotParticipants(), rejoined
}

// Leave removes the participant keyed by userID. No-op if absent; the current
// snapshot is returned either way.
func (ms *MemStore) Leave(roomID, userID string) ([]model.Participant, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	rm, ok := ms.rooms[roomID]
	if !ok {
		return nil, false
	}
	_, present := rm.participants[userID]
	delete(rm.participants, userID)
	return rm.snapshotParticipants(), present
}

// LeaveByConnection removes the participant holding connID, wherever it is.
// Used on abrupt disconnect where the room is not separately known. At most
// one room is affected: a connection is never a member of two rooms.
func (ms *MemStore) LeaveByConnection(connID string) (string, []model.Participant, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	for roomID, rm := range ms.rooms {
		for userID, p := range rm.participants {
			if p.ConnectionID == connID {
				delete(rm.participants, userID)
				return roomID, rm.snapshotParticipants(), true
			}
		}
	}
	return "", nil, false
}

// RemoveIfEmpty drops the room's entire state, element log included, iff no
// participants remain. No-op otherwise.
func (ms *MemStore) RemoveIfEmpty(roomID string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if rm, ok := ms.rooms[roomID]; ok && len(rm.participants) == 0 {
		delete(ms.rooms, roomID)
	}
}

// AppendElement stores the element at the end of the room's log, verbatim.
func (ms *MemStore) AppendElement(roomID string, el model.Element) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if rm, ok := ms.rooms[roomID]; ok {
		rm.elements = append(rm.elements, el)
	}
}

// ClearElements empties the room's element log.
func (ms *MemStore) ClearElements(roomID string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if rm, ok := ms.rooms[roomID]; ok {
		rm.elements = nil
	}
}

// SnapshotElements returns a point-in-time copy of the room's element log in
// arrival order. Empty if the room is absent or holds no elements.
func (ms *MemStore) SnapshotElements(roomID string) []model.Element {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	rm, ok := ms.rooms[roomID]
	if !ok || len(rm.elements) == 0 {
		return []model.Element{}
	}
	return slices.Clone(rm.elements)
}

// RoomCount returns the number of live rooms.
func (ms *MemStore) RoomCount() int {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	return len(ms.rooms)
}

// snapshotParticipants copies the membership sorted by user id, so every
// broadcast of the same membership is byte-identical. Caller holds the lock.
func (rm *room) snapshotParticipants() []model.Participant {
	out := make([]model.Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Participant) int {
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}
