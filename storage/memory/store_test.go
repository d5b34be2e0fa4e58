package memory

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/okats/boardroom/model"
)

func participant(userID, connID string) model.Participant {
	return model.Participant{
		UserID:       userID,
		DisplayName:  userID,
		ConnectionID: connID,
	}
}

func TestMemStore_JoinCreatesRoom(t *testing.T) {
	ms := NewMemStore()

	snapshot, rejoined := ms.Join("r1", participant("u1", "c1"))
	if rejoined {
		t.Error("first join reported as reconnect")
	}
	if len(snapshot) != 1 || snapshot[0].UserID != "u1" {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}
	if ms.RoomCount() != 1 {
		t.Errorf("expected 1 room, got %d", ms.RoomCount())
	}
}

func TestMemStore_RejoinKeepsOneRecord(t *testing.T) {
	ms := NewMemStore()

	ms.Join("r1", participant("u1", "c1"))
	for i := 0; i < 5; i++ {
		connID := fmt.Sprintf("c%d", i+2)
		snapshot, rejoined := ms.Join("r1", participant("u1", connID))
		if !rejoined {
			t.Error("rejoin not reported as reconnect")
		}
		if len(snapshot) != 1 {
			t.Fatalf("expected 1 participant after rejoin, got %d", len(snapshot))
		}
		if snapshot[0].ConnectionID != connID {
			t.Errorf("connection id not updated, got %s want %s", snapshot[0].ConnectionID, connID)
		}
	}
}

func TestMemStore_SnapshotSortedByUserID(t *testing.T) {
	ms := NewMemStore()

	ms.Join("r1", participant("u3", "c3"))
	ms.Join("r1", participant("u1", "c1"))
	snapshot, _ := ms.Join("r1", participant("u2", "c2"))

	for i, want := range []string{"u1", "u2", "u3"} {
		if snapshot[i].UserID != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, snapshot[i].UserID, want)
		}
	}
}

func TestMemStore_LeaveAbsentUser(t *testing.T) {
	ms := NewMemStore()
	ms.Join("r1", participant("u1", "c1"))

	snapshot, present := ms.Leave("r1", "ghost")
	if present {
		t.Error("absent user reported present")
	}
	if len(snapshot) != 1 {
		t.Errorf("expected untouched snapshot, got %+v", snapshot)
	}
}

func TestMemStore_EmptyRoomIsDropped(t *testing.T) {
	ms := NewMemStore()

	ms.Join("r1", participant("u1", "c1"))
	ms.AppendElement("r1", json.RawMessage(`{"elementId":"e1"}`))

	snapshot, present := ms.Leave("r1", "u1")
	if !present || len(snapshot) != 0 {
		t.Fatalf("unexpected leave result: present=%v snapshot=%+v", present, snapshot)
	}
	ms.RemoveIfEmpty("r1")

	if ms.RoomCount() != 0 {
		t.Errorf("expected empty registry, got %d rooms", ms.RoomCount())
	}
	// History must not survive a full evacuation.
	if els := ms.SnapshotElements("r1"); len(els) != 0 {
		t.Errorf("expected no elements after room teardown, got %d", len(els))
	}
}

func TestMemStore_RemoveIfEmptyKeepsOccupiedRoom(t *testing.T) {
	ms := NewMemStore()
	ms.Join("r1", participant("u1", "c1"))

	ms.RemoveIfEmpty("r1")

	if ms.RoomCount() != 1 {
		t.Error("occupied room was removed")
	}
}

func TestMemStore_LeaveByConnection(t *testing.T) {
	ms := NewMemStore()
	ms.Join("r1", participant("u1", "c1"))
	ms.Join("r1", participant("u2", "c2"))
	ms.Join("r2", participant("u3", "c3"))

	roomID, snapshot, found := ms.LeaveByConnection("c2")
	if !found {
		t.Fatal("connection not found")
	}
	if roomID != "r1" {
		t.Errorf("expected room r1, got %s", roomID)
	}
	if len(snapshot) != 1 || snapshot[0].UserID != "u1" {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}

	if _, _, found = ms.LeaveByConnection("c2"); found {
		t.Error("stale connection found twice")
	}
}

func TestMemStore_LeaveByConnectionIgnoresStaleConn(t *testing.T) {
	ms := NewMemStore()
	ms.Join("r1", participant("u1", "c1"))
	// Same user reconnects before the old transport notices.
	ms.Join("r1", participant("u1", "c2"))

	if _, _, found := ms.LeaveByConnection("c1"); found {
		t.Error("stale connection removed the fresh membership")
	}
	snapshot, _ := ms.Join("r1", participant("u2", "c3"))
	if len(snapshot) != 2 {
		t.Errorf("expected 2 participants, got %+v", snapshot)
	}
}

func TestMemStore_ElementOrderAndClear(t *testing.T) {
	ms := NewMemStore()
	ms.Join("r1", participant("u1", "c1"))

	e1 := json.RawMessage(`{"elementId":"e1"}`)
	e2 := json.RawMessage(`{"elementId":"e2"}`)
	ms.AppendElement("r1", e1)
	ms.AppendElement("r1", e2)

	els := ms.SnapshotElements("r1")
	if len(els) != 2 || string(els[0]) != string(e1) || string(els[1]) != string(e2) {
		t.Fatalf("unexpected element snapshot: %v", els)
	}

	ms.ClearElements("r1")
	if els = ms.SnapshotElements("r1"); len(els) != 0 {
		t.Errorf("expected empty log after clear, got %d elements", len(els))
	}
}

func TestMemStore_SnapshotIsStable(t *testing.T) {
	ms := NewMemStore()
	ms.Join("r1", participant("u1", "c1"))
	ms.AppendElement("r1", json.RawMessage(`{"elementId":"e1"}`))

	els := ms.SnapshotElements("r1")
	ms.AppendElement("r1", json.RawMessage(`{"elementId":"e2"}`))

	if len(els) != 1 {
		t.Errorf("snapshot observed a later mutation: %v", els)
	}
}

func TestMemStore_SnapshotAbsentRoom(t *testing.T) {
	ms := NewMemStore()

	if els := ms.SnapshotElements("nope"); els == nil || len(els) != 0 {
		t.Errorf("expected empty non-nil snapshot, got %v", els)
	}
}
