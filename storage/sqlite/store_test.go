package sqlite

import (
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStore_CreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if acc.ID == "" {
		t.Error("expected generated user id")
	}

	_, err = s.CreateUser(ctx, "alice", "otherhash")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestStore_UserByUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	acc, err := s.UserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("UserByUsername failed: %v", err)
	}
	if acc.ID != created.ID || acc.PasswordHash != "hash" {
		t.Errorf("unexpected account: %+v", acc)
	}

	_, err = s.UserByUsername(ctx, "nobody")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStore_Rooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	rec, err := s.CreateRoom(ctx, "standup", acc.ID)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if rec.RoomID == "" || rec.Name != "standup" || rec.CreatedBy != acc.ID {
		t.Errorf("unexpected room record: %+v", rec)
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(rooms) != 1 || rooms[0].RoomID != rec.RoomID {
		t.Errorf("unexpected room list: %+v", rooms)
	}
}

func TestStore_ListRoomsEmpty(t *testing.T) {
	s := newTestStore(t)

	rooms, err := s.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("expected no rooms, got %+v", rooms)
	}
}
