// Package sqlite persists accounts and the room directory. Live room state
// never touches disk; only who exists and which rooms were created do.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/okats/boardroom/model"
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrUserNotFound  = errors.New("user not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
    room_id    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_by TEXT NOT NULL REFERENCES accounts(id),
    created_at TIMESTAMP NOT NULL
);`

type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at path and bootstraps the
// schema. Use ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser registers an account with an already-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (model.Account, error) {
	acc := model.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.PasswordHash, acc.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return model.Account{}, ErrUsernameTaken
		}
		return model.Account{}, fmt.Errorf("cannot create user: %w", err)
	}
	return acc, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (model.Account, error) {
	var acc model.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM accounts WHERE username = ?`,
		username).Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrUserNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("cannot fetch user: %w", err)
	}
	return acc, nil
}

// CreateRoom records a directory entry with a freshly minted room id.
func (s *Store) CreateRoom(ctx context.Context, name, createdBy string) (model.RoomRecord, error) {
	rec := model.RoomRecord{
		RoomID:    uuid.NewString(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (room_id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		rec.RoomID, rec.Name, rec.CreatedBy, rec.CreatedAt)
	if err != nil {
		return model.RoomRecord{}, fmt.Errorf("cannot create room: %w", err)
	}
	return rec, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]model.RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, name, created_by, created_at FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("cannot list rooms: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]model.RoomRecord, 0)
	for rows.Next() {
		var rec model.RoomRecord
		if err = rows.Scan(&rec.RoomID, &rec.Name, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("cannot scan room: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
