package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id      TEXT PRIMARY KEY,
	position     TEXT NOT NULL,
	turn         TEXT NOT NULL,
	player_white TEXT NOT NULL DEFAULT '',
	player_black TEXT NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL
);`

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database file at path and creates the rooms table.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, roomID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT room_id, position, turn, player_white, player_black, updated_at
		   FROM rooms
		  WHERE room_id = ?`,
		roomID,
	)

	var record Record
	var updatedAt int64
	err := row.Scan(
		&record.RoomID,
		&record.Position,
		&record.Turn,
		&record.PlayerWhite,
		&record.PlayerBlack,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}

	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &record, nil
}

func (s *SQLiteStore) Put(ctx context.Context, record *Record) error {
	if err := validate(record); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (room_id, position, turn, player_white, player_black, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET
		   position = excluded.position,
		   turn = excluded.turn,
		   player_white = excluded.player_white,
		   player_black = excluded.player_black,
		   updated_at = excluded.updated_at`,
		record.RoomID,
		record.Position,
		record.Turn,
		record.PlayerWhite,
		record.PlayerBlack,
		stamp(record).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put room %s: %w", record.RoomID, err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
