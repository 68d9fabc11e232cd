package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id      TEXT PRIMARY KEY,
	position     TEXT NOT NULL,
	turn         TEXT NOT NULL,
	player_white TEXT NOT NULL DEFAULT '',
	player_black TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL
);`

type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to connStr and creates the rooms table.
// The caller is responsible for calling Close.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, roomID string) (*Record, error) {
	q := `
	SELECT room_id, position, turn, player_white, player_black, updated_at
	FROM rooms WHERE room_id = $1;
	`

	var record Record
	err := s.pool.QueryRow(ctx, q, roomID).Scan(
		&record.RoomID,
		&record.Position,
		&record.Turn,
		&record.PlayerWhite,
		&record.PlayerBlack,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}

	return &record, nil
}

func (s *PostgresStore) Put(ctx context.Context, record *Record) error {
	if err := validate(record); err != nil {
		return err
	}

	q := `
	INSERT INTO rooms (room_id, position, turn, player_white, player_black, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (room_id) DO UPDATE SET position = $2, turn = $3, player_white = $4, player_black = $5, updated_at = $6;
	`
	_, err := s.pool.Exec(ctx, q,
		record.RoomID,
		record.Position,
		record.Turn,
		record.PlayerWhite,
		record.PlayerBlack,
		stamp(record),
	)
	if err != nil {
		return fmt.Errorf("put room %s: %w", record.RoomID, err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
