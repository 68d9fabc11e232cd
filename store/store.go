// Package store persists one position record per room.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("room not found")

// Record is the persisted state of a room.
type Record struct {
	RoomID      string
	Position    string
	Turn        string
	PlayerWhite string
	PlayerBlack string
	UpdatedAt   time.Time
}

// Store reads and writes room records. Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, roomID string) (*Record, error)
	Put(ctx context.Context, record *Record) error
	Close() error
}

func stamp(record *Record) time.Time {
	if record.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return record.UpdatedAt.UTC()
}

func validate(record *Record) error {
	if record == nil {
		return errors.New("record is required")
	}
	if record.RoomID == "" {
		return errors.New("room id is required")
	}
	if record.Position == "" {
		return errors.New("position is required")
	}
	return nil
}
