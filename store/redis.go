package store

import (
	"context"
	"fmt"
	"time"

	"github.com/judgegodwins/chess-relay/util"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each room in a hash at room:<id>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. A positive ttl expires untouched rooms.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, roomID string) (*Record, error) {
	result, err := s.client.HGetAll(ctx, util.GetRoomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", roomID, err)
	}

	if len(result) == 0 || result[util.RoomPositionKey] == "" {
		return nil, ErrNotFound
	}

	record := &Record{
		RoomID:      roomID,
		Position:    result[util.RoomPositionKey],
		Turn:        result[util.RoomTurnKey],
		PlayerWhite: result[util.RoomPlayerWhiteKey],
		PlayerBlack: result[util.RoomPlayerBlackKey],
	}

	if ts := result[util.RoomUpdatedAtKey]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			record.UpdatedAt = t
		}
	}

	return record, nil
}

func (s *RedisStore) Put(ctx context.Context, record *Record) error {
	if err := validate(record); err != nil {
		return err
	}

	key := util.GetRoomKey(record.RoomID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			util.RoomIDKey, record.RoomID,
			util.RoomPositionKey, record.Position,
			util.RoomTurnKey, record.Turn,
			util.RoomPlayerWhiteKey, record.PlayerWhite,
			util.RoomPlayerBlackKey, record.PlayerBlack,
			util.RoomUpdatedAtKey, stamp(record).Format(time.RFC3339Nano),
		)

		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", record.RoomID, err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
