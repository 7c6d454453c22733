package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys expire after a day so crashed processes cannot leak rooms.
const redisTTL = 24 * time.Hour

// RedisStore shares membership across signaling processes. Arrival
// order is a Redis list per room; the reverse mapping is a string key
// per identity so the one-room invariant can be checked atomically.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ctx: context.Background()}
}

func memberKey(roomID string) string  { return "room:" + roomID + ":members" }
func identKey(identity string) string { return "participant:" + identity + ":room" }

func (s *RedisStore) Append(roomID, identity string) error {
	// SetNX on the reverse mapping is the admission guard.
	ok, err := s.client.SetNX(s.ctx, identKey(identity), roomID, redisTTL).Result()
	if err != nil {
		return fmt.Errorf("registry: redis setnx: %w", err)
	}
	if !ok {
		return ErrAlreadyMember
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(s.ctx, memberKey(roomID), identity)
	pipe.Expire(s.ctx, memberKey(roomID), redisTTL)
	if _, err := pipe.Exec(s.ctx); err != nil {
		s.client.Del(s.ctx, identKey(identity))
		return fmt.Errorf("registry: redis rpush: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(identity string) (string, bool, error) {
	roomID, err := s.client.GetDel(s.ctx, identKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, ErrNotMember
	}
	if err != nil {
		return "", false, fmt.Errorf("registry: redis getdel: %w", err)
	}

	if err := s.client.LRem(s.ctx, memberKey(roomID), 1, identity).Err(); err != nil {
		return "", false, fmt.Errorf("registry: redis lrem: %w", err)
	}
	remaining, err := s.client.LLen(s.ctx, memberKey(roomID)).Result()
	if err != nil {
		return "", false, fmt.Errorf("registry: redis llen: %w", err)
	}
	if remaining == 0 {
		s.client.Del(s.ctx, memberKey(roomID))
		return roomID, true, nil
	}
	return roomID, false, nil
}

func (s *RedisStore) Members(roomID string) ([]string, error) {
	members, err := s.client.LRange(s.ctx, memberKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: redis lrange: %w", err)
	}
	return members, nil
}

func (s *RedisStore) Room(identity string) (string, error) {
	roomID, err := s.client.Get(s.ctx, identKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", fmt.Errorf("registry: redis get: %w", err)
	}
	return roomID, nil
}
