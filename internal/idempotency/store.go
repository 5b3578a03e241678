// Package idempotency records client temp ids of sends so a retried send
// resolves to the message the first attempt created.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

// State is the outcome of claiming a key.
type State int

const (
	// Claimed means the caller owns the key and must Complete or Release it.
	Claimed State = iota
	// InFlight means another request holds the key and has not finished.
	InFlight
	// Completed means the key resolves to an existing message.
	Completed
)

// Store claims and resolves idempotency keys.
type Store interface {
	Claim(ctx context.Context, key string) (State, int, error)
	Complete(ctx context.Context, key string, messageID int) error
	Release(ctx context.Context, key string) error
}

// RedisStore keeps keys in Redis with a TTL.
type RedisStore struct {
	r   *redis.Client
	ttl time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{r: client, ttl: ttl}
}

// Key builds the per chat, author and temp id key.
func Key(chatID, authorID int, tempID string) string {
	return fmt.Sprintf("idem:%d:%d:%s", chatID, authorID, tempID)
}

func (s *RedisStore) Claim(ctx context.Context, key string) (State, int, error) {
	ok, err := s.r.SetNX(ctx, key, pending, s.ttl).Result()
	if err != nil {
		return 0, 0, err
	}
	if ok {
		return Claimed, 0, nil
	}

	val, err := s.r.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.r.SetNX(ctx, key, pending, s.ttl).Result()
		if err != nil {
			return 0, 0, err
		}
		if ok {
			return Claimed, 0, nil
		}
		return InFlight, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if val == pending {
		return InFlight, 0, nil
	}
	id, err := strconv.Atoi(val)
	if err != nil {
		return 0, 0, fmt.Errorf("idempotency key %s holds %q: %w", key, val, err)
	}
	return Completed, id, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, messageID int) error {
	return s.r.Set(ctx, key, strconv.Itoa(messageID), s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.r.Del(ctx, key).Err()
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
