package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces dialog keys in Redis.
const DefaultRedisPrefix = "switchboard:dialog:"

// RedisStore keeps dialog state in Redis as JSON with a TTL, so several bot
// processes or a restarted one see the same steps. It is opt-in; without it
// state lives in a MemoryStore.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to the Redis server at redisURL and verifies it
// answers a ping. A ttl of zero keeps keys forever.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("dialog: redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("dialog: redis ping: %w", err)
	}
	return WrapRedisClient(client, ttl), nil
}

// WrapRedisClient builds a RedisStore on an existing client.
func WrapRedisClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: DefaultRedisPrefix}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

// Get returns the user's state.
func (r *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return idle(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("dialog: redis get %d: %w", userID, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("dialog: decode state %d: %w", userID, err)
	}
	return st, nil
}

// Set replaces the user's state and refreshes its TTL.
func (r *RedisStore) Set(ctx context.Context, userID int64, st State) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("dialog: encode state %d: %w", userID, err)
	}
	if err := r.client.Set(ctx, r.key(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("dialog: redis set %d: %w", userID, err)
	}
	return nil
}

// Clear forgets the user's state.
func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("dialog: redis del %d: %w", userID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
