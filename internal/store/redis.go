package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps keys in Redis and announces every write on a pub/sub
// channel, so windows running as separate processes can share one registry
// through a common Redis instance.
type RedisStore struct {
	client *redis.Client
	prefix string
	origin string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a context over client. All keys and the change
// channel are namespaced by prefix. Every key written is also recorded in the
// <prefix>keys set, and Clear deletes exactly those keys.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
	}
}

func (r *RedisStore) Origin() string { return r.origin }

func (r *RedisStore) channel() string {
	return r.prefix + "changes"
}

// indexKey names the set of written keys; it is reserved.
const indexKey = "keys"

func (r *RedisStore) index() string {
	return r.prefix + indexKey
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if key == indexKey {
		return fmt.Errorf("key %q is reserved", key)
	}
	payload, err := encodeChange(Change{Key: key, Value: value, Present: true, Origin: r.origin})
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.prefix+key, value, 0)
		pipe.SAdd(ctx, r.index(), key)
		pipe.Publish(ctx, r.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	names, err := r.client.SMembers(ctx, r.index()).Result()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	keys := make([]string, 0, len(names)+1)
	for _, name := range names {
		keys = append(keys, r.prefix+name)
	}
	keys = append(keys, r.index())

	payload, err := encodeChange(Change{Origin: r.origin})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Publish(ctx, r.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

func (r *RedisStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	pubsub := r.client.Subscribe(ctx, r.channel())
	// Wait for the subscription confirmation so no write is missed after
	// Watch returns.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel(), err)
	}

	out := make(chan Change, 1)
	messages := pubsub.Channel()
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				c, err := decodeChange(msg.Payload)
				if err != nil {
					continue
				}
				if !acceptChange(c, r.origin, key) {
					continue
				}
				Deliver(out, c)
			}
		}
	}()

	return out, nil
}

func acceptChange(c Change, origin, key string) bool {
	if c.Origin == origin {
		return false
	}
	return c.Cleared() || c.Key == key
}

func encodeChange(c Change) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode change: %w", err)
	}
	return string(data), nil
}

func decodeChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("failed to decode change: %w", err)
	}
	return c, nil
}
