package realtime

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// deletedPayload is published when a path is removed so subscribers
// observe the deletion as a nil value.
const deletedPayload = "null"

// RedisStore backs the realtime tree with Redis: the current value of a
// path lives under its key and every write is also published on a channel
// named after the path, which is what push subscriptions consume.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Set(ctx context.Context, path string, value []byte) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, path, value, 0)
	pipe.Publish(ctx, path, value)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	value, err := r.client.Get(ctx, path).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r *RedisStore) Delete(ctx context.Context, path string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, path)
	pipe.Publish(ctx, path, deletedPayload)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Subscribe(path string, fn func(value []byte)) (func(), error) {
	ctx := context.Background()
	pubsub := r.client.Subscribe(ctx, path)

	// Wait for the subscription to be confirmed before reading the
	// current value, so no write can slip between the two.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	current, err := r.Get(ctx, path)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(current)
		for msg := range pubsub.Channel() {
			if msg.Payload == deletedPayload || msg.Payload == "" {
				fn(nil)
				continue
			}
			fn([]byte(msg.Payload))
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}
	return cancel, nil
}
