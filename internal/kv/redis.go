package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores items in a Redis server. Unlike the other backends, change
// events cross process boundaries: every write is published on a channel
// that all Redis values with the same namespace subscribe to.
type Redis struct {
	client    *redis.Client
	namespace string
	hub       *hub

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedis connects to redisURL and starts listening for change events.
// Keys are stored under "<namespace>:".
func NewRedis(redisURL, namespace string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return newRedis(redis.NewClient(opt), namespace)
}

func newRedis(client *redis.Client, namespace string) (*Redis, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r := &Redis{
		client:    client,
		namespace: namespace,
		hub:       newHub(),
	}

	r.pubsub = client.Subscribe(ctx, r.channel())
	// Wait for the subscription confirmation so writes made right after
	// construction are not missed.
	if _, err := r.pubsub.Receive(ctx); err != nil {
		r.pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", r.channel(), err)
	}

	r.wg.Add(1)
	go r.listen()

	return r, nil
}

// Open returns a new tab on r.
func (r *Redis) Open() *Tab {
	return newTab(r)
}

// Close stops the change listener and closes the client.
func (r *Redis) Close() error {
	err := r.pubsub.Close()
	r.wg.Wait()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *Redis) key(k string) string {
	return r.namespace + ":" + k
}

func (r *Redis) channel() string {
	return r.namespace + ":changes"
}

// listen turns "origin|key" messages into hub events.
func (r *Redis) listen() {
	defer r.wg.Done()

	for msg := range r.pubsub.Channel() {
		origin, key, ok := strings.Cut(msg.Payload, "|")
		if !ok {
			continue
		}
		r.hub.publish(Event{Key: key, Origin: origin})
	}
}

func (r *Redis) announce(ctx context.Context, key, origin string) error {
	if err := r.client.Publish(ctx, r.channel(), origin+"|"+key).Err(); err != nil {
		return fmt.Errorf("publishing change of %s: %w", key, err)
	}
	return nil
}

func (r *Redis) get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading item %s: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) set(ctx context.Context, key, value, origin string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("writing item %s: %w", key, err)
	}
	return r.announce(ctx, key, origin)
}

func (r *Redis) remove(ctx context.Context, key, origin string) error {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return fmt.Errorf("removing item %s: %w", key, err)
	}
	if n == 0 {
		return nil
	}
	return r.announce(ctx, key, origin)
}

func (r *Redis) watchers() *hub {
	return r.hub
}
