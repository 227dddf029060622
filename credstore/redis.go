package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures of the Redis backend.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minTTL = time.Second

// Redis stores credentials under one key.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis returns a Store writing key. A positive ttl caps how long saved
// credentials live; credentials that expire earlier use their own expiry.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = "authsync:credentials"
	}
	return &Redis{client: client, key: key, ttl: ttl, now: time.Now}
}

func (r *Redis) Load(ctx context.Context) (Credentials, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	c, err := Decode(data)
	if err != nil {
		return Credentials{}, err
	}
	if c.Expired(r.now()) {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

func (r *Redis) Save(ctx context.Context, c Credentials) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}

	ttl := r.ttl
	if !c.ExpiresAt.IsZero() {
		remaining := c.ExpiresAt.Sub(r.now())
		if remaining < minTTL {
			remaining = minTTL
		}
		if ttl <= 0 || remaining < ttl {
			ttl = remaining
		}
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)
