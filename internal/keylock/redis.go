package keylock

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only if we still own it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process talking to the same Redis, so
// the api and worker binaries serialize on the same keys. The TTL bounds how
// long a crashed holder can block others.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis creates a lock using SET NX PX.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "attendance:lock:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock polls until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("release lock %s: %v", k, err)
		}
	}, nil
}
