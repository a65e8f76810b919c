package locksvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

// only the holder's token may delete the key
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes work on a key across processes sharing a redis server.
// A key is held at most `ttl`, so a crashed holder never blocks it for good.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	prefix string
	logger core.Logger
}

var _ core.Locker = (*RedisLocker)(nil)

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration, logger core.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
		prefix: "lock:",
		logger: logger,
	}
}

// Lock retries SET NX until it succeeds, `wait` elapses or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = l.prefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, errors.Wrap(err, "acquiring lock")
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			return nil, core.ErrLockTimeout
		case <-ticker.C:
		}
	}

	return func() {
		// the request context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Error("releasing lock "+key, errors.Wrap(err, "running unlock script"))
		}
	}, nil
}
