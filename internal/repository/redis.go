package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guesthouse/internal/config"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockBackendDown means the distributed lock store could not be reached.
var ErrLockBackendDown = errors.New("lock backend unavailable")

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// RedisRoomLocker holds room locks in Redis so several API instances share them.
type RedisRoomLocker struct {
	client *redis.Client
	rs     *redsync.Redsync
	ttl    time.Duration
	tries  int
	logger *zerolog.Logger
}

func NewRedisRoomLocker(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *RedisRoomLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisRoomLocker{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		tries:  32,
		logger: logger,
	}
}

func roomLockKey(roomID int64) string {
	return fmt.Sprintf("room-lock:%d", roomID)
}

func (l *RedisRoomLocker) LockRoom(ctx context.Context, roomID int64) (func(), error) {
	if l.client == nil {
		return nil, fmt.Errorf("%w: redis client is nil", ErrLockBackendDown)
	}

	mutex := l.rs.NewMutex(roomLockKey(roomID),
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(50*time.Millisecond),
	)

	if err := mutex.LockContext(ctx); err != nil {
		// A failed lock on a healthy server is contention, anything else is an outage.
		if pingErr := l.client.Ping(ctx).Err(); pingErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockBackendDown, pingErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrRoomBusy, err)
	}

	return func() {
		// The lock may outlive a cancelled request context.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); err != nil || !ok {
			l.logger.Warn().Err(err).Int64("room_id", roomID).Msg("Failed to release room lock, it will expire")
		}
	}, nil
}
