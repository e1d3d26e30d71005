package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"guesthouse/internal/config"
	"guesthouse/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	client := NewRedisClient(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 5})
	defer client.Close()

	assert.Equal(t, "localhost:6379", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	assert.Equal(t, 5, client.Options().PoolSize)
}

func TestRedisRoomLocker(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	logger := zerolog.New(io.Discard)
	locker := NewRedisRoomLocker(client, time.Second, &logger)
	locker.tries = 2
	ctx := context.Background()

	t.Run("LockAndUnlock", func(t *testing.T) {
		unlock, err := locker.LockRoom(ctx, 1)
		require.NoError(t, err)
		assert.True(t, s.Exists(roomLockKey(1)))

		unlock()
		assert.False(t, s.Exists(roomLockKey(1)))
	})

	t.Run("SecondLockIsBusy", func(t *testing.T) {
		unlock, err := locker.LockRoom(ctx, 2)
		require.NoError(t, err)
		defer unlock()

		_, err = locker.LockRoom(ctx, 2)
		assert.ErrorIs(t, err, ErrRoomBusy)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("DifferentRoomsDoNotBlock", func(t *testing.T) {
		unlockA, err := locker.LockRoom(ctx, 3)
		require.NoError(t, err)
		defer unlockA()

		unlockB, err := locker.LockRoom(ctx, 4)
		require.NoError(t, err)
		unlockB()
	})

	t.Run("BackendDown", func(t *testing.T) {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
		defer down.Close()

		l := NewRedisRoomLocker(down, time.Second, &logger)
		l.tries = 1
		_, err := l.LockRoom(ctx, 1)
		assert.True(t, errors.Is(err, ErrLockBackendDown))
	})

	t.Run("NilClient", func(t *testing.T) {
		l := &RedisRoomLocker{logger: &logger}
		_, err := l.LockRoom(ctx, 1)
		assert.ErrorIs(t, err, ErrLockBackendDown)
	})
}
