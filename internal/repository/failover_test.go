package repository

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) LockRoom(ctx context.Context, roomID int64) (func(), error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func TestFailoverRoomLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	locker := NewFailoverRoomLocker(primary, fallback, &logger)
	ctx := context.Background()
	noop := func() {}
	downErr := fmt.Errorf("%w: connection refused", ErrLockBackendDown)

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("LockRoom", ctx, int64(1)).Return(noop, nil).Once()

		unlock, err := locker.LockRoom(ctx, 1)
		require.NoError(t, err)
		assert.NotNil(t, unlock)
		primary.AssertExpectations(t)
	})

	t.Run("BusyIsNotFailover", func(t *testing.T) {
		primary.On("LockRoom", ctx, int64(2)).Return(nil, ErrRoomBusy).Once()

		_, err := locker.LockRoom(ctx, 2)
		assert.ErrorIs(t, err, ErrRoomBusy)
		assert.False(t, locker.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryDownFallbackSuccess", func(t *testing.T) {
		primary.On("LockRoom", ctx, int64(3)).Return(nil, downErr).Once()
		fallback.On("LockRoom", ctx, int64(3)).Return(noop, nil).Once()

		_, err := locker.LockRoom(ctx, 3)
		require.NoError(t, err)
		assert.True(t, locker.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDown", func(t *testing.T) {
		fallback.On("LockRoom", ctx, int64(4)).Return(noop, nil).Once()

		_, err := locker.LockRoom(ctx, 4)
		require.NoError(t, err)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		locker.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("LockRoom", ctx, int64(5)).Return(nil, downErr).Once()
		fallback.On("LockRoom", ctx, int64(5)).Return(noop, nil).Once()

		_, err := locker.LockRoom(ctx, 5)
		require.NoError(t, err)
		assert.True(t, locker.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		locker.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("LockRoom", ctx, int64(6)).Return(noop, nil).Once()

		_, err := locker.LockRoom(ctx, 6)
		require.NoError(t, err)
		assert.False(t, locker.isDown.Load())
		primary.AssertExpectations(t)
	})
}
