package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"guesthouse/internal/domain"

	"github.com/rs/zerolog"
)

const failoverRecheckInterval = time.Minute

// FailoverRoomLocker prefers the primary locker and switches to the fallback
// while the primary's backend is unreachable.
type FailoverRoomLocker struct {
	primary   domain.RoomLocker
	fallback  domain.RoomLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverRoomLocker(primary, fallback domain.RoomLocker, logger *zerolog.Logger) *FailoverRoomLocker {
	return &FailoverRoomLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRoomLocker) shouldRetryPrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) <= failoverRecheckInterval {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

func (r *FailoverRoomLocker) markDown() {
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
	r.isDown.Store(true)
}

func (r *FailoverRoomLocker) LockRoom(ctx context.Context, roomID int64) (func(), error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		unlock, err := r.primary.LockRoom(ctx, roomID)
		switch {
		case err == nil:
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary room locker recovered")
			}
			return unlock, nil
		case !errors.Is(err, ErrLockBackendDown):
			return nil, err
		}
		if !r.isDown.Load() {
			r.logger.Error().Err(err).Msg("Primary room locker failed, falling back to local locks")
		}
		r.markDown()
	}

	return r.fallback.LockRoom(ctx, roomID)
}
