package repository

import (
	"context"
	"fmt"
	"sync"

	"guesthouse/internal/domain"
)

// ErrRoomBusy is returned when a room lock could not be taken in time.
var ErrRoomBusy = fmt.Errorf("%w: room is locked by another request", domain.ErrConflict)

type roomLock struct {
	ch   chan struct{}
	refs int
}

// LocalRoomLocker serialises work per room inside one process.
type LocalRoomLocker struct {
	mu    sync.Mutex
	rooms map[int64]*roomLock
}

func NewLocalRoomLocker() *LocalRoomLocker {
	return &LocalRoomLocker{rooms: make(map[int64]*roomLock)}
}

func (l *LocalRoomLocker) LockRoom(ctx context.Context, roomID int64) (func(), error) {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{ch: make(chan struct{}, 1)}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-rl.ch
				l.release(roomID, rl)
			})
		}, nil
	case <-ctx.Done():
		l.release(roomID, rl)
		return nil, fmt.Errorf("%w: %v", ErrRoomBusy, ctx.Err())
	}
}

func (l *LocalRoomLocker) release(roomID int64, rl *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.rooms, roomID)
	}
}

// held reports how many rooms currently have waiters or holders.
func (l *LocalRoomLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}
