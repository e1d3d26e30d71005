package domain

import (
	"context"
	"time"

	"guesthouse/internal/models"
)

// Principal is the already-authenticated caller.
type Principal struct {
	UserID int64
	Role   models.Role
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ApproveUser(ctx context.Context, id int64) error
	ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}

type GuesthouseRepository interface {
	CreateGuesthouse(ctx context.Context, gh *models.Guesthouse) error
	GetGuesthouse(ctx context.Context, id int64) (*models.Guesthouse, error)
	UpdateGuesthouseStatus(ctx context.Context, id int64, from, to models.GuesthouseStatus) error
	SetGuesthouseActive(ctx context.Context, id int64, active bool) error
	DeletePendingGuesthouse(ctx context.Context, id int64) error
	ListApprovedGuesthouses(ctx context.Context) ([]*models.Guesthouse, error)
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	SetRoomActive(ctx context.Context, id int64, active bool) error
	ListRoomsByGuesthouses(ctx context.Context, guesthouseIDs []int64) ([]*models.Room, error)
}

// AvailabilityRepository is the room availability ledger. Reserved rows are
// written only through CommitInterval or the confirm transaction and cleared
// only through ReleaseInterval or the refund transaction.
type AvailabilityRepository interface {
	HasConflict(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error)
	CommitInterval(ctx context.Context, roomID, bookingID int64, checkIn, checkOut time.Time) error
	ReleaseInterval(ctx context.Context, bookingID int64) error
	GetLedger(ctx context.Context, roomID int64) ([]*models.AvailabilityInterval, error)
	ReservedRoomIDs(ctx context.Context, roomIDs []int64, checkIn, checkOut time.Time) (map[int64]bool, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetCustomerBookings(ctx context.Context, customerID int64) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	// ConfirmBooking atomically commits the interval and moves the booking
	// to confirmed. alreadyConfirmed is true when nothing changed.
	ConfirmBooking(ctx context.Context, id int64, paidAt time.Time) (booking *models.Booking, alreadyConfirmed bool, err error)
	CancelBooking(ctx context.Context, id, version int64) error
	RefundBooking(ctx context.Context, id int64) (*models.Booking, error)
}

type PromoRepository interface {
	CreatePromo(ctx context.Context, promo *models.Promo) error
	GetPromoByCode(ctx context.Context, code string) (*models.Promo, error)
	SetPromoActive(ctx context.Context, id int64, active bool) error
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Repository is the full persistence layer.
type Repository interface {
	UserRepository
	GuesthouseRepository
	AvailabilityRepository
	BookingRepository
	PromoRepository
	SyncQueueRepository
	Ping(ctx context.Context) error
}

// RoomLocker serialises check-then-commit for one room.
type RoomLocker interface {
	LockRoom(ctx context.Context, roomID int64) (unlock func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationSender delivers one message. Failures are the caller's to log.
type NotificationSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Notifier enqueues a message without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status models.BookingStatus) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status models.BookingStatus) error
}
