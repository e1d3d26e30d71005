package service

import (
	"context"
	"fmt"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/events"
	"guesthouse/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService is the only writer of a room's availability ledger
// outside the booking confirm and refund transactions.
type AvailabilityService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAvailabilityService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{repo: repo, eventBus: eventBus, logger: logger}
}

func validateRange(checkIn, checkOut time.Time) (time.Time, time.Time, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: check-in and check-out are required", domain.ErrValidation)
	}
	in, out := models.DateOnly(checkIn), models.DateOnly(checkOut)
	if !in.Before(out) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: check-in must be before check-out", domain.ErrValidation)
	}
	return in, out, nil
}

// HasConflict reports whether a confirmed reservation overlaps [checkIn, checkOut).
func (s *AvailabilityService) HasConflict(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	in, out, err := validateRange(checkIn, checkOut)
	if err != nil {
		return false, err
	}
	return s.repo.HasConflict(ctx, roomID, in, out)
}

// Commit reserves the interval for the booking. Committing the same interval
// for the same booking twice is a no-op.
func (s *AvailabilityService) Commit(ctx context.Context, roomID, bookingID int64, checkIn, checkOut time.Time) error {
	in, out, err := validateRange(checkIn, checkOut)
	if err != nil {
		return err
	}
	if err := s.repo.CommitInterval(ctx, roomID, bookingID, in, out); err != nil {
		return err
	}
	publishEvent(s.eventBus, s.logger, events.EventAvailabilityChanged, events.RoomEventPayload{RoomID: roomID, IsActive: true})
	return nil
}

// Release returns the booking's reserved interval to the room.
func (s *AvailabilityService) Release(ctx context.Context, bookingID int64) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := s.repo.ReleaseInterval(ctx, bookingID); err != nil {
		return err
	}
	publishEvent(s.eventBus, s.logger, events.EventAvailabilityChanged, events.RoomEventPayload{
		RoomID:       booking.RoomID,
		GuesthouseID: booking.GuesthouseID,
		IsActive:     true,
	})
	return nil
}

func (s *AvailabilityService) Ledger(ctx context.Context, roomID int64) ([]*models.AvailabilityInterval, error) {
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repo.GetLedger(ctx, roomID)
}

// Calendar lists one cell per day starting at from.
func (s *AvailabilityService) Calendar(ctx context.Context, roomID int64, from time.Time, days int) ([]models.DayAvailability, error) {
	if days == 0 {
		days = models.DefaultCalendarDays
	}
	if days < 0 || days > models.MaxCalendarDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", domain.ErrValidation, models.MaxCalendarDays)
	}
	if from.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", domain.ErrValidation)
	}

	ledger, err := s.Ledger(ctx, roomID)
	if err != nil {
		return nil, err
	}

	start := models.DateOnly(from)
	calendar := make([]models.DayAvailability, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		cell := models.DayAvailability{Date: date, RoomID: roomID, Available: true}
		for _, interval := range ledger {
			if interval.Reserved && models.Overlaps(date, date.AddDate(0, 0, 1), interval.CheckIn, interval.CheckOut) {
				cell.Available = false
				cell.BookingID = interval.BookingID
				break
			}
		}
		calendar = append(calendar, cell)
	}
	return calendar, nil
}
