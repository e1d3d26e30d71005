package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/events"
	"guesthouse/internal/metrics"
	"guesthouse/internal/models"

	"github.com/rs/zerolog"
)

type BookingRequest struct {
	RoomID    int64
	CheckIn   time.Time
	CheckOut  time.Time
	PromoCode string
}

// BookingResult carries the created booking and, when a promo code was
// given but not honoured, the reason the discount was skipped.
type BookingResult struct {
	Booking  *models.Booking `json:"booking"`
	PromoErr error           `json:"-"`
}

type BookingService struct {
	repo           domain.Repository
	availability   *AvailabilityService
	locker         domain.RoomLocker
	promos         *PromoService
	eventBus       domain.EventPublisher
	notifier       domain.Notifier
	maxAdvanceDays int
	logger         *zerolog.Logger
	now            func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	locker domain.RoomLocker,
	promos *PromoService,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	maxAdvanceDays int,
	logger *zerolog.Logger,
) *BookingService {
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = 365
	}
	return &BookingService{
		repo:           repo,
		availability:   NewAvailabilityService(repo, eventBus, logger),
		locker:         locker,
		promos:         promos,
		eventBus:       eventBus,
		notifier:       notifier,
		maxAdvanceDays: maxAdvanceDays,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *BookingService) validateDates(checkIn, checkOut time.Time) (time.Time, time.Time, error) {
	in, out, err := validateRange(checkIn, checkOut)
	if err != nil {
		return in, out, err
	}

	today := models.DateOnly(s.now())
	if in.Before(today) {
		return in, out, fmt.Errorf("%w: check-in %s is in the past", domain.ErrValidation, in.Format(models.DateLayout))
	}
	if in.After(today.AddDate(0, 0, s.maxAdvanceDays)) {
		return in, out, fmt.Errorf("%w: check-in is more than %d days ahead", domain.ErrValidation, s.maxAdvanceDays)
	}
	return in, out, nil
}

// RequestBooking creates a pending booking. Only confirmed reservations block
// the request; a bad promo code downgrades to full price.
func (s *BookingService) RequestBooking(ctx context.Context, principal domain.Principal, req BookingRequest) (*BookingResult, error) {
	if principal.UserID == 0 {
		return nil, fmt.Errorf("%w: customer is required", domain.ErrValidation)
	}
	in, out, err := s.validateDates(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	room, err := s.repo.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, fmt.Errorf("%w: room %d is disabled", domain.ErrRoomUnavailable, room.ID)
	}
	gh, err := s.repo.GetGuesthouse(ctx, room.GuesthouseID)
	if err != nil {
		return nil, err
	}
	if gh.Status != models.GuesthouseApproved || !gh.IsActive {
		return nil, fmt.Errorf("%w: guesthouse %d is not accepting bookings", domain.ErrRoomUnavailable, gh.ID)
	}

	conflict, err := s.availability.HasConflict(ctx, room.ID, in, out)
	if err != nil {
		return nil, err
	}
	if conflict {
		metrics.IncConflict("request")
		return nil, fmt.Errorf("%w: room %d %s..%s", domain.ErrRoomUnavailable, room.ID,
			in.Format(models.DateLayout), out.Format(models.DateLayout))
	}

	booking := &models.Booking{
		CustomerID:   principal.UserID,
		GuesthouseID: gh.ID,
		RoomID:       room.ID,
		CheckIn:      in,
		CheckOut:     out,
		Nights:       models.Nights(in, out),
		Status:       models.BookingPending,
	}
	booking.BaseAmount = models.RoundMoney(float64(booking.Nights) * room.PricePerNight)
	booking.Amount = booking.BaseAmount

	result := &BookingResult{Booking: booking}
	if code := strings.TrimSpace(req.PromoCode); code != "" && s.promos != nil {
		amount, promo, err := s.promos.Evaluate(ctx, code, booking)
		switch {
		case err == nil:
			booking.Amount = amount
			booking.Discount = models.RoundMoney(booking.BaseAmount - amount)
			booking.PromoCode = promo.Code
			metrics.IncPromo("applied")
		case domain.IsPromoError(err):
			result.PromoErr = err
			metrics.IncPromo(promoOutcome(err))
			s.logger.Info().Err(err).Str("code", code).Int64("room_id", room.ID).Msg("Promo skipped")
		default:
			return nil, err
		}
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}
	metrics.IncBookingTransition(string(models.BookingPending))

	s.publish(events.EventBookingRequested, booking, principal)
	s.notify(ctx, booking.CustomerID, "Payment pending",
		fmt.Sprintf("Booking #%d for %s, %s to %s is awaiting payment of %.2f.",
			booking.ID, room.Name, booking.CheckIn.Format(models.DateLayout), booking.CheckOut.Format(models.DateLayout), booking.Amount))

	return result, nil
}

// ConfirmPayment commits the booking's interval and moves it to confirmed.
// Confirming an already confirmed booking returns it without side effects.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingConfirmed {
		return booking, nil
	}
	if !booking.Status.CanTransitionTo(models.BookingConfirmed) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, booking.Status, models.BookingConfirmed)
	}

	if s.locker != nil {
		unlock, err := s.locker.LockRoom(ctx, booking.RoomID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	confirmed, already, err := s.repo.ConfirmBooking(ctx, bookingID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.IncConflict("confirm")
			s.logger.Warn().Err(err).Int64("booking_id", bookingID).Int64("room_id", booking.RoomID).Msg("Confirmation lost the race")
		}
		if errors.Is(err, domain.ErrPromoUsageExceeded) {
			metrics.IncPromo(promoOutcome(err))
			s.logger.Warn().Err(err).Int64("booking_id", bookingID).Str("code", booking.PromoCode).Msg("Promo exhausted before payment")
		}
		return nil, err
	}
	if already {
		return confirmed, nil
	}

	metrics.IncBookingTransition(string(models.BookingConfirmed))
	s.publish(events.EventBookingConfirmed, confirmed, domain.Principal{})
	s.notify(ctx, confirmed.CustomerID, "Booking confirmed",
		fmt.Sprintf("Booking #%d is confirmed: %s to %s.", confirmed.ID,
			confirmed.CheckIn.Format(models.DateLayout), confirmed.CheckOut.Format(models.DateLayout)))

	return confirmed, nil
}

// Cancel withdraws a pending booking. Only its customer or an admin may cancel.
func (s *BookingService) Cancel(ctx context.Context, principal domain.Principal, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && booking.CustomerID != principal.UserID {
		return nil, fmt.Errorf("%w: booking %d belongs to another customer", domain.ErrForbidden, bookingID)
	}
	if !booking.Status.CanTransitionTo(models.BookingCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, booking.Status, models.BookingCancelled)
	}

	if err := s.repo.CancelBooking(ctx, bookingID, booking.Version); err != nil {
		return nil, err
	}
	booking.Status = models.BookingCancelled
	booking.Version++
	booking.UpdatedAt = s.now()

	metrics.IncBookingTransition(string(models.BookingCancelled))
	s.publish(events.EventBookingCancelled, booking, principal)
	s.notify(ctx, booking.CustomerID, "Booking cancelled",
		fmt.Sprintf("Booking #%d has been cancelled.", booking.ID))

	return booking, nil
}

// Refund reverses a confirmed booking and frees its dates. Admins and the
// owner of the booked guesthouse may refund.
func (s *BookingService) Refund(ctx context.Context, principal domain.Principal, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if _, err := ownedGuesthouse(ctx, s.repo, principal, booking.GuesthouseID); err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(models.BookingRefunded) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, booking.Status, models.BookingRefunded)
	}

	refunded, err := s.repo.RefundBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingTransition(string(models.BookingRefunded))
	s.publish(events.EventBookingRefunded, refunded, principal)
	s.notify(ctx, refunded.CustomerID, "Booking refunded",
		fmt.Sprintf("Booking #%d has been refunded (%.2f).", refunded.ID, refunded.Amount))

	return refunded, nil
}

// GetBooking is visible to its customer, the guesthouse owner and admins.
func (s *BookingService) GetBooking(ctx context.Context, principal domain.Principal, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID == principal.UserID {
		return booking, nil
	}
	if _, err := ownedGuesthouse(ctx, s.repo, principal, booking.GuesthouseID); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) ListCustomerBookings(ctx context.Context, principal domain.Principal) ([]*models.Booking, error) {
	return s.repo.GetCustomerBookings(ctx, principal.UserID)
}

// ListBookingsByRange returns every booking checking in within [start, end]. Admin only.
func (s *BookingService) ListBookingsByRange(ctx context.Context, principal domain.Principal, start, end time.Time) ([]*models.Booking, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: range end before start", domain.ErrValidation)
	}
	return s.repo.GetBookingsByDateRange(ctx, models.DateOnly(start), models.DateOnly(end))
}

func (s *BookingService) publish(eventType string, booking *models.Booking, actor domain.Principal) {
	publishEvent(s.eventBus, s.logger, eventType, events.BookingEventPayload{
		Booking:   *booking,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
	})
}

func (s *BookingService) notify(ctx context.Context, userID int64, subject, body string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, models.Notification{UserID: userID, Subject: subject, Body: body})
}
