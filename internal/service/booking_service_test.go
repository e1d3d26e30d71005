package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/events"
	"guesthouse/internal/models"
	"guesthouse/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRequestBooking(t *testing.T) {
	e := newEnv(t)
	svc := e.bookingService(repository.NewLocalRoomLocker())
	ctx := context.Background()

	var requested []*events.Event
	e.bus.Subscribe(events.EventBookingRequested, func(ev *events.Event) error {
		requested = append(requested, ev)
		return nil
	})

	t.Run("ThreeNights", func(t *testing.T) {
		res, err := svc.RequestBooking(ctx, e.customer, BookingRequest{
			RoomID:   e.room.ID,
			CheckIn:  day("2025-03-10"),
			CheckOut: day("2025-03-13"),
		})
		require.NoError(t, err)
		assert.NoError(t, res.PromoErr)

		b := res.Booking
		assert.NotZero(t, b.ID)
		assert.Equal(t, 3, b.Nights)
		assert.Equal(t, 3000.0, b.BaseAmount)
		assert.Equal(t, 3000.0, b.Amount)
		assert.Equal(t, models.BookingPending, b.Status)
		assert.Equal(t, e.guesthouse.ID, b.GuesthouseID)

		require.Len(t, requested, 1)
		payload, err := requested[0].DecodeBooking()
		require.NoError(t, err)
		assert.Equal(t, b.ID, payload.Booking.ID)
		assert.Contains(t, e.notifier.subjects(), "Payment pending")
	})

	t.Run("Validation", func(t *testing.T) {
		cases := map[string]BookingRequest{
			"Inverted":    {RoomID: e.room.ID, CheckIn: day("2025-03-13"), CheckOut: day("2025-03-10")},
			"SameDay":     {RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-10")},
			"Past":        {RoomID: e.room.ID, CheckIn: day("2025-02-20"), CheckOut: day("2025-02-22")},
			"MissingDate": {RoomID: e.room.ID, CheckIn: day("2025-03-10")},
			"TooFar":      {RoomID: e.room.ID, CheckIn: day("2026-06-10"), CheckOut: day("2026-06-12")},
		}
		for name, req := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := svc.RequestBooking(ctx, e.customer, req)
				assert.ErrorIs(t, err, domain.ErrValidation)
			})
		}
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		_, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: 999, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-11")})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("PendingDoesNotBlock", func(t *testing.T) {
		req := BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-04-01"), CheckOut: day("2025-04-05")}
		first, err := svc.RequestBooking(ctx, e.customer, req)
		require.NoError(t, err)
		second, err := svc.RequestBooking(ctx, e.other, req)
		require.NoError(t, err)
		assert.NotEqual(t, first.Booking.ID, second.Booking.ID)
	})

	t.Run("ConfirmedBlocks", func(t *testing.T) {
		req := BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-05-01"), CheckOut: day("2025-05-05")}
		res, err := svc.RequestBooking(ctx, e.customer, req)
		require.NoError(t, err)
		_, err = svc.ConfirmPayment(ctx, res.Booking.ID)
		require.NoError(t, err)

		_, err = svc.RequestBooking(ctx, e.other, BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-05-04"), CheckOut: day("2025-05-06")})
		assert.ErrorIs(t, err, domain.ErrRoomUnavailable)

		// Checkout day is free for the next guest.
		_, err = svc.RequestBooking(ctx, e.other, BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-05-05"), CheckOut: day("2025-05-06")})
		assert.NoError(t, err)
	})

	t.Run("SuspendedGuesthouse", func(t *testing.T) {
		gh := e.addGuesthouse(t, "Closed", "Malé", models.GuesthouseSuspended, nil)
		room := e.addRoom(t, gh.ID, 500, 2)
		_, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-11")})
		assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	})

	t.Run("DisabledRoom", func(t *testing.T) {
		room := e.addRoom(t, e.guesthouse.ID, 500, 2)
		require.NoError(t, e.db.SetRoomActive(ctx, room.ID, false))
		_, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-11")})
		assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	})
}

func TestRequestBooking_Promo(t *testing.T) {
	e := newEnv(t)
	svc := e.bookingService(nil)
	ctx := context.Background()
	e.addPromo(t, "FLAT500", models.DiscountFlat, 500, "2025-01-01", "2025-12-31", nil)
	e.addPromo(t, "OLD", models.DiscountPercentage, 20, "2024-01-01", "2024-12-31", nil)
	req := BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-12")}

	t.Run("Applied", func(t *testing.T) {
		req := req
		req.PromoCode = "flat500"
		res, err := svc.RequestBooking(ctx, e.customer, req)
		require.NoError(t, err)
		assert.NoError(t, res.PromoErr)
		assert.Equal(t, 2000.0, res.Booking.BaseAmount)
		assert.Equal(t, 1500.0, res.Booking.Amount)
		assert.Equal(t, 500.0, res.Booking.Discount)
		assert.Equal(t, "FLAT500", res.Booking.PromoCode)
	})

	t.Run("ExpiredStillBooks", func(t *testing.T) {
		req := req
		req.PromoCode = "OLD"
		res, err := svc.RequestBooking(ctx, e.customer, req)
		require.NoError(t, err)
		assert.ErrorIs(t, res.PromoErr, domain.ErrPromoExpired)
		assert.Equal(t, 2000.0, res.Booking.Amount)
		assert.Empty(t, res.Booking.PromoCode)
		assert.Equal(t, models.BookingPending, res.Booking.Status)
	})

	t.Run("UnknownCodeStillBooks", func(t *testing.T) {
		req := req
		req.PromoCode = "NOPE"
		res, err := svc.RequestBooking(ctx, e.customer, req)
		require.NoError(t, err)
		assert.ErrorIs(t, res.PromoErr, domain.ErrPromoNotFound)
		assert.Equal(t, 2000.0, res.Booking.Amount)
	})
}

func TestConfirmPayment(t *testing.T) {
	e := newEnv(t)
	svc := e.bookingService(repository.NewLocalRoomLocker())
	ctx := context.Background()

	var confirmed int
	e.bus.Subscribe(events.EventBookingConfirmed, func(*events.Event) error {
		confirmed++
		return nil
	})

	res, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-13")})
	require.NoError(t, err)
	id := res.Booking.ID

	t.Run("Confirm", func(t *testing.T) {
		b, err := svc.ConfirmPayment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, b.Status)
		assert.NotNil(t, b.PaidAt)
		assert.Equal(t, 1, confirmed)
	})

	t.Run("Idempotent", func(t *testing.T) {
		before := len(e.notifier.subjects())
		b, err := svc.ConfirmPayment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, b.Status)
		assert.Equal(t, 1, confirmed)
		assert.Len(t, e.notifier.subjects(), before)

		ledger, err := e.db.GetLedger(ctx, e.room.ID)
		require.NoError(t, err)
		assert.Len(t, ledger, 1)
	})

	t.Run("CancelledCannotConfirm", func(t *testing.T) {
		res, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-06-10"), CheckOut: day("2025-06-11")})
		require.NoError(t, err)
		_, err = svc.Cancel(ctx, e.customer, res.Booking.ID)
		require.NoError(t, err)

		_, err = svc.ConfirmPayment(ctx, res.Booking.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := svc.ConfirmPayment(ctx, 12345)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestConfirmPayment_PromoUsageCap(t *testing.T) {
	e := newEnv(t)
	svc := e.bookingService(repository.NewLocalRoomLocker())
	ctx := context.Background()
	e.addPromo(t, "ONCE", models.DiscountFlat, 500, "2025-01-01", "2025-12-31", ptr(1))
	twin := e.addRoom(t, e.guesthouse.ID, 1000, 2)

	first, err := svc.RequestBooking(ctx, e.customer, BookingRequest{
		RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-13"), PromoCode: "once"})
	require.NoError(t, err)
	second, err := svc.RequestBooking(ctx, e.other, BookingRequest{
		RoomID: twin.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-13"), PromoCode: "ONCE"})
	require.NoError(t, err)
	assert.Equal(t, 2500.0, first.Booking.Amount)
	assert.Equal(t, 2500.0, second.Booking.Amount)

	_, err = svc.ConfirmPayment(ctx, first.Booking.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, second.Booking.ID)
	assert.ErrorIs(t, err, domain.ErrPromoUsageExceeded)

	b, err := e.db.GetBooking(ctx, second.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)

	promo, err := e.db.GetPromoByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, promo.UsageCount)
}

func TestConfirmPayment_Race(t *testing.T) {
	e := newEnv(t)
	svc := e.bookingService(repository.NewLocalRoomLocker())
	ctx := context.Background()

	req := BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-13")}
	first, err := svc.RequestBooking(ctx, e.customer, req)
	require.NoError(t, err)
	second, err := svc.RequestBooking(ctx, e.other, BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-03-12"), CheckOut: day("2025-03-14")})
	require.NoError(t, err)

	t.Run("Sequential", func(t *testing.T) {
		_, err := svc.ConfirmPayment(ctx, first.Booking.ID)
		require.NoError(t, err)

		_, err = svc.ConfirmPayment(ctx, second.Booking.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)

		b, err := e.db.GetBooking(ctx, second.Booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingPending, b.Status)
	})

	t.Run("Concurrent", func(t *testing.T) {
		req := BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-07-01"), CheckOut: day("2025-07-04")}
		ids := make([]int64, 8)
		for i := range ids {
			res, err := svc.RequestBooking(ctx, e.customer, req)
			require.NoError(t, err)
			ids[i] = res.Booking.ID
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for _, id := range ids {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := svc.ConfirmPayment(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrConflict):
					conflicts++
				}
			}(id)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, len(ids)-1, conflicts)
	})
}

func TestConfirmPayment_LockFailure(t *testing.T) {
	e := newEnv(t)
	locker := new(mockLocker)
	svc := e.bookingService(locker)
	ctx := context.Background()

	res, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-11")})
	require.NoError(t, err)

	locker.On("LockRoom", mock.Anything, e.room.ID).Return(nil, repository.ErrRoomBusy).Once()
	_, err = svc.ConfirmPayment(ctx, res.Booking.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	b, err := e.db.GetBooking(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	locker.AssertExpectations(t)
}

func TestCancelAndRefund(t *testing.T) {
	e := newEnv(t)
	svc := e.bookingService(nil)
	ctx := context.Background()

	newBooking := func(in, out string) *models.Booking {
		res, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: e.room.ID, CheckIn: day(in), CheckOut: day(out)})
		require.NoError(t, err)
		return res.Booking
	}

	t.Run("CancelPending", func(t *testing.T) {
		b := newBooking("2025-03-10", "2025-03-12")
		_, err := svc.Cancel(ctx, e.other, b.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		got, err := svc.Cancel(ctx, e.customer, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCancelled, got.Status)

		_, err = svc.Cancel(ctx, e.customer, b.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("CancelConfirmedFails", func(t *testing.T) {
		b := newBooking("2025-03-20", "2025-03-22")
		_, err := svc.ConfirmPayment(ctx, b.ID)
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, e.admin, b.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("RefundReleasesDates", func(t *testing.T) {
		b := newBooking("2025-04-10", "2025-04-12")
		_, err := svc.Refund(ctx, e.owner, b.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		_, err = svc.ConfirmPayment(ctx, b.ID)
		require.NoError(t, err)

		_, err = svc.Refund(ctx, e.customer, b.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		got, err := svc.Refund(ctx, e.owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingRefunded, got.Status)

		conflict, err := e.db.HasConflict(ctx, e.room.ID, day("2025-04-10"), day("2025-04-12"))
		require.NoError(t, err)
		assert.False(t, conflict)

		_, err = svc.Refund(ctx, e.admin, b.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	assert.Subset(t, e.notifier.subjects(), []string{"Booking cancelled", "Booking confirmed", "Booking refunded"})
}

func TestBookingQueries(t *testing.T) {
	e := newEnv(t)
	svc := e.bookingService(nil)
	ctx := context.Background()

	res, err := svc.RequestBooking(ctx, e.customer, BookingRequest{RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-12")})
	require.NoError(t, err)
	id := res.Booking.ID

	t.Run("GetBooking", func(t *testing.T) {
		_, err := svc.GetBooking(ctx, e.customer, id)
		assert.NoError(t, err)
		_, err = svc.GetBooking(ctx, e.owner, id)
		assert.NoError(t, err)
		_, err = svc.GetBooking(ctx, e.admin, id)
		assert.NoError(t, err)
		_, err = svc.GetBooking(ctx, e.other, id)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("ListCustomerBookings", func(t *testing.T) {
		list, err := svc.ListCustomerBookings(ctx, e.customer)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = svc.ListCustomerBookings(ctx, e.other)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("ListBookingsByRange", func(t *testing.T) {
		_, err := svc.ListBookingsByRange(ctx, e.customer, day("2025-03-01"), day("2025-03-31"))
		assert.ErrorIs(t, err, domain.ErrForbidden)

		list, err := svc.ListBookingsByRange(ctx, e.admin, day("2025-03-01"), day("2025-03-31"))
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = svc.ListBookingsByRange(ctx, e.admin, day("2025-03-31"), day("2025-03-01"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestBookingService_PublishFailureIsLogged(t *testing.T) {
	e := newEnv(t)
	bus := new(mockEventBus)
	svc := NewBookingService(e.db, nil, nil, bus, nil, 0, e.logger)
	svc.now = func() time.Time { return day("2025-03-01") }

	bus.On("PublishJSON", events.EventBookingRequested, mock.Anything).Return(errors.New("bus down")).Once()

	res, err := svc.RequestBooking(context.Background(), e.customer, BookingRequest{
		RoomID: e.room.ID, CheckIn: day("2025-03-10"), CheckOut: day("2025-03-11"), PromoCode: "IGNORED",
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, res.Booking.Amount)
	bus.AssertExpectations(t)
}
