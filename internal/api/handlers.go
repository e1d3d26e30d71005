package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"
	"guesthouse/internal/service"
)

type bookingResponse struct {
	Booking    *models.Booking `json:"booking"`
	PromoError string          `json:"promo_error,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Store.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user := &models.User{
		Email:          req.Email,
		Name:           req.Name,
		Role:           models.Role(req.Role),
		TelegramChatID: req.TelegramChatID,
	}
	if err := s.svc.Users.Register(r.Context(), user); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *HTTPServer) handlePendingOwners(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Users.PendingOwners(r.Context(), principalFrom(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleApproveOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user, err := s.svc.Users.ApproveOwner(r.Context(), principalFrom(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.svc.Bookings.RequestBooking(r.Context(), principalFrom(r), service.BookingRequest{
		RoomID:    req.RoomID,
		CheckIn:   parseDay(req.CheckIn),
		CheckOut:  parseDay(req.CheckOut),
		PromoCode: req.PromoCode,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := bookingResponse{Booking: result.Booking}
	if result.PromoErr != nil {
		resp.PromoError = result.PromoErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleListBookings returns the caller's bookings, or with from/to every
// booking checking in within the range (admins only).
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var bookings []*models.Booking
	switch {
	case from == nil && to == nil:
		bookings, err = s.svc.Bookings.ListCustomerBookings(r.Context(), principalFrom(r))
	case from != nil && to != nil:
		bookings, err = s.svc.Bookings.ListBookingsByRange(r.Context(), principalFrom(r), *from, *to)
	default:
		err = fmt.Errorf("%w: from and to go together", domain.ErrInvalidQuery)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), principalFrom(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	s.bookingAction(w, r, func(ctx context.Context, id int64) (*models.Booking, error) {
		return s.svc.Bookings.ConfirmPayment(ctx, id)
	})
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	s.bookingAction(w, r, func(ctx context.Context, id int64) (*models.Booking, error) {
		return s.svc.Bookings.Cancel(ctx, principalFrom(r), id)
	})
}

func (s *HTTPServer) handleRefundBooking(w http.ResponseWriter, r *http.Request) {
	s.bookingAction(w, r, func(ctx context.Context, id int64) (*models.Booking, error) {
		return s.svc.Bookings.Refund(ctx, principalFrom(r), id)
	})
}

func (s *HTTPServer) bookingAction(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) (*models.Booking, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := action(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleSearchRooms(w http.ResponseWriter, r *http.Request) {
	filter, err := roomFilterFromQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	results, err := s.svc.Search.SearchRooms(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func roomFilterFromQuery(r *http.Request) (service.RoomFilter, error) {
	var (
		filter service.RoomFilter
		err    error
	)
	filter.City = strings.TrimSpace(r.URL.Query().Get("city"))
	filter.Amenities = splitCSV(r.URL.Query().Get("amenities"))
	if filter.MinPrice, err = queryFloat(r, "min_price"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryFloat(r, "max_price"); err != nil {
		return filter, err
	}
	if filter.Capacity, err = queryInt(r, "capacity"); err != nil {
		return filter, err
	}
	if filter.CheckIn, err = queryDate(r, "check_in"); err != nil {
		return filter, err
	}
	if filter.CheckOut, err = queryDate(r, "check_out"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (s *HTTPServer) handleNearby(w http.ResponseWriter, r *http.Request) {
	lng, err := queryFloat(r, "lng")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	lat, err := queryFloat(r, "lat")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	radius, err := queryFloat(r, "radius")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	results, err := s.svc.Search.SearchNearby(r.Context(), lng, lat, radius)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *HTTPServer) handleRoomAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	start := models.DateOnly(time.Now())
	if from != nil {
		start = *from
	}
	calendar, err := s.svc.Availability.Calendar(r.Context(), id, start, days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": id, "days": calendar})
}

func (s *HTTPServer) handleDisableRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Guesthouses.DisableRoom(r.Context(), principalFrom(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGetGuesthouse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	gh, err := s.svc.Guesthouses.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gh)
}

func (s *HTTPServer) handleSubmitGuesthouse(w http.ResponseWriter, r *http.Request) {
	var req guesthouseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	gh := req.model()
	if err := s.svc.Guesthouses.Submit(r.Context(), principalFrom(r), gh); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, gh)
}

func (s *HTTPServer) handleApproveGuesthouse(w http.ResponseWriter, r *http.Request) {
	s.guesthouseAction(w, r, s.svc.Guesthouses.Approve)
}

func (s *HTTPServer) handleSuspendGuesthouse(w http.ResponseWriter, r *http.Request) {
	s.guesthouseAction(w, r, s.svc.Guesthouses.Suspend)
}

func (s *HTTPServer) guesthouseAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(context.Context, domain.Principal, int64) (*models.Guesthouse, error),
) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	gh, err := action(r.Context(), principalFrom(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gh)
}

func (s *HTTPServer) handleRejectGuesthouse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Guesthouses.Reject(r.Context(), principalFrom(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDisableGuesthouse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Guesthouses.DisableGuesthouse(r.Context(), principalFrom(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleAddRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req roomRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	room := req.model()
	if err := s.svc.Guesthouses.AddRoom(r.Context(), principalFrom(r), id, room); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *HTTPServer) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req createPromoRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	promo := req.model()
	if err := s.svc.Promos.Create(r.Context(), principalFrom(r), promo); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, promo)
}

func (s *HTTPServer) handleApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req applyPromoRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	quote, err := s.svc.Promos.Apply(r.Context(), service.ApplyPromoRequest{
		Code:     req.Code,
		RoomID:   req.RoomID,
		CheckIn:  parseDay(req.CheckIn),
		CheckOut: parseDay(req.CheckOut),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *HTTPServer) handleDeactivatePromo(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Promos.Deactivate(r.Context(), principalFrom(r), r.PathValue("code")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reportRange reads the mandatory from/to query pair.
func reportRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == nil || to == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from and to are required", domain.ErrInvalidQuery)
	}
	if to.Before(*from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", domain.ErrInvalidQuery)
	}
	return *from, *to, nil
}

func (s *HTTPServer) handleRebuildLedger(w http.ResponseWriter, r *http.Request) {
	if !principalFrom(r).IsAdmin() {
		s.writeServiceError(w, r, fmt.Errorf("%w: admin role required", domain.ErrForbidden))
		return
	}
	from, to, err := reportRange(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.svc.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger sync is disabled")
		return
	}
	if err := s.svc.Sync.EnqueueRebuild(r.Context(), from, to); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *HTTPServer) handleBookingsReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	bookings, err := s.svc.Bookings.ListBookingsByRange(r.Context(), principalFrom(r), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	f, err := s.svc.Reports.Build(r.Context(), bookings, from, to)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidQuery, err))
		return
	}
	defer f.Close()

	name := fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("write bookings report")
	}
}
