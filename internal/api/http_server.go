package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"guesthouse/internal/config"
	"guesthouse/internal/export"
	"guesthouse/internal/service"

	"github.com/rs/zerolog"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LedgerSync queues a full rewrite of the external bookings ledger.
type LedgerSync interface {
	EnqueueRebuild(ctx context.Context, start, end time.Time) error
}

// Services are the use cases exposed over HTTP. Sync is nil when the
// ledger mirror is disabled.
type Services struct {
	Bookings     *service.BookingService
	Promos       *service.PromoService
	Search       *service.SearchService
	Guesthouses  *service.GuesthouseService
	Availability *service.AvailabilityService
	Users        *service.UserService
	Reports      *export.Reporter
	Sync         LedgerSync
	Store        Pinger
}

// HTTPServer exposes the booking API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, limiter *RateLimiter, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{cfg: cfg, svc: svc, logger: logger}
	srv.auth = NewHTTPAuth(cfg, limiter)

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(logger, srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	s.handle(mux, "GET /healthz", "", s.handleHealth)
	s.handle(mux, "GET /readyz", "", s.handleReady)

	s.handle(mux, "POST /api/v1/users", permManageCatalog, s.handleRegister)
	s.handle(mux, "GET /api/v1/users/pending-owners", permManageCatalog, s.handlePendingOwners)
	s.handle(mux, "POST /api/v1/users/{id}/approve", permManageCatalog, s.handleApproveOwner)

	s.handle(mux, "POST /api/v1/bookings", permWriteBookings, s.handleCreateBooking)
	s.handle(mux, "GET /api/v1/bookings", permWriteBookings, s.handleListBookings)
	s.handle(mux, "GET /api/v1/bookings/{id}", permWriteBookings, s.handleGetBooking)
	s.handle(mux, "POST /api/v1/bookings/{id}/confirm", permConfirmPayments, s.handleConfirmBooking)
	s.handle(mux, "POST /api/v1/bookings/{id}/cancel", permWriteBookings, s.handleCancelBooking)
	s.handle(mux, "POST /api/v1/bookings/{id}/refund", permWriteBookings, s.handleRefundBooking)

	s.handle(mux, "GET /api/v1/rooms/search", permReadCatalog, s.handleSearchRooms)
	s.handle(mux, "GET /api/v1/rooms/{id}/availability", permReadCatalog, s.handleRoomAvailability)
	s.handle(mux, "POST /api/v1/rooms/{id}/disable", permManageCatalog, s.handleDisableRoom)
	s.handle(mux, "GET /api/v1/guesthouses/nearby", permReadCatalog, s.handleNearby)
	s.handle(mux, "GET /api/v1/guesthouses/{id}", permReadCatalog, s.handleGetGuesthouse)

	s.handle(mux, "POST /api/v1/guesthouses", permManageCatalog, s.handleSubmitGuesthouse)
	s.handle(mux, "POST /api/v1/guesthouses/{id}/approve", permManageCatalog, s.handleApproveGuesthouse)
	s.handle(mux, "POST /api/v1/guesthouses/{id}/suspend", permManageCatalog, s.handleSuspendGuesthouse)
	s.handle(mux, "POST /api/v1/guesthouses/{id}/reject", permManageCatalog, s.handleRejectGuesthouse)
	s.handle(mux, "POST /api/v1/guesthouses/{id}/disable", permManageCatalog, s.handleDisableGuesthouse)
	s.handle(mux, "POST /api/v1/guesthouses/{id}/rooms", permManageCatalog, s.handleAddRoom)

	s.handle(mux, "POST /api/v1/promos", permManageCatalog, s.handleCreatePromo)
	s.handle(mux, "POST /api/v1/promos/apply", permWriteBookings, s.handleApplyPromo)
	s.handle(mux, "POST /api/v1/promos/{code}/deactivate", permManageCatalog, s.handleDeactivatePromo)

	s.handle(mux, "GET /api/v1/reports/bookings.xlsx", permReadReports, s.handleBookingsReport)
	s.handle(mux, "POST /api/v1/sync/rebuild", permReadReports, s.handleRebuildLedger)
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern, permission string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, s.auth.Require(permission, func(w http.ResponseWriter, r *http.Request) {
		markRoute(r)
		h(w, r)
	}))
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
