package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"guesthouse/internal/database"
	"guesthouse/internal/domain"
	"guesthouse/internal/events"
	"guesthouse/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr[T any](v T) *T { return &v }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.Subject
	}
	return out
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

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

type env struct {
	db       *database.DB
	bus      *events.EventBus
	notifier *recordingNotifier
	logger   *zerolog.Logger

	admin      domain.Principal
	owner      domain.Principal
	customer   domain.Principal
	other      domain.Principal
	guesthouse *models.Guesthouse
	room       *models.Room
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		db:       db,
		bus:      events.NewEventBus(&logger),
		notifier: &recordingNotifier{},
		logger:   &logger,
	}

	ctx := context.Background()
	mkUser := func(email string, role models.Role) domain.Principal {
		u := &models.User{Email: email, Name: email, Role: role, IsApproved: true}
		require.NoError(t, db.CreateUser(ctx, u))
		return domain.Principal{UserID: u.ID, Role: role}
	}
	e.admin = mkUser("admin@example.com", models.RoleAdmin)
	e.owner = mkUser("owner@example.com", models.RoleOwner)
	e.customer = mkUser("guest@example.com", models.RoleCustomer)
	e.other = mkUser("other@example.com", models.RoleCustomer)

	e.guesthouse = e.addGuesthouse(t, "Sea Breeze", "Malé", models.GuesthouseApproved, &models.GeoPoint{Lng: 73.5093, Lat: 4.1755})
	e.room = e.addRoom(t, e.guesthouse.ID, 1000, 2, "wifi", "ac")
	return e
}

func (e *env) addGuesthouse(t *testing.T, name, city string, status models.GuesthouseStatus, loc *models.GeoPoint) *models.Guesthouse {
	t.Helper()
	gh := &models.Guesthouse{
		OwnerID:  e.owner.UserID,
		Name:     name,
		Address:  name + " street",
		City:     city,
		Country:  "Maldives",
		Location: loc,
		Status:   status,
		IsActive: true,
	}
	require.NoError(t, e.db.CreateGuesthouse(context.Background(), gh))
	return gh
}

func (e *env) addRoom(t *testing.T, guesthouseID int64, price float64, capacity int, amenities ...string) *models.Room {
	t.Helper()
	room := &models.Room{
		GuesthouseID:  guesthouseID,
		Name:          "Room",
		PricePerNight: price,
		Capacity:      capacity,
		Amenities:     amenities,
		IsActive:      true,
	}
	require.NoError(t, e.db.CreateRoom(context.Background(), room))
	return room
}

func (e *env) addPromo(t *testing.T, code string, dt models.DiscountType, value float64, start, end string, maxUsage *int) *models.Promo {
	t.Helper()
	promo := &models.Promo{
		Code:          code,
		GuesthouseID:  e.guesthouse.ID,
		DiscountType:  dt,
		DiscountValue: value,
		StartDate:     day(start),
		EndDate:       day(end),
		MaxUsage:      maxUsage,
		IsActive:      true,
	}
	require.NoError(t, e.db.CreatePromo(context.Background(), promo))
	return promo
}

// bookingService returns a service whose clock is fixed at 2025-03-01.
func (e *env) bookingService(locker domain.RoomLocker) *BookingService {
	svc := NewBookingService(e.db, locker, NewPromoService(e.db, e.logger), e.bus, e.notifier, 365, e.logger)
	svc.now = func() time.Time { return day("2025-03-01").Add(9 * time.Hour) }
	return svc
}
