package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"guesthouse/internal/config"
	"guesthouse/internal/domain"
	"guesthouse/internal/events"
	"guesthouse/internal/metrics"
	"guesthouse/internal/models"

	"github.com/karlseguin/ccache/v3"
	"github.com/rs/zerolog"
)

// RoomFilter narrows a room search. Zero values mean "no constraint".
type RoomFilter struct {
	City      string
	MinPrice  *float64
	MaxPrice  *float64
	Capacity  int
	Amenities []string
	CheckIn   *time.Time
	CheckOut  *time.Time
}

func (f RoomFilter) validate() error {
	if f.MinPrice != nil && *f.MinPrice < 0 {
		return fmt.Errorf("%w: min price is negative", domain.ErrInvalidQuery)
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		return fmt.Errorf("%w: max price is negative", domain.ErrInvalidQuery)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MaxPrice < *f.MinPrice {
		return fmt.Errorf("%w: max price below min price", domain.ErrInvalidQuery)
	}
	if f.Capacity < 0 {
		return fmt.Errorf("%w: capacity is negative", domain.ErrInvalidQuery)
	}
	if (f.CheckIn == nil) != (f.CheckOut == nil) {
		return fmt.Errorf("%w: check-in and check-out must be given together", domain.ErrInvalidQuery)
	}
	if f.CheckIn != nil && !models.DateOnly(*f.CheckIn).Before(models.DateOnly(*f.CheckOut)) {
		return fmt.Errorf("%w: check-in must be before check-out", domain.ErrInvalidQuery)
	}
	return nil
}

// cacheKey renders the filter in normalised form.
func (f RoomFilter) cacheKey() string {
	var b strings.Builder
	b.WriteString("city=")
	b.WriteString(strings.ToLower(strings.TrimSpace(f.City)))
	if f.MinPrice != nil {
		fmt.Fprintf(&b, "|min=%.2f", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		fmt.Fprintf(&b, "|max=%.2f", *f.MaxPrice)
	}
	fmt.Fprintf(&b, "|cap=%d|am=%s", f.Capacity, strings.Join(models.NormalizeAmenities(f.Amenities), ","))
	if f.CheckIn != nil {
		fmt.Fprintf(&b, "|in=%s|out=%s", f.CheckIn.Format(models.DateLayout), f.CheckOut.Format(models.DateLayout))
	}
	return b.String()
}

type SearchService struct {
	repo   domain.Repository
	cache  *ccache.Cache[[]*models.RoomResult]
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewSearchService(repo domain.Repository, cfg config.SearchConfig, logger *zerolog.Logger) *SearchService {
	s := &SearchService{repo: repo, ttl: cfg.CacheTTL, logger: logger}
	if cfg.CacheEnabled {
		size := cfg.CacheSize
		if size <= 0 {
			size = models.DefaultSearchCacheSize
		}
		if s.ttl <= 0 {
			s.ttl = models.DefaultSearchCacheTTL * time.Second
		}
		s.cache = ccache.New(ccache.Configure[[]*models.RoomResult]().MaxSize(size))
	}
	return s
}

// Subscribe clears cached results whenever rooms or reservations change.
func (s *SearchService) Subscribe(bus *events.EventBus) {
	bus.SubscribeMany(events.CatalogEvents, func(event *events.Event) error {
		s.Invalidate()
		return nil
	})
}

func (s *SearchService) Invalidate() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

func (s *SearchService) Stop() {
	if s.cache != nil {
		s.cache.Stop()
	}
}

// SearchRooms returns active rooms of approved guesthouses matching the filter.
func (s *SearchService) SearchRooms(ctx context.Context, filter RoomFilter) ([]*models.RoomResult, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	key := filter.cacheKey()
	if s.cache != nil {
		if item := s.cache.Get(key); item != nil && !item.Expired() {
			metrics.IncSearchCache(true)
			return item.Value(), nil
		}
		metrics.IncSearchCache(false)
	}

	results, err := s.searchRooms(ctx, filter)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, results, s.ttl)
	}
	return results, nil
}

func (s *SearchService) searchRooms(ctx context.Context, filter RoomFilter) ([]*models.RoomResult, error) {
	guesthouses, err := s.repo.ListApprovedGuesthouses(ctx)
	if err != nil {
		return nil, err
	}

	city := strings.ToLower(strings.TrimSpace(filter.City))
	byID := make(map[int64]*models.Guesthouse, len(guesthouses))
	ids := make([]int64, 0, len(guesthouses))
	for _, gh := range guesthouses {
		if city != "" && !strings.Contains(strings.ToLower(gh.City), city) {
			continue
		}
		byID[gh.ID] = gh
		ids = append(ids, gh.ID)
	}
	results := []*models.RoomResult{}
	if len(ids) == 0 {
		return results, nil
	}

	rooms, err := s.repo.ListRoomsByGuesthouses(ctx, ids)
	if err != nil {
		return nil, err
	}

	minPrice, maxPrice := 0.0, math.Inf(1)
	if filter.MinPrice != nil {
		minPrice = *filter.MinPrice
	}
	if filter.MaxPrice != nil {
		maxPrice = *filter.MaxPrice
	}

	candidates := make([]*models.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.PricePerNight < minPrice || room.PricePerNight > maxPrice {
			continue
		}
		if room.Capacity < filter.Capacity {
			continue
		}
		if !room.HasAmenities(filter.Amenities) {
			continue
		}
		candidates = append(candidates, room)
	}

	var reserved map[int64]bool
	if filter.CheckIn != nil && len(candidates) > 0 {
		roomIDs := make([]int64, len(candidates))
		for i, room := range candidates {
			roomIDs[i] = room.ID
		}
		reserved, err = s.repo.ReservedRoomIDs(ctx, roomIDs, models.DateOnly(*filter.CheckIn), models.DateOnly(*filter.CheckOut))
		if err != nil {
			return nil, err
		}
	}

	for _, room := range candidates {
		if reserved[room.ID] {
			continue
		}
		results = append(results, &models.RoomResult{Room: room, Guesthouse: byID[room.GuesthouseID]})
	}
	return results, nil
}

// SearchNearby returns approved guesthouses within radius metres of the
// point, nearest first. All three parameters are required.
func (s *SearchService) SearchNearby(ctx context.Context, lng, lat, radius *float64) ([]*models.NearbyResult, error) {
	if lng == nil || lat == nil || radius == nil {
		return nil, fmt.Errorf("%w: lng, lat and radius are required", domain.ErrInvalidQuery)
	}
	if *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", domain.ErrInvalidQuery)
	}
	if *radius <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", domain.ErrInvalidQuery)
	}

	guesthouses, err := s.repo.ListApprovedGuesthouses(ctx)
	if err != nil {
		return nil, err
	}

	results := []*models.NearbyResult{}
	for _, gh := range guesthouses {
		if gh.Location == nil {
			continue
		}
		d := haversine(*lat, *lng, gh.Location.Lat, gh.Location.Lng)
		if d <= *radius {
			results = append(results, &models.NearbyResult{Guesthouse: gh, DistanceM: math.Round(d)})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceM < results[j].DistanceM
	})
	return results, nil
}

// haversine returns the great-circle distance in metres.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * models.EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
