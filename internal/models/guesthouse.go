package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type GuesthouseStatus string

const (
	GuesthousePending   GuesthouseStatus = "pending"
	GuesthouseApproved  GuesthouseStatus = "approved"
	GuesthouseSuspended GuesthouseStatus = "suspended"
)

var guesthouseTransitions = map[GuesthouseStatus][]GuesthouseStatus{
	GuesthousePending:   {GuesthouseApproved},
	GuesthouseApproved:  {GuesthouseSuspended},
	GuesthouseSuspended: {GuesthouseApproved},
}

func ParseGuesthouseStatus(s string) (GuesthouseStatus, error) {
	switch st := GuesthouseStatus(s); st {
	case GuesthousePending, GuesthouseApproved, GuesthouseSuspended:
		return st, nil
	}
	return "", fmt.Errorf("unknown guesthouse status %q", s)
}

func (s GuesthouseStatus) CanTransitionTo(next GuesthouseStatus) bool {
	for _, allowed := range guesthouseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lng float64 `json:"lng" yaml:"lng"`
	Lat float64 `json:"lat" yaml:"lat"`
}

type Guesthouse struct {
	ID          int64            `json:"id" yaml:"id"`
	OwnerID     int64            `json:"owner_id" yaml:"owner_id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description"`
	Address     string           `json:"address" yaml:"address"`
	City        string           `json:"city" yaml:"city"`
	Country     string           `json:"country" yaml:"country"`
	Location    *GeoPoint        `json:"location,omitempty" yaml:"location"`
	Status      GuesthouseStatus `json:"status" yaml:"status"`
	IsActive    bool             `json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time        `json:"updated_at" yaml:"-"`
}

type Room struct {
	ID            int64     `json:"id" yaml:"id"`
	GuesthouseID  int64     `json:"guesthouse_id" yaml:"guesthouse_id"`
	Name          string    `json:"name" yaml:"name"`
	PricePerNight float64   `json:"price_per_night" yaml:"price_per_night"`
	PricePerWeek  float64   `json:"price_per_week,omitempty" yaml:"price_per_week"`
	PricePerMonth float64   `json:"price_per_month,omitempty" yaml:"price_per_month"`
	Capacity      int       `json:"capacity" yaml:"capacity"`
	Amenities     []string  `json:"amenities" yaml:"amenities"`
	Images        []string  `json:"images" yaml:"images"`
	IsActive      bool      `json:"is_active" yaml:"is_active"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

// NormalizeAmenities lower-cases, trims and de-duplicates the set, sorted.
func NormalizeAmenities(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// HasAmenities reports whether the room offers every requested amenity.
func (r *Room) HasAmenities(required []string) bool {
	have := make(map[string]struct{}, len(r.Amenities))
	for _, a := range r.Amenities {
		have[a] = struct{}{}
	}
	for _, a := range NormalizeAmenities(required) {
		if _, ok := have[a]; !ok {
			return false
		}
	}
	return true
}
