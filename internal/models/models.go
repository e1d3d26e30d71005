package models

import "time"

// AvailabilityInterval is one row of a room's availability ledger.
type AvailabilityInterval struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	BookingID int64     `json:"booking_id"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	Reserved  bool      `json:"reserved"`
	CreatedAt time.Time `json:"created_at"`
}

// DayAvailability is a per-day calendar cell for a room.
type DayAvailability struct {
	Date      time.Time `json:"date"`
	RoomID    int64     `json:"room_id"`
	Available bool      `json:"available"`
	BookingID int64     `json:"booking_id,omitempty"`
}

// RoomResult is a search hit with its parent guesthouse.
type RoomResult struct {
	Room       *Room       `json:"room"`
	Guesthouse *Guesthouse `json:"guesthouse"`
}

// NearbyResult is a guesthouse within the requested radius.
type NearbyResult struct {
	Guesthouse *Guesthouse `json:"guesthouse"`
	DistanceM  float64     `json:"distance_m"`
}

// Notification is a queued message for one recipient.
type Notification struct {
	UserID    int64  `json:"user_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}
