package models

import (
	"fmt"
	"math"
	"time"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingRefunded},
}

// ParseBookingStatus converts a stored value into a BookingStatus.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingRefunded:
		return st, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for states with no outgoing transitions.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

type Booking struct {
	ID           int64         `json:"id"`
	CustomerID   int64         `json:"customer_id"`
	GuesthouseID int64         `json:"guesthouse_id"`
	RoomID       int64         `json:"room_id"`
	CheckIn      time.Time     `json:"check_in"`
	CheckOut     time.Time     `json:"check_out"`
	Nights       int           `json:"nights"`
	BaseAmount   float64       `json:"base_amount"`
	Discount     float64       `json:"discount"`
	Amount       float64       `json:"amount"`
	PromoCode    string        `json:"promo_code,omitempty"`
	Status       BookingStatus `json:"status"`
	PaidAt       *time.Time    `json:"paid_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Version      int64         `json:"version"`
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Nights returns ceil((checkOut - checkIn) / 1 day).
func Nights(checkIn, checkOut time.Time) int {
	return int(math.Ceil(checkOut.Sub(checkIn).Hours() / 24))
}

// RoundMoney rounds to the currency's smallest unit (2 decimals).
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// Overlaps applies the half-open rule: [a,b) and [c,d) overlap iff a < d && c < b.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}
