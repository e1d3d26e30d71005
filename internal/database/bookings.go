package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"
)

const bookingColumns = `id, customer_id, guesthouse_id, room_id, check_in, check_out, nights,
	base_amount, discount, amount, promo_code, status, paid_at, created_at, updated_at, version`

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				customer_id, guesthouse_id, room_id, check_in, check_out, nights,
				base_amount, discount, amount, promo_code, status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		booking.CustomerID,
		booking.GuesthouseID,
		booking.RoomID,
		booking.CheckIn.Format(models.DateLayout),
		booking.CheckOut.Format(models.DateLayout),
		booking.Nights,
		booking.BaseAmount,
		booking.Discount,
		booking.Amount,
		booking.PromoCode,
		string(booking.Status),
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) GetCustomerBookings(ctx context.Context, customerID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE customer_id = ? ORDER BY check_in DESC`
	return db.queryBookings(ctx, query, customerID)
}

// GetBookingsByDateRange returns bookings whose check-in falls inside [start, end].
func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE check_in >= ? AND check_in <= ? ORDER BY check_in ASC, id ASC`
	return db.queryBookings(ctx, query, start.Format(models.DateLayout), end.Format(models.DateLayout))
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ConfirmBooking commits the booking's interval into the room ledger, counts
// the promo usage and moves the booking to confirmed, all in one transaction.
// A promo already at max_usage fails the confirmation with
// domain.ErrPromoUsageExceeded and the booking stays pending.
// A booking that is already confirmed is returned untouched.
func (db *DB) ConfirmBooking(ctx context.Context, id int64, paidAt time.Time) (*models.Booking, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBooking(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	switch booking.Status {
	case models.BookingConfirmed:
		return booking, true, nil
	case models.BookingPending:
	default:
		return nil, false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, booking.Status, models.BookingConfirmed)
	}

	if err := commitInterval(ctx, tx, booking.RoomID, booking.ID, booking.CheckIn, booking.CheckOut); err != nil {
		return nil, false, err
	}

	if booking.PromoCode != "" {
		result, err := tx.ExecContext(ctx,
			`UPDATE promos SET usage_count = usage_count + 1
             WHERE code = ? AND (max_usage IS NULL OR usage_count < max_usage)`, booking.PromoCode)
		if err != nil {
			return nil, false, fmt.Errorf("failed to count promo usage: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return nil, false, fmt.Errorf("%w: %s", domain.ErrPromoUsageExceeded, booking.PromoCode)
		}
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, paid_at = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND status = ? AND version = ?`,
		string(models.BookingConfirmed), paidAt, now, id, string(models.BookingPending), booking.Version)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update booking status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, false, ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	booking.Status = models.BookingConfirmed
	booking.PaidAt = &paidAt
	booking.UpdatedAt = now
	booking.Version++
	return booking, false, nil
}

// CancelBooking moves a pending booking at the given version to cancelled.
func (db *DB) CancelBooking(ctx context.Context, id, version int64) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	result, err := db.ExecContext(ctx, query,
		string(models.BookingCancelled), time.Now(), id, version, string(models.BookingPending))
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// RefundBooking moves a confirmed booking to refunded and releases its
// interval back to the room in the same transaction.
func (db *DB) RefundBooking(ctx context.Context, id int64) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(models.BookingRefunded) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, booking.Status, models.BookingRefunded)
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND status = ? AND version = ?`,
		string(models.BookingRefunded), now, id, string(models.BookingConfirmed), booking.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrConcurrentModification
	}

	if err := releaseInterval(ctx, tx, id); err != nil {
		return nil, fmt.Errorf("failed to release interval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	booking.Status = models.BookingRefunded
	booking.UpdatedAt = now
	booking.Version++
	return booking, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var checkIn, checkOut, status string
	var paidAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.GuesthouseID, &b.RoomID, &checkIn, &checkOut, &b.Nights,
		&b.BaseAmount, &b.Discount, &b.Amount, &b.PromoCode, &status, &paidAt,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if b.Status, err = models.ParseBookingStatus(status); err != nil {
		return nil, err
	}
	if b.CheckIn, err = time.Parse(models.DateLayout, checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse booking check-in %s: %w", checkIn, err)
	}
	if b.CheckOut, err = time.Parse(models.DateLayout, checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse booking check-out %s: %w", checkOut, err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		b.PaidAt = &t
	}
	return &b, nil
}
