package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (db *DB) HasConflict(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	n, err := countOverlaps(ctx, db, roomID, 0, checkIn, checkOut)
	if err != nil {
		return false, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return n > 0, nil
}

// CommitInterval reserves [checkIn, checkOut) for the booking.
func (db *DB) CommitInterval(ctx context.Context, roomID, bookingID int64, checkIn, checkOut time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := commitInterval(ctx, tx, roomID, bookingID, checkIn, checkOut); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) ReleaseInterval(ctx context.Context, bookingID int64) error {
	if err := releaseInterval(ctx, db, bookingID); err != nil {
		return fmt.Errorf("failed to release interval: %w", err)
	}
	return nil
}

func (db *DB) GetLedger(ctx context.Context, roomID int64) ([]*models.AvailabilityInterval, error) {
	query := `SELECT id, room_id, booking_id, check_in, check_out, reserved, created_at
              FROM room_availability WHERE room_id = ? ORDER BY check_in, id`
	rows, err := db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	defer rows.Close()

	var ledger []*models.AvailabilityInterval
	for rows.Next() {
		var iv models.AvailabilityInterval
		var in, out string
		if err := rows.Scan(&iv.ID, &iv.RoomID, &iv.BookingID, &in, &out, &iv.Reserved, &iv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		if iv.CheckIn, err = time.Parse(models.DateLayout, in); err != nil {
			return nil, fmt.Errorf("failed to parse check-in %s: %w", in, err)
		}
		if iv.CheckOut, err = time.Parse(models.DateLayout, out); err != nil {
			return nil, fmt.Errorf("failed to parse check-out %s: %w", out, err)
		}
		ledger = append(ledger, &iv)
	}
	return ledger, rows.Err()
}

// ReservedRoomIDs returns which of roomIDs hold a reservation overlapping the range.
func (db *DB) ReservedRoomIDs(ctx context.Context, roomIDs []int64, checkIn, checkOut time.Time) (map[int64]bool, error) {
	reserved := make(map[int64]bool)
	if len(roomIDs) == 0 {
		return reserved, nil
	}
	query := `SELECT DISTINCT room_id FROM room_availability
              WHERE reserved = 1 AND check_in < ? AND ? < check_out
              AND room_id IN (` + placeholders(len(roomIDs)) + `)`
	args := append([]interface{}{checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout)}, int64Args(roomIDs)...)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reserved rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		reserved[id] = true
	}
	return reserved, rows.Err()
}

// countOverlaps counts reserved intervals on the room overlapping [checkIn, checkOut),
// ignoring those held by excludeBooking.
func countOverlaps(ctx context.Context, q querier, roomID, excludeBooking int64, checkIn, checkOut time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM room_availability
              WHERE room_id = ? AND reserved = 1 AND booking_id != ?
              AND check_in < ? AND ? < check_out`
	var n int
	err := q.QueryRowContext(ctx, query, roomID, excludeBooking,
		checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout)).Scan(&n)
	return n, err
}

// commitInterval is the only writer of reserved ledger rows. Re-committing the
// same interval for the same booking is a no-op.
func commitInterval(ctx context.Context, q querier, roomID, bookingID int64, checkIn, checkOut time.Time) error {
	in, out := checkIn.Format(models.DateLayout), checkOut.Format(models.DateLayout)

	var existing int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_availability
         WHERE room_id = ? AND booking_id = ? AND check_in = ? AND check_out = ? AND reserved = 1`,
		roomID, bookingID, in, out).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to read ledger in tx: %w", err)
	}
	if existing > 0 {
		return nil
	}

	overlaps, err := countOverlaps(ctx, q, roomID, bookingID, checkIn, checkOut)
	if err != nil {
		return fmt.Errorf("failed to check overlaps in tx: %w", err)
	}
	if overlaps > 0 {
		return fmt.Errorf("%w: room %d already reserved for %s..%s", domain.ErrConflict, roomID, in, out)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO room_availability (room_id, booking_id, check_in, check_out, reserved, created_at)
         VALUES (?, ?, ?, ?, 1, ?)`,
		roomID, bookingID, in, out, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert interval: %w", err)
	}
	return nil
}

func releaseInterval(ctx context.Context, q querier, bookingID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE room_availability SET reserved = 0 WHERE booking_id = ? AND reserved = 1`, bookingID)
	return err
}
