package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"
)

const guesthouseColumns = `id, owner_id, name, description, address, city, country, lng, lat, status, is_active, created_at, updated_at`

func (db *DB) CreateGuesthouse(ctx context.Context, gh *models.Guesthouse) error {
	query := `INSERT INTO guesthouses (
				owner_id, name, description, address, city, country,
				lng, lat, status, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var lng, lat sql.NullFloat64
	if gh.Location != nil {
		lng = sql.NullFloat64{Float64: gh.Location.Lng, Valid: true}
		lat = sql.NullFloat64{Float64: gh.Location.Lat, Valid: true}
	}
	if gh.Status == "" {
		gh.Status = models.GuesthousePending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		gh.OwnerID, gh.Name, gh.Description, gh.Address, gh.City, gh.Country,
		lng, lat, string(gh.Status), gh.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create guesthouse: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	gh.ID = id
	gh.CreatedAt = now
	gh.UpdatedAt = now
	return nil
}

func (db *DB) GetGuesthouse(ctx context.Context, id int64) (*models.Guesthouse, error) {
	query := `SELECT ` + guesthouseColumns + ` FROM guesthouses WHERE id = ?`
	gh, err := scanGuesthouse(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: guesthouse %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guesthouse: %w", err)
	}
	return gh, nil
}

// UpdateGuesthouseStatus moves the guesthouse from one status to another,
// failing with ErrConcurrentModification when the stored status is not from.
func (db *DB) UpdateGuesthouseStatus(ctx context.Context, id int64, from, to models.GuesthouseStatus) error {
	query := `UPDATE guesthouses SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, string(to), time.Now(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update guesthouse status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) SetGuesthouseActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx, `UPDATE guesthouses SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update guesthouse: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: guesthouse %d", domain.ErrNotFound, id)
	}
	return nil
}

// DeletePendingGuesthouse hard-deletes a guesthouse and its rooms. Only a
// still-pending guesthouse without bookings can be removed.
func (db *DB) DeletePendingGuesthouse(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM guesthouses WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: guesthouse %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read guesthouse in tx: %w", err)
	}
	if models.GuesthouseStatus(status) != models.GuesthousePending {
		return fmt.Errorf("%w: only pending guesthouses can be rejected (status %s)", domain.ErrInvalidTransition, status)
	}

	var bookings int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE guesthouse_id = ?`, id).Scan(&bookings); err != nil {
		return fmt.Errorf("failed to count bookings in tx: %w", err)
	}
	if bookings > 0 {
		return fmt.Errorf("%w: guesthouse %d has bookings", domain.ErrConflict, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM promos WHERE guesthouse_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete promos: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE guesthouse_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rooms: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM guesthouses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete guesthouse: %w", err)
	}
	return tx.Commit()
}

// ListApprovedGuesthouses returns active guesthouses in approved status.
func (db *DB) ListApprovedGuesthouses(ctx context.Context) ([]*models.Guesthouse, error) {
	query := `SELECT ` + guesthouseColumns + ` FROM guesthouses
              WHERE status = ? AND is_active = 1 ORDER BY id`
	rows, err := db.QueryContext(ctx, query, string(models.GuesthouseApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to list guesthouses: %w", err)
	}
	defer rows.Close()

	var result []*models.Guesthouse
	for rows.Next() {
		gh, err := scanGuesthouse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guesthouse: %w", err)
		}
		result = append(result, gh)
	}
	return result, rows.Err()
}

func scanGuesthouse(row rowScanner) (*models.Guesthouse, error) {
	var gh models.Guesthouse
	var lng, lat sql.NullFloat64
	var status string
	err := row.Scan(&gh.ID, &gh.OwnerID, &gh.Name, &gh.Description, &gh.Address, &gh.City, &gh.Country,
		&lng, &lat, &status, &gh.IsActive, &gh.CreatedAt, &gh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if gh.Status, err = models.ParseGuesthouseStatus(status); err != nil {
		return nil, err
	}
	if lng.Valid && lat.Valid {
		gh.Location = &models.GeoPoint{Lng: lng.Float64, Lat: lat.Float64}
	}
	return &gh, nil
}

const roomColumns = `id, guesthouse_id, name, price_per_night, price_per_week, price_per_month, capacity, amenities, images, is_active, created_at, updated_at`

func (db *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	room.Amenities = models.NormalizeAmenities(room.Amenities)
	amenities, err := json.Marshal(room.Amenities)
	if err != nil {
		return fmt.Errorf("failed to encode amenities: %w", err)
	}
	if room.Images == nil {
		room.Images = []string{}
	}
	images, err := json.Marshal(room.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	query := `INSERT INTO rooms (
				guesthouse_id, name, price_per_night, price_per_week, price_per_month,
				capacity, amenities, images, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		room.GuesthouseID, room.Name, room.PricePerNight, room.PricePerWeek, room.PricePerMonth,
		room.Capacity, string(amenities), string(images), room.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	room.ID = id
	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`
	room, err := scanRoom(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: room %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (db *DB) SetRoomActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx, `UPDATE rooms SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: room %d", domain.ErrNotFound, id)
	}
	return nil
}

// ListRoomsByGuesthouses returns the active rooms of the given guesthouses.
func (db *DB) ListRoomsByGuesthouses(ctx context.Context, guesthouseIDs []int64) ([]*models.Room, error) {
	if len(guesthouseIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + roomColumns + ` FROM rooms
              WHERE is_active = 1 AND guesthouse_id IN (` + placeholders(len(guesthouseIDs)) + `)
              ORDER BY guesthouse_id, id`
	rows, err := db.QueryContext(ctx, query, int64Args(guesthouseIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var r models.Room
	var amenities, images string
	err := row.Scan(&r.ID, &r.GuesthouseID, &r.Name, &r.PricePerNight, &r.PricePerWeek, &r.PricePerMonth,
		&r.Capacity, &amenities, &images, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(amenities), &r.Amenities); err != nil {
		return nil, fmt.Errorf("decode amenities: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &r.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return &r, nil
}
