package database

import (
	"context"
	"fmt"
	"os"
	"strings"

	"guesthouse/internal/models"

	"gopkg.in/yaml.v2"
)

// Seed is the bootstrap data set loaded into an empty database.
type Seed struct {
	Users       []models.User    `yaml:"users"`
	Guesthouses []SeedGuesthouse `yaml:"guesthouses"`
}

// SeedGuesthouse is a listing with its rooms and promos. Owners are
// referenced by email since ids are assigned on insert.
type SeedGuesthouse struct {
	models.Guesthouse `yaml:",inline"`
	OwnerEmail        string         `yaml:"owner_email"`
	Rooms             []models.Room  `yaml:"rooms"`
	Promos            []models.Promo `yaml:"promos"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed inserts the seed when the users table is empty and reports
// whether anything was written.
func (db *DB) ApplySeed(ctx context.Context, seed *Seed) (bool, error) {
	var users int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if users > 0 {
		db.logger.Info().Int("users", users).Msg("database already populated, skipping seed")
		return false, nil
	}

	owners := make(map[string]int64, len(seed.Users))
	for i := range seed.Users {
		u := seed.Users[i]
		if u.Role == "" {
			u.Role = models.RoleCustomer
		}
		if _, err := models.ParseRole(string(u.Role)); err != nil {
			return false, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		if err := db.CreateUser(ctx, &u); err != nil {
			return false, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		owners[strings.ToLower(strings.TrimSpace(u.Email))] = u.ID
	}

	for i := range seed.Guesthouses {
		entry := seed.Guesthouses[i]
		ownerID, ok := owners[strings.ToLower(strings.TrimSpace(entry.OwnerEmail))]
		if !ok {
			return false, fmt.Errorf("seed guesthouse %q: unknown owner %q", entry.Name, entry.OwnerEmail)
		}

		gh := entry.Guesthouse
		gh.OwnerID = ownerID
		if gh.Status == "" {
			gh.Status = models.GuesthouseApproved
		}
		if _, err := models.ParseGuesthouseStatus(string(gh.Status)); err != nil {
			return false, fmt.Errorf("seed guesthouse %q: %w", gh.Name, err)
		}
		gh.IsActive = true
		if err := db.CreateGuesthouse(ctx, &gh); err != nil {
			return false, fmt.Errorf("seed guesthouse %q: %w", gh.Name, err)
		}

		for j := range entry.Rooms {
			room := entry.Rooms[j]
			room.GuesthouseID = gh.ID
			room.Amenities = models.NormalizeAmenities(room.Amenities)
			room.IsActive = true
			if err := db.CreateRoom(ctx, &room); err != nil {
				return false, fmt.Errorf("seed room %q: %w", room.Name, err)
			}
		}

		for j := range entry.Promos {
			promo := entry.Promos[j]
			promo.GuesthouseID = gh.ID
			promo.IsActive = true
			if err := db.CreatePromo(ctx, &promo); err != nil {
				return false, fmt.Errorf("seed promo %q: %w", promo.Code, err)
			}
		}
	}

	db.logger.Info().Int("users", len(seed.Users)).Int("guesthouses", len(seed.Guesthouses)).Msg("database seeded")
	return true, nil
}
