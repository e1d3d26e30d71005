package service

import (
	"context"
	"fmt"
	"strings"

	"guesthouse/internal/domain"
	"guesthouse/internal/events"
	"guesthouse/internal/models"

	"github.com/rs/zerolog"
)

// GuesthouseService runs listing moderation and room management.
type GuesthouseService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewGuesthouseService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *GuesthouseService {
	return &GuesthouseService{repo: repo, eventBus: eventBus, logger: logger}
}

// Submit registers a new listing for moderation. The owner account must be approved.
func (s *GuesthouseService) Submit(ctx context.Context, principal domain.Principal, gh *models.Guesthouse) error {
	if principal.Role != models.RoleOwner {
		return fmt.Errorf("%w: only owners can submit guesthouses", domain.ErrForbidden)
	}
	owner, err := s.repo.GetUserByID(ctx, principal.UserID)
	if err != nil {
		return err
	}
	if !owner.IsApproved {
		return fmt.Errorf("%w: owner %d is not approved yet", domain.ErrForbidden, owner.ID)
	}

	gh.Name = strings.TrimSpace(gh.Name)
	gh.City = strings.TrimSpace(gh.City)
	if err := validateGuesthouse(gh); err != nil {
		return err
	}

	gh.OwnerID = owner.ID
	gh.Status = models.GuesthousePending
	gh.IsActive = true
	if err := s.repo.CreateGuesthouse(ctx, gh); err != nil {
		return err
	}

	s.logger.Info().Int64("guesthouse_id", gh.ID).Int64("owner_id", owner.ID).Msg("Guesthouse submitted")
	return nil
}

func (s *GuesthouseService) Get(ctx context.Context, id int64) (*models.Guesthouse, error) {
	return s.repo.GetGuesthouse(ctx, id)
}

func (s *GuesthouseService) Approve(ctx context.Context, principal domain.Principal, id int64) (*models.Guesthouse, error) {
	return s.transition(ctx, principal, id, models.GuesthouseApproved)
}

func (s *GuesthouseService) Suspend(ctx context.Context, principal domain.Principal, id int64) (*models.Guesthouse, error) {
	return s.transition(ctx, principal, id, models.GuesthouseSuspended)
}

// Reject removes a pending listing together with its rooms. Listings that
// already have bookings are kept.
func (s *GuesthouseService) Reject(ctx context.Context, principal domain.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if err := s.repo.DeletePendingGuesthouse(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("guesthouse_id", id).Int64("admin_id", principal.UserID).Msg("Guesthouse rejected")
	return nil
}

func (s *GuesthouseService) transition(ctx context.Context, principal domain.Principal, id int64, to models.GuesthouseStatus) (*models.Guesthouse, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	gh, err := s.repo.GetGuesthouse(ctx, id)
	if err != nil {
		return nil, err
	}
	if !gh.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, gh.Status, to)
	}
	if err := s.repo.UpdateGuesthouseStatus(ctx, id, gh.Status, to); err != nil {
		return nil, err
	}

	from := gh.Status
	gh.Status = to
	publishEvent(s.eventBus, s.logger, events.EventGuesthouseStatusChanged, events.GuesthouseEventPayload{
		GuesthouseID: id,
		From:         from,
		To:           to,
		ActorID:      principal.UserID,
	})
	s.logger.Info().Int64("guesthouse_id", id).Str("from", string(from)).Str("to", string(to)).Msg("Guesthouse status changed")
	return gh, nil
}

// DisableGuesthouse hides a listing without deleting its history.
func (s *GuesthouseService) DisableGuesthouse(ctx context.Context, principal domain.Principal, id int64) error {
	gh, err := ownedGuesthouse(ctx, s.repo, principal, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetGuesthouseActive(ctx, id, false); err != nil {
		return err
	}
	publishEvent(s.eventBus, s.logger, events.EventGuesthouseStatusChanged, events.GuesthouseEventPayload{
		GuesthouseID: id,
		From:         gh.Status,
		To:           gh.Status,
		ActorID:      principal.UserID,
	})
	return nil
}

func (s *GuesthouseService) AddRoom(ctx context.Context, principal domain.Principal, guesthouseID int64, room *models.Room) error {
	if _, err := ownedGuesthouse(ctx, s.repo, principal, guesthouseID); err != nil {
		return err
	}

	room.Name = strings.TrimSpace(room.Name)
	if err := validateRoom(room); err != nil {
		return err
	}
	room.GuesthouseID = guesthouseID
	room.Amenities = models.NormalizeAmenities(room.Amenities)
	room.IsActive = true
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return err
	}

	publishEvent(s.eventBus, s.logger, events.EventRoomChanged, events.RoomEventPayload{
		RoomID:       room.ID,
		GuesthouseID: guesthouseID,
		IsActive:     true,
	})
	return nil
}

// DisableRoom soft-deletes a room; its bookings and ledger stay intact.
func (s *GuesthouseService) DisableRoom(ctx context.Context, principal domain.Principal, roomID int64) error {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if _, err := ownedGuesthouse(ctx, s.repo, principal, room.GuesthouseID); err != nil {
		return err
	}
	if err := s.repo.SetRoomActive(ctx, roomID, false); err != nil {
		return err
	}

	publishEvent(s.eventBus, s.logger, events.EventRoomChanged, events.RoomEventPayload{
		RoomID:       roomID,
		GuesthouseID: room.GuesthouseID,
	})
	return nil
}

func validateGuesthouse(gh *models.Guesthouse) error {
	switch {
	case gh.Name == "":
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	case gh.City == "":
		return fmt.Errorf("%w: city is required", domain.ErrValidation)
	case strings.TrimSpace(gh.Address) == "":
		return fmt.Errorf("%w: address is required", domain.ErrValidation)
	}
	if loc := gh.Location; loc != nil {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
			return fmt.Errorf("%w: coordinates out of range", domain.ErrValidation)
		}
	}
	return nil
}

func validateRoom(room *models.Room) error {
	switch {
	case room.Name == "":
		return fmt.Errorf("%w: room name is required", domain.ErrValidation)
	case room.PricePerNight <= 0:
		return fmt.Errorf("%w: price per night must be positive", domain.ErrValidation)
	case room.PricePerWeek < 0 || room.PricePerMonth < 0:
		return fmt.Errorf("%w: prices cannot be negative", domain.ErrValidation)
	case room.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive", domain.ErrValidation)
	}
	return nil
}
