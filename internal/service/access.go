package service

import (
	"context"
	"fmt"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"

	"github.com/rs/zerolog"
)

// ownedGuesthouse loads the guesthouse and checks that principal may manage it.
func ownedGuesthouse(ctx context.Context, repo domain.GuesthouseRepository, principal domain.Principal, guesthouseID int64) (*models.Guesthouse, error) {
	gh, err := repo.GetGuesthouse(ctx, guesthouseID)
	if err != nil {
		return nil, err
	}
	if principal.IsAdmin() || (principal.Role == models.RoleOwner && gh.OwnerID == principal.UserID) {
		return gh, nil
	}
	return nil, fmt.Errorf("%w: guesthouse %d is not managed by user %d", domain.ErrForbidden, guesthouseID, principal.UserID)
}

func requireAdmin(principal domain.Principal) error {
	if !principal.IsAdmin() {
		return fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	return nil
}

// publishEvent sends an event and logs a failure; events never fail the caller.
func publishEvent(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload interface{}) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
