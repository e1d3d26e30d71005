package service

import (
	"context"
	"fmt"
	"strings"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewUserService(repo domain.Repository, logger *zerolog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

// Register creates a customer or owner account. Owners wait for an admin.
func (s *UserService) Register(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Name = strings.TrimSpace(user.Name)
	if user.Email == "" || !strings.Contains(user.Email, "@") {
		return fmt.Errorf("%w: valid email is required", domain.ErrValidation)
	}
	if user.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}

	switch user.Role {
	case models.RoleCustomer:
		user.IsApproved = true
	case models.RoleOwner:
		user.IsApproved = false
	case models.RoleAdmin:
		return fmt.Errorf("%w: admin accounts cannot self-register", domain.ErrForbidden)
	default:
		return fmt.Errorf("%w: unknown role %q", domain.ErrValidation, user.Role)
	}

	return s.repo.CreateUser(ctx, user)
}

func (s *UserService) ApproveOwner(ctx context.Context, principal domain.Principal, userID int64) (*models.User, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleOwner {
		return nil, fmt.Errorf("%w: user %d is not an owner", domain.ErrValidation, userID)
	}
	if user.IsApproved {
		return user, nil
	}
	if err := s.repo.ApproveUser(ctx, userID); err != nil {
		return nil, err
	}
	user.IsApproved = true

	s.logger.Info().Int64("user_id", userID).Int64("admin_id", principal.UserID).Msg("Owner approved")
	return user, nil
}

// PendingOwners lists owner accounts awaiting approval.
func (s *UserService) PendingOwners(ctx context.Context, principal domain.Principal) ([]*models.User, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	owners, err := s.repo.ListUsersByRole(ctx, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	pending := make([]*models.User, 0, len(owners))
	for _, u := range owners {
		if !u.IsApproved {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}
