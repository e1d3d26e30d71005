package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/metrics"
	"guesthouse/internal/models"

	"github.com/rs/zerolog"
)

// EvaluatePromo returns the candidate's amount after the promo discount.
// usage is the number of confirmed bookings that already used the promo.
func EvaluatePromo(promo *models.Promo, candidate *models.Booking, usage int) (float64, error) {
	if !promo.IsActive {
		return 0, fmt.Errorf("%w: %s", domain.ErrPromoInactive, promo.Code)
	}

	checkIn := models.DateOnly(candidate.CheckIn)
	if checkIn.Before(models.DateOnly(promo.StartDate)) || checkIn.After(models.DateOnly(promo.EndDate)) {
		return 0, fmt.Errorf("%w: %s valid %s..%s", domain.ErrPromoExpired, promo.Code,
			promo.StartDate.Format(models.DateLayout), promo.EndDate.Format(models.DateLayout))
	}

	if promo.GuesthouseID != candidate.GuesthouseID {
		return 0, fmt.Errorf("%w: %s", domain.ErrPromoNotApplicable, promo.Code)
	}

	if promo.MaxUsage != nil && usage >= *promo.MaxUsage {
		return 0, fmt.Errorf("%w: %s used %d of %d", domain.ErrPromoUsageExceeded, promo.Code, usage, *promo.MaxUsage)
	}

	amount := candidate.BaseAmount
	switch promo.DiscountType {
	case models.DiscountFlat:
		amount -= promo.DiscountValue
	case models.DiscountPercentage:
		amount *= 1 - promo.DiscountValue/100
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", domain.ErrValidation, promo.DiscountType)
	}
	if amount < 0 {
		amount = 0
	}
	return models.RoundMoney(amount), nil
}

// PromoQuote previews a discount without creating a booking.
type PromoQuote struct {
	Code       string  `json:"code"`
	BaseAmount float64 `json:"base_amount"`
	Discount   float64 `json:"discount"`
	Amount     float64 `json:"amount"`
}

type ApplyPromoRequest struct {
	Code     string
	RoomID   int64
	CheckIn  time.Time
	CheckOut time.Time
}

type PromoService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewPromoService(repo domain.Repository, logger *zerolog.Logger) *PromoService {
	return &PromoService{repo: repo, logger: logger}
}

// Evaluate looks the code up and applies it to the candidate booking.
func (s *PromoService) Evaluate(ctx context.Context, code string, candidate *models.Booking) (float64, *models.Promo, error) {
	promo, err := s.repo.GetPromoByCode(ctx, code)
	if err != nil {
		return 0, nil, err
	}
	amount, err := EvaluatePromo(promo, candidate, promo.UsageCount)
	if err != nil {
		return 0, promo, err
	}
	return amount, promo, nil
}

// Apply quotes the discounted price of a stay.
func (s *PromoService) Apply(ctx context.Context, req ApplyPromoRequest) (*PromoQuote, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: promo code is required", domain.ErrValidation)
	}
	in, out, err := validateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	room, err := s.repo.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	candidate := &models.Booking{
		GuesthouseID: room.GuesthouseID,
		RoomID:       room.ID,
		CheckIn:      in,
		CheckOut:     out,
		Nights:       models.Nights(in, out),
	}
	candidate.BaseAmount = models.RoundMoney(float64(candidate.Nights) * room.PricePerNight)

	amount, promo, err := s.Evaluate(ctx, req.Code, candidate)
	if err != nil {
		metrics.IncPromo(promoOutcome(err))
		return nil, err
	}
	metrics.IncPromo("applied")

	return &PromoQuote{
		Code:       promo.Code,
		BaseAmount: candidate.BaseAmount,
		Discount:   models.RoundMoney(candidate.BaseAmount - amount),
		Amount:     amount,
	}, nil
}

func (s *PromoService) Create(ctx context.Context, principal domain.Principal, promo *models.Promo) error {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	if err := validatePromo(promo); err != nil {
		return err
	}
	if _, err := ownedGuesthouse(ctx, s.repo, principal, promo.GuesthouseID); err != nil {
		return err
	}

	promo.StartDate = models.DateOnly(promo.StartDate)
	promo.EndDate = models.DateOnly(promo.EndDate)
	promo.UsageCount = 0
	promo.IsActive = true
	if err := s.repo.CreatePromo(ctx, promo); err != nil {
		return err
	}

	s.logger.Info().Str("code", promo.Code).Int64("guesthouse_id", promo.GuesthouseID).Msg("Promo created")
	return nil
}

func (s *PromoService) Deactivate(ctx context.Context, principal domain.Principal, code string) error {
	promo, err := s.repo.GetPromoByCode(ctx, code)
	if err != nil {
		return err
	}
	if _, err := ownedGuesthouse(ctx, s.repo, principal, promo.GuesthouseID); err != nil {
		return err
	}
	return s.repo.SetPromoActive(ctx, promo.ID, false)
}

func validatePromo(p *models.Promo) error {
	switch {
	case p.Code == "":
		return fmt.Errorf("%w: promo code is required", domain.ErrValidation)
	case p.GuesthouseID == 0:
		return fmt.Errorf("%w: promo must belong to a guesthouse", domain.ErrValidation)
	case p.DiscountValue <= 0:
		return fmt.Errorf("%w: discount value must be positive", domain.ErrValidation)
	case p.StartDate.IsZero() || p.EndDate.IsZero():
		return fmt.Errorf("%w: promo start and end dates are required", domain.ErrValidation)
	case p.EndDate.Before(p.StartDate):
		return fmt.Errorf("%w: promo ends before it starts", domain.ErrValidation)
	case p.MaxUsage != nil && *p.MaxUsage <= 0:
		return fmt.Errorf("%w: max usage must be positive", domain.ErrValidation)
	}

	if _, err := models.ParseDiscountType(string(p.DiscountType)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if p.DiscountType == models.DiscountPercentage && p.DiscountValue > 100 {
		return fmt.Errorf("%w: percentage discount above 100", domain.ErrValidation)
	}
	return nil
}

func promoOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrPromoNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPromoInactive):
		return "inactive"
	case errors.Is(err, domain.ErrPromoExpired):
		return "expired"
	case errors.Is(err, domain.ErrPromoNotApplicable):
		return "not_applicable"
	case errors.Is(err, domain.ErrPromoUsageExceeded):
		return "usage_exceeded"
	}
	return "error"
}
