package domain

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrRoomUnavailable    = errors.New("room unavailable for requested dates")
	ErrConflict           = errors.New("conflicting reservation")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPromoInactive      = errors.New("promo is inactive")
	ErrPromoExpired       = errors.New("promo is outside its active window")
	ErrPromoNotApplicable = errors.New("promo does not apply to this guesthouse")
	ErrPromoUsageExceeded = errors.New("promo usage limit reached")
	ErrPromoNotFound      = errors.New("promo not found")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
)

// IsPromoError reports whether err only means the discount must be skipped.
func IsPromoError(err error) bool {
	return errors.Is(err, ErrPromoInactive) ||
		errors.Is(err, ErrPromoExpired) ||
		errors.Is(err, ErrPromoNotApplicable) ||
		errors.Is(err, ErrPromoUsageExceeded) ||
		errors.Is(err, ErrPromoNotFound)
}
