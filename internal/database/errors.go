package database

import (
	"fmt"

	"guesthouse/internal/domain"
)

var (
	// ErrConcurrentModification is returned when a conditional update matched no row.
	ErrConcurrentModification = fmt.Errorf("%w: booking was modified concurrently", domain.ErrConflict)
	ErrDuplicatePromo         = fmt.Errorf("%w: promo code already exists", domain.ErrValidation)
	ErrDuplicateEmail         = fmt.Errorf("%w: email already registered", domain.ErrValidation)
)
