package database

import (
	"context"
	"testing"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromoCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seed(t, db)
	ctx := context.Background()

	maxUsage := 5
	promo := &models.Promo{
		Code:          " summer25 ",
		GuesthouseID:  f.guesthouse.ID,
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 25,
		StartDate:     day("2025-06-01"),
		EndDate:       day("2025-08-31"),
		MaxUsage:      &maxUsage,
		IsActive:      true,
	}
	require.NoError(t, db.CreatePromo(ctx, promo))
	assert.Equal(t, "SUMMER25", promo.Code)

	got, err := db.GetPromoByCode(ctx, "Summer25")
	require.NoError(t, err)
	assert.Equal(t, promo.ID, got.ID)
	assert.Equal(t, models.DiscountPercentage, got.DiscountType)
	assert.Equal(t, day("2025-06-01"), got.StartDate)
	require.NotNil(t, got.MaxUsage)
	assert.Equal(t, 5, *got.MaxUsage)

	dup := *promo
	dup.Code = "summer25"
	err = db.CreatePromo(ctx, &dup)
	assert.ErrorIs(t, err, ErrDuplicatePromo)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = db.GetPromoByCode(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrPromoNotFound)

	require.NoError(t, db.SetPromoActive(ctx, promo.ID, false))
	got, err = db.GetPromoByCode(ctx, "SUMMER25")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	unlimited := &models.Promo{Code: "FOREVER", GuesthouseID: f.guesthouse.ID, DiscountType: models.DiscountFlat,
		DiscountValue: 50, StartDate: day("2025-01-01"), EndDate: day("2030-01-01"), IsActive: true}
	require.NoError(t, db.CreatePromo(ctx, unlimited))
	got, err = db.GetPromoByCode(ctx, "forever")
	require.NoError(t, err)
	assert.Nil(t, got.MaxUsage)
}
