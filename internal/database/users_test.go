package database

import (
	"context"
	"testing"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	owner := &models.User{Email: "Owner@Example.com ", Name: "Aishath", Role: models.RoleOwner, TelegramChatID: 42}
	require.NoError(t, db.CreateUser(ctx, owner))
	assert.NotZero(t, owner.ID)

	got, err := db.GetUserByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", got.Email)
	assert.Equal(t, models.RoleOwner, got.Role)
	assert.Equal(t, int64(42), got.TelegramChatID)
	assert.False(t, got.IsApproved)

	require.NoError(t, db.ApproveUser(ctx, owner.ID))
	got, err = db.GetUserByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)

	err = db.CreateUser(ctx, &models.User{Email: "owner@example.com", Name: "Dup", Role: models.RoleCustomer})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	require.NoError(t, db.CreateUser(ctx, &models.User{Email: "c@example.com", Name: "C", Role: models.RoleCustomer}))
	owners, err := db.ListUsersByRole(ctx, models.RoleOwner)
	require.NoError(t, err)
	assert.Len(t, owners, 1)

	_, err = db.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, db.ApproveUser(ctx, 999), domain.ErrNotFound)
}
