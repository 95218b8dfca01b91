package profiles

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
)

func setupProfilesDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Profile{}))
	return conn
}

func TestBuyer(t *testing.T) {
	repo := NewRepository(setupProfilesDB(t))
	svc, err := NewService(repo)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, repo.Create(context.Background(), &models.Profile{
		ID:       id,
		Email:    "pat@initech.example",
		FullName: "Pat Lumbergh",
		Role:     enums.ProfileRoleCustomer,
	}))

	buyer, err := svc.Buyer(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "pat@initech.example", buyer.Email)
	require.Equal(t, "Pat Lumbergh", buyer.FullName)

	missing, err := svc.Buyer(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}
