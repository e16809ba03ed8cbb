package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	"github.com/zarver/zarver/internal/apikey/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (apikeydomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&apikeydomain.APIKey{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, db
}

func TestCreateIssuesSecretOnce(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Role: apikeydomain.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret.APIKey, "zrv_live_key_"))
	assert.True(t, strings.HasPrefix(secret.KeyID, "key_"))

	// Only the hash is stored.
	var stored apikeydomain.APIKey
	require.NoError(t, db.Where("key_id = ?", secret.KeyID).First(&stored).Error)
	assert.NotEqual(t, secret.APIKey, stored.KeyHash)
	assert.Equal(t, apikeydomain.HashAPIKey(secret.APIKey), stored.KeyHash)
	assert.Equal(t, apikeydomain.RoleAdmin, stored.Role)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "ops", keys[0].Name)
	assert.True(t, keys[0].IsActive)
}

func TestCreateValidatesNameAndRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidName)

	_, err = svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Role: apikeydomain.Role("root")})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidRole)

	// Empty role defaults to the least privileged one.
	secret, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "billing-bot"})
	require.NoError(t, err)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, secret.KeyID, keys[0].KeyID)
	assert.Equal(t, apikeydomain.RoleBilling, keys[0].Role)
}

func TestRotateKeepsOldKeyInGrace(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Role: apikeydomain.RoleAdmin})
	require.NoError(t, err)

	second, err := svc.Rotate(ctx, first.KeyID)
	require.NoError(t, err)
	assert.NotEqual(t, first.KeyID, second.KeyID)
	assert.NotEqual(t, first.APIKey, second.APIKey)

	var old apikeydomain.APIKey
	require.NoError(t, db.Where("key_id = ?", first.KeyID).First(&old).Error)
	assert.True(t, old.IsActive)
	require.NotNil(t, old.ExpiresAt)

	var next apikeydomain.APIKey
	require.NoError(t, db.Where("key_id = ?", second.KeyID).First(&next).Error)
	require.NotNil(t, next.RotatedFromKeyID)
	assert.Equal(t, first.KeyID, *next.RotatedFromKeyID)
	assert.Equal(t, apikeydomain.RoleAdmin, next.Role)

	// A rotated-then-revoked key cannot rotate again.
	require.NoError(t, svc.Revoke(ctx, first.KeyID))
	_, err = svc.Rotate(ctx, first.KeyID)
	assert.ErrorIs(t, err, apikeydomain.ErrNotFound)
}

func TestRevokeDeactivatesKey(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Role: apikeydomain.RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, secret.KeyID))

	var stored apikeydomain.APIKey
	require.NoError(t, db.Where("key_id = ?", secret.KeyID).First(&stored).Error)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.ExpiresAt)

	assert.ErrorIs(t, svc.Revoke(ctx, "key_MISSING"), apikeydomain.ErrNotFound)
}
