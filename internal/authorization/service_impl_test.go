package authorization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	auditdomain "github.com/zarver/zarver/internal/audit/domain"
	auditrepository "github.com/zarver/zarver/internal/audit/repository"
	auditservice "github.com/zarver/zarver/internal/audit/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzEnv struct {
	svc      Service
	auditSvc auditdomain.Service
	db       *gorm.DB
	node     *snowflake.Node
}

func newAuthzEnv(t *testing.T) *authzEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&apikeydomain.APIKey{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		AuditSvc: auditSvc,
	})
	return &authzEnv{svc: svc, auditSvc: auditSvc, db: db, node: node}
}

func (e *authzEnv) seedKey(t *testing.T, keyID string, role apikeydomain.Role, active bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, e.db.Create(&apikeydomain.APIKey{
		ID:        e.node.Generate(),
		KeyID:     keyID,
		Name:      keyID,
		Role:      role,
		KeyHash:   "hash-" + keyID,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
}

func TestAuthorizeByRole(t *testing.T) {
	env := newAuthzEnv(t)
	ctx := context.Background()

	env.seedKey(t, "key_ADMIN", apikeydomain.RoleAdmin, true)
	env.seedKey(t, "key_BILL", apikeydomain.RoleBilling, true)

	assert.NoError(t, env.svc.Authorize(ctx, "api_key:key_ADMIN", ObjectAPIKey, ActionAPIKeyCreate))
	assert.NoError(t, env.svc.Authorize(ctx, "api_key:key_ADMIN", ObjectAuditLog, ActionAuditLogView))
	assert.NoError(t, env.svc.Authorize(ctx, "api_key:key_ADMIN", ObjectSignup, ActionSignupProvision))
	assert.NoError(t, env.svc.Authorize(ctx, "api_key:key_ADMIN", ObjectQuota, ActionQuotaGrantPremium))

	assert.NoError(t, env.svc.Authorize(ctx, "api_key:key_BILL", ObjectQuota, ActionQuotaView))
	assert.NoError(t, env.svc.Authorize(ctx, "api_key:key_BILL", ObjectQuota, ActionQuotaGrantPremium))
	assert.NoError(t, env.svc.Authorize(ctx, "api_key:key_BILL", ObjectQuota, ActionQuotaRevokePremium))
	assert.ErrorIs(t, env.svc.Authorize(ctx, "api_key:key_BILL", ObjectAPIKey, ActionAPIKeyView), ErrForbidden)
	assert.ErrorIs(t, env.svc.Authorize(ctx, "api_key:key_BILL", ObjectSignup, ActionSignupProvision), ErrForbidden)
	assert.ErrorIs(t, env.svc.Authorize(ctx, "api_key:key_BILL", ObjectAuditLog, ActionAuditLogView), ErrForbidden)

	assert.NoError(t, env.svc.Authorize(ctx, "system", ObjectSignup, ActionSignupProvision))
	assert.NoError(t, env.svc.Authorize(ctx, "system", ObjectAPIKey, ActionAPIKeyRevoke))
}

func TestAuthorizeValidatesRequest(t *testing.T) {
	env := newAuthzEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.svc.Authorize(ctx, " ", ObjectQuota, ActionQuotaView), ErrInvalidActor)
	assert.ErrorIs(t, env.svc.Authorize(ctx, "user:42", ObjectQuota, ActionQuotaView), ErrInvalidActor)
	assert.ErrorIs(t, env.svc.Authorize(ctx, "api_key:", ObjectQuota, ActionQuotaView), ErrInvalidActor)
	assert.ErrorIs(t, env.svc.Authorize(ctx, "system", "", ActionQuotaView), ErrInvalidObject)
	assert.ErrorIs(t, env.svc.Authorize(ctx, "system", ObjectQuota, " "), ErrInvalidAction)
}

func TestAuthorizeDeniesUnknownOrInactiveKeys(t *testing.T) {
	env := newAuthzEnv(t)
	ctx := context.Background()

	env.seedKey(t, "key_DEAD", apikeydomain.RoleAdmin, false)

	assert.ErrorIs(t, env.svc.Authorize(ctx, "api_key:key_DEAD", ObjectQuota, ActionQuotaView), ErrForbidden)
	assert.ErrorIs(t, env.svc.Authorize(ctx, "api_key:key_MISSING", ObjectQuota, ActionQuotaView), ErrForbidden)
}

func TestAuthorizeWritesAuditTrail(t *testing.T) {
	env := newAuthzEnv(t)
	ctx := context.Background()

	env.seedKey(t, "key_ADMIN", apikeydomain.RoleAdmin, true)
	env.seedKey(t, "key_BILL", apikeydomain.RoleBilling, true)

	require.ErrorIs(t, env.svc.Authorize(ctx, "api_key:key_BILL", ObjectAPIKey, ActionAPIKeyCreate), ErrForbidden)

	denied, err := env.auditSvc.List(ctx, auditdomain.ListAuditLogRequest{Action: "authorization.denied"})
	require.NoError(t, err)
	require.Len(t, denied.AuditLogs, 1)
	entry := denied.AuditLogs[0]
	assert.Equal(t, "api_key", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "key_BILL", *entry.ActorID)
	assert.Equal(t, ActionAPIKeyCreate, entry.Metadata["action"])
	assert.Equal(t, ObjectAPIKey, entry.Metadata["object"])

	// Key rotation is sensitive enough to record the grant as well.
	require.NoError(t, env.svc.Authorize(ctx, "api_key:key_ADMIN", ObjectAPIKey, ActionAPIKeyRotate))
	granted, err := env.auditSvc.List(ctx, auditdomain.ListAuditLogRequest{Action: "authorization.granted"})
	require.NoError(t, err)
	require.Len(t, granted.AuditLogs, 1)
	assert.Equal(t, "api_key:key_ADMIN", granted.AuditLogs[0].Metadata["subject"])
}
