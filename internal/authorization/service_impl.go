package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/zarver/zarver/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSignup   = "signup"
	ObjectQuota    = "quota"
	ObjectAPIKey   = "api_key"
	ObjectAuditLog = "audit_log"
)

const (
	ActionSignupProvision = "signup.provision"

	ActionQuotaView          = "quota.view"
	ActionQuotaGrantPremium  = "quota.grant_premium"
	ActionQuotaRevokePremium = "quota.revoke_premium"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "api_key:") {
		keyID := strings.TrimSpace(strings.TrimPrefix(actor, "api_key:"))
		if keyID == "" {
			return "", "", "api_key", nil, ErrInvalidActor
		}
		role, err := s.roleForAPIKey(ctx, keyID)
		if err != nil {
			return actor, "", "api_key", &keyID, err
		}
		roleName := "role:" + strings.ToLower(role)
		return actor, roleName, "api_key", &keyID, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

// roleForAPIKey reads the role off the key row. A missing or deactivated
// key maps to ErrForbidden rather than a distinct error so callers cannot
// probe which key IDs exist.
func (s *ServiceImpl) roleForAPIKey(ctx context.Context, keyID string) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM api_keys
		 WHERE key_id = ? AND is_active = true
		 LIMIT 1`,
		keyID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	entityID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.denied", "authorization", &entityID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": actorSubject(actorType, actorID),
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	entityID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.granted", "authorization", &entityID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": actorSubject(actorType, actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "api_key":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return "api_key:" + strings.TrimSpace(*actorID)
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionAPIKeyRotate, ActionAPIKeyRevoke:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Billing keys only manage premium status.
		{"role:billing", ObjectQuota, ActionQuotaView},
		{"role:billing", ObjectQuota, ActionQuotaGrantPremium},
		{"role:billing", ObjectQuota, ActionQuotaRevokePremium},

		// Admin keys cover the full internal surface.
		{"role:admin", ObjectSignup, ActionSignupProvision},
		{"role:admin", ObjectQuota, ActionQuotaView},
		{"role:admin", ObjectQuota, ActionQuotaGrantPremium},
		{"role:admin", ObjectQuota, ActionQuotaRevokePremium},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRotate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System covers in-process callers: seeding and test cleanup.
		{"role:system", ObjectSignup, ActionSignupProvision},
		{"role:system", ObjectQuota, ActionQuotaView},
		{"role:system", ObjectQuota, ActionQuotaGrantPremium},
		{"role:system", ObjectQuota, ActionQuotaRevokePremium},
		{"role:system", ObjectAPIKey, ActionAPIKeyView},
		{"role:system", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:system", ObjectAPIKey, ActionAPIKeyRotate},
		{"role:system", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
