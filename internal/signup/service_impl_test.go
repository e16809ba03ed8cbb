package signup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/zarver/zarver/internal/clock"
	"github.com/zarver/zarver/internal/config"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	quotarepository "github.com/zarver/zarver/internal/quota/repository"
	quotaservice "github.com/zarver/zarver/internal/quota/service"
	"github.com/zarver/zarver/internal/signup/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSignupService(t *testing.T) (domain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&quotadomain.QuotaState{}); err != nil {
		t.Fatalf("failed to migrate quota states: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create id generator: %v", err)
	}

	quotaSvc := quotaservice.New(quotaservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
		Policy: config.NewDecisionPolicyHolderFrom(config.DefaultDecisionPolicy()),
		Repo:   quotarepository.Provide(),
	})

	return NewService(quotaSvc), node
}

func TestSignupProvisionsQuotaRow(t *testing.T) {
	svc, node := newSignupService(t)
	userID := node.Generate().String()

	result, err := svc.Signup(context.Background(), domain.Request{UserID: userID})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if result.UserID != userID {
		t.Fatalf("expected user id %q, got %q", userID, result.UserID)
	}
	if result.Quota.Premium {
		t.Fatalf("expected free plan by default")
	}
	if result.Quota.QueriesRemaining != 3 {
		t.Fatalf("expected 3 remaining queries, got %d", result.Quota.QueriesRemaining)
	}
}

func TestSignupIsIdempotent(t *testing.T) {
	svc, node := newSignupService(t)
	userID := node.Generate().String()

	if _, err := svc.Signup(context.Background(), domain.Request{UserID: userID}); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	result, err := svc.Signup(context.Background(), domain.Request{UserID: userID})
	if err != nil {
		t.Fatalf("repeated signup failed: %v", err)
	}
	if result.Quota.QueriesUsedToday != 0 {
		t.Fatalf("expected untouched counter, got %d", result.Quota.QueriesUsedToday)
	}
}

func TestSignupPremiumGrantsPlan(t *testing.T) {
	svc, node := newSignupService(t)
	userID := node.Generate().String()

	result, err := svc.Signup(context.Background(), domain.Request{UserID: userID, Premium: true})
	if err != nil {
		t.Fatalf("premium signup failed: %v", err)
	}
	if !result.Quota.Premium {
		t.Fatalf("expected premium plan")
	}
}

func TestSignupRejectsInvalidUserID(t *testing.T) {
	svc, _ := newSignupService(t)

	for _, raw := range []string{"", "   ", "not-a-number"} {
		if _, err := svc.Signup(context.Background(), domain.Request{UserID: raw}); err != domain.ErrInvalidRequest {
			t.Fatalf("expected ErrInvalidRequest for %q, got %v", raw, err)
		}
	}
}
