package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	"gorm.io/gorm"
)

func newAPIKeyAuthServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&apikeydomain.APIKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return &Server{db: db}, db
}

func seedAuthKey(t *testing.T, db *gorm.DB, keyID, secret string, active bool) {
	t.Helper()

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	key := &apikeydomain.APIKey{
		ID:       node.Generate(),
		KeyID:    keyID,
		Name:     "e2e",
		Role:     apikeydomain.RoleAdmin,
		KeyHash:  apikeydomain.HashAPIKey(secret),
		IsActive: active,
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}
}

func TestAPIKeyRequiredAuthenticatesByHash(t *testing.T) {
	gin.SetMode(gin.TestMode)

	srv, db := newAPIKeyAuthServer(t)
	seedAuthKey(t, db, "key_LIVE", "zrv_live_key_LIVE_secret", true)
	seedAuthKey(t, db, "key_DEAD", "zrv_live_key_DEAD_secret", false)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/internal/probe", srv.APIKeyRequired(), func(c *gin.Context) {
		subject, ok := srv.subjectFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "missing subject"})
			return
		}
		c.String(http.StatusOK, subject)
	})

	req := httptest.NewRequest(http.MethodGet, "/internal/probe", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without key, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/probe", nil)
	req.Header.Set(HeaderAPIKey, "zrv_live_key_WRONG_secret")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for unknown key, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/probe", nil)
	req.Header.Set(HeaderAPIKey, "zrv_live_key_DEAD_secret")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for revoked key, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/probe", nil)
	req.Header.Set(HeaderAPIKey, "zrv_live_key_LIVE_secret")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.String() != "api_key:key_LIVE" {
		t.Fatalf("expected subject api_key:key_LIVE, got %q", resp.Body.String())
	}

	var lastUsed struct {
		LastUsedAt *string `gorm:"column:last_used_at"`
	}
	if err := db.Raw(`SELECT last_used_at FROM api_keys WHERE key_id = ?`, "key_LIVE").Scan(&lastUsed).Error; err != nil {
		t.Fatalf("query last_used_at: %v", err)
	}
	if lastUsed.LastUsedAt == nil {
		t.Fatal("expected last_used_at to be stamped after authentication")
	}
}
