package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	signupdomain "github.com/zarver/zarver/internal/signup/domain"
)

type fakeSignupService struct {
	called  bool
	lastReq signupdomain.Request
}

func (f *fakeSignupService) Signup(ctx context.Context, req signupdomain.Request) (*signupdomain.Result, error) {
	f.called = true
	f.lastReq = req
	_ = ctx
	return &signupdomain.Result{
		UserID: req.UserID,
		Quota: quotadomain.Status{
			QueriesRemaining: 3,
			DailyLimit:       3,
		},
	}, nil
}

func TestSignupHandlerProvisionsQuota(t *testing.T) {
	gin.SetMode(gin.TestMode)

	signupSvc := &fakeSignupService{}
	srv := &Server{signupSvc: signupSvc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/internal/signup", srv.Signup)

	req := httptest.NewRequest(http.MethodPost, "/internal/signup", bytes.NewBufferString(`{"user_id":"1001"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !signupSvc.called {
		t.Fatal("expected signup service to be called")
	}
	if signupSvc.lastReq.UserID != "1001" {
		t.Fatalf("expected user_id 1001, got %q", signupSvc.lastReq.UserID)
	}
	if signupSvc.lastReq.Premium {
		t.Fatal("expected premium to default to false")
	}
}

func TestSignupHandlerRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	signupSvc := &fakeSignupService{}
	srv := &Server{signupSvc: signupSvc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/internal/signup", srv.Signup)

	req := httptest.NewRequest(http.MethodPost, "/internal/signup", bytes.NewBufferString(`{"user_id":`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if signupSvc.called {
		t.Fatal("expected signup service not to be called for a malformed body")
	}
}
