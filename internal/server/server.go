package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zarver/zarver/internal/apikey"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	"github.com/zarver/zarver/internal/audit"
	auditdomain "github.com/zarver/zarver/internal/audit/domain"
	"github.com/zarver/zarver/internal/authorization"
	"github.com/zarver/zarver/internal/config"
	"github.com/zarver/zarver/internal/decision"
	decisiondomain "github.com/zarver/zarver/internal/decision/domain"
	"github.com/zarver/zarver/internal/generator"
	"github.com/zarver/zarver/internal/observability"
	obsmiddleware "github.com/zarver/zarver/internal/observability/logger"
	obsmetrics "github.com/zarver/zarver/internal/observability/metrics"
	obstracing "github.com/zarver/zarver/internal/observability/tracing"
	"github.com/zarver/zarver/internal/quota"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	"github.com/zarver/zarver/internal/ratelimit"
	"github.com/zarver/zarver/internal/signup"
	signupdomain "github.com/zarver/zarver/internal/signup/domain"
	"github.com/zarver/zarver/internal/stats"
	statsdomain "github.com/zarver/zarver/internal/stats/domain"
	"github.com/zarver/zarver/internal/vote"
	votedomain "github.com/zarver/zarver/internal/vote/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	apikey.Module,
	quota.Module,
	generator.Module,
	decision.Module,
	vote.Module,
	stats.Module,
	signup.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	decisionSvc   decisiondomain.Service
	quotaSvc      quotadomain.Service
	voteSvc       votedomain.Service
	statsSvc      statsdomain.Service
	signupSvc     signupdomain.Service
	apiKeySvc     apikeydomain.Service
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	obsMetrics    *obsmetrics.Metrics
	createLimiter *ratelimit.DecisionCreateLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	DecisionSvc   decisiondomain.Service
	QuotaSvc      quotadomain.Service
	VoteSvc       votedomain.Service
	StatsSvc      statsdomain.Service
	SignupSvc     signupdomain.Service
	APIKeySvc     apikeydomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	ObsMetrics    *obsmetrics.Metrics              `optional:"true"`
	CreateLimiter *ratelimit.DecisionCreateLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		decisionSvc:   p.DecisionSvc,
		quotaSvc:      p.QuotaSvc,
		voteSvc:       p.VoteSvc,
		statsSvc:      p.StatsSvc,
		signupSvc:     p.SignupSvc,
		apiKeySvc:     p.APIKeySvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		obsMetrics:    p.ObsMetrics,
		createLimiter: p.CreateLimiter,
	}

	svc.registerPublicRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.UserRequired())

	// -------- Decisions --------
	v1.POST("/decisions", s.DecisionCreateRateLimit(), s.CreateDecision)
	v1.GET("/decisions", s.ListDecisions)
	v1.GET("/decisions/:id", s.GetDecisionByID)
	v1.POST("/decisions/:id/resolve", s.ResolveDecision)
	v1.POST("/decisions/:id/annotate", s.AnnotateDecision)
	v1.PATCH("/decisions/:id/privacy", s.UpdateDecisionPrivacy)

	// -------- Votes --------
	v1.POST("/decisions/:id/vote", s.CastVote)
	v1.GET("/decisions/:id/votes", s.GetDecisionVotes)

	// -------- Feed --------
	v1.GET("/feed", s.ListPublicFeed)
	v1.GET("/feed/:slug", s.GetFeedItemBySlug)

	// -------- Quota / Stats --------
	v1.GET("/quota", s.GetQuotaStatus)
	v1.GET("/me/stats", s.GetMyStats)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal")

	internal.POST("/signup", s.APIKeyRequired(), s.requireAction(authorization.ObjectSignup, authorization.ActionSignupProvision), s.Signup)

	// -------- Quota administration --------
	internal.GET("/quota/:user_id", s.APIKeyRequired(), s.requireAction(authorization.ObjectQuota, authorization.ActionQuotaView), s.GetUserQuota)
	internal.POST("/quota/:user_id/premium", s.APIKeyRequired(), s.requireAction(authorization.ObjectQuota, authorization.ActionQuotaGrantPremium), s.GrantPremium)
	internal.DELETE("/quota/:user_id/premium", s.APIKeyRequired(), s.requireAction(authorization.ObjectQuota, authorization.ActionQuotaRevokePremium), s.RevokePremium)

	// -------- API keys --------
	internal.GET("/api-keys", s.APIKeyRequired(), s.requireAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	internal.POST("/api-keys", s.APIKeyRequired(), s.requireAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	internal.POST("/api-keys/:key_id/rotate", s.APIKeyRequired(), s.requireAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRotate), s.RotateAPIKey)
	internal.DELETE("/api-keys/:key_id", s.APIKeyRequired(), s.requireAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)

	// -------- Audit trail --------
	internal.GET("/audit-logs", s.APIKeyRequired(), s.requireAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	if s.cfg.Environment != "production" {
		internal.POST("/test/cleanup", s.TestCleanup)
	}
}
