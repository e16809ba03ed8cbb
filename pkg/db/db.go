package db

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"github.com/zarver/zarver/internal/config"
	obslogger "github.com/zarver/zarver/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Module provides the shared *gorm.DB connection.
var Module = fx.Module("db",
	fx.Provide(FromAppConfig),
	fx.Provide(New),
)

// FromAppConfig maps the application configuration onto the database config.
func FromAppConfig(cfg config.Config) Config {
	return Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}

// Params collects the dependencies for New.
type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg Config
	Log *zap.Logger
}

// New opens the database connection, registers the tracing and metrics
// plugins and applies the pool settings.
func New(p Params) (*gorm.DB, error) {
	dialect, err := Dialect(p.Cfg)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialect, &gorm.Config{
		Logger: obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	if err := gormDB.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Cfg.Name))); err != nil {
		return nil, err
	}
	if err := gormDB.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Cfg.Name,
		RefreshInterval: 15,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}

	if p.Cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(p.Cfg.MaxIdleConn)
	}
	if p.Cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(p.Cfg.MaxOpenConn)
	}
	if p.Cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(p.Cfg.ConnMaxLifetime) * time.Second)
	}
	if p.Cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(p.Cfg.ConnMaxIdleTime) * time.Second)
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			p.Log.Info("database connected",
				zap.String("type", p.Cfg.Type),
				zap.String("name", p.Cfg.Name),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Log.Info("closing database connection")
			return sqlDB.Close()
		},
	})

	return gormDB, nil
}
