package migration

import (
	"strings"

	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	auditdomain "github.com/zarver/zarver/internal/audit/domain"
	"github.com/zarver/zarver/internal/config"
	decisiondomain "github.com/zarver/zarver/internal/decision/domain"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	"github.com/zarver/zarver/internal/seed"
	statsdomain "github.com/zarver/zarver/internal/stats/domain"
	votedomain "github.com/zarver/zarver/internal/vote/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, policy *config.DecisionPolicyHolder) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite/mysql dev instances skip the versioned history.
			if err := autoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.IsDev() {
			return seed.EnsureDemoData(conn, policy.Get().DailyFreeLimit)
		}
		return nil
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&quotadomain.QuotaState{},
		&decisiondomain.Decision{},
		&votedomain.DecisionVote{},
		&statsdomain.UserDecisionStats{},
		&apikeydomain.APIKey{},
		&auditdomain.AuditLog{},
	)
}
