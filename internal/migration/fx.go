package migration

import (
	auditdomain "github.com/vylinhq/vylin/internal/audit/domain"
	"github.com/vylinhq/vylin/internal/config"
	quotadomain "github.com/vylinhq/vylin/internal/quota/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations cover postgres deployments; other
		// dialects (local sqlite, mysql) fall back to schema sync.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&quotadomain.UsageRecord{},
				&auditdomain.ChatAuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
