package quota

import (
	"github.com/vylinhq/vylin/internal/config"
	"github.com/vylinhq/vylin/internal/quota/service"
	"github.com/vylinhq/vylin/internal/quota/store"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("quota",
	fx.Provide(
		newGormStore,
		store.NewMemoryStore,
		service.NewService,
	),
)

func newGormStore(db *gorm.DB, cfg config.Config) *store.GormStore {
	return store.NewGormStore(db, cfg.StoreTimeout)
}
