package audit

import (
	"github.com/vylinhq/vylin/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(service.NewRecorder),
)
