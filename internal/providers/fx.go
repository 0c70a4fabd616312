package providers

import (
	"github.com/vylinhq/vylin/internal/providers/llm"
	"github.com/vylinhq/vylin/internal/providers/onchain"
	"github.com/vylinhq/vylin/internal/providers/search"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(
		llm.NewClient,
		search.NewClient,
		onchain.NewClient,
	),
)
