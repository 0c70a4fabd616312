package chat

import (
	"github.com/vylinhq/vylin/internal/chat/service"
	"github.com/vylinhq/vylin/internal/providers/llm"
	"github.com/vylinhq/vylin/internal/providers/onchain"
	"github.com/vylinhq/vylin/internal/providers/search"
	"go.uber.org/fx"
)

var Module = fx.Module("chat",
	fx.Provide(
		fx.Annotate(func(c *llm.Client) *llm.Client { return c }, fx.As(new(service.Completer))),
		fx.Annotate(func(c *search.Client) *search.Client { return c }, fx.As(new(service.Searcher))),
		fx.Annotate(func(c *onchain.Client) *onchain.Client { return c }, fx.As(new(service.ChainReader))),
		service.NewService,
	),
)
