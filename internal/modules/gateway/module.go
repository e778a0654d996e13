package gateway

import (
	"trade_engine/internal/modules/gateway/service"
	terminalservice "trade_engine/internal/modules/terminal/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			func(c *terminalservice.Client) service.Terminal { return c },
			service.NewGateway,
		),
	)
}
