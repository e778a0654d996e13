package market

import (
	"trade_engine/internal/modules/market/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("market",
		fx.Provide(
			service.NewMarket,
		),
	)
}
