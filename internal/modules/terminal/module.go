package terminal

import (
	"context"

	"trade_engine/internal/modules/terminal/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("terminal",
		fx.Provide(
			service.NewClient,
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return c.EnsureConnected(ctx)
				},
				OnStop: func(_ context.Context) error {
					c.Close()
					return nil
				},
			})
		}),
	)
}
