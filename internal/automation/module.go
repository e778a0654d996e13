package automation

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("automation",
		fx.Provide(
			NewRegistry,
			NewService,
		),
		fx.Invoke(func(lc fx.Lifecycle, reg *Registry) {
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					reg.CancelAll()
					return nil
				},
			})
		}),
	)
}
