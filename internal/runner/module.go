package runner

import (
	"context"

	"trade_engine/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(New),
		fx.Invoke(register),
	)
}

// register запускает autorun после старта приложения в отдельной
// горутине, чтобы не держать fx.OnStart.
func register(lc fx.Lifecycle, r *Runner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := r.RunAll(context.Background()); err != nil {
					logger.Error("autorun finished with error: %v", err)
				}
			}()
			return nil
		},
	})
}
