package main

import (
	"context"
	"log"

	"trade_engine/internal/automation"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/gateway"
	"trade_engine/internal/modules/journal"
	"trade_engine/internal/modules/market"
	"trade_engine/internal/modules/terminal"
	"trade_engine/internal/runner"
	"trade_engine/internal/scenario"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		terminal.Module(),
		gateway.Module(),
		market.Module(),
		automation.Module(),
		journal.Module(),
		scenario.Module(),
		runner.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if cfg.Jaeger.Host == "" {
				return nil
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: cfg.Jaeger.Host, Port: cfg.Jaeger.Port})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
	_ = app.Stop(context.Background())
}
