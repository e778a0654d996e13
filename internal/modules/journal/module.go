package journal

import (
	"context"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/journal/service"
	"trade_engine/pkg/db"
	"trade_engine/pkg/logger"

	"go.uber.org/fx"
)

// Module поднимает журнал поверх postgres, если DSN задан. Без DSN
// отдаёт выключенный журнал, и движок работает без аудита.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*service.Journal, error) {
				if cfg.DB == "" {
					logger.Info("journal disabled: no dsn")
					return service.Disabled(), nil
				}

				pool, err := db.NewPool(context.Background(), db.PoolConfig{DSN: cfg.DB})
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{
					OnStop: func(_ context.Context) error {
						pool.Close()
						return nil
					},
				})
				return service.NewJournal(db.NewPgTxManager(pool)), nil
			},
		),
	)
}
