package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"trade_engine/internal/automation"
	"trade_engine/internal/guards"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	journalservice "trade_engine/internal/modules/journal/service"
	marketservice "trade_engine/internal/modules/market/service"
	terminalservice "trade_engine/internal/modules/terminal/service"
	"trade_engine/internal/notify"
	"trade_engine/internal/scenario"
	"trade_engine/pkg/logger"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Одноразовая аварийная ликвидация без поднятия всего приложения:
// подключились, закрыли, сняли, напечатали отчёт, вышли.
func main() {
	pflag.String("symbol", "", "limit liquidation to one symbol")
	pflag.Int("magic", 0, "limit liquidation to one magic number")
	pflag.Duration("timeout", 2*time.Minute, "hard deadline for the whole run")
	pflag.Parse()

	v := viper.New()
	_ = v.BindPFlags(pflag.CommandLine)
	v.SetEnvPrefix("KILLSWITCH")
	v.AutomaticEnv()

	if err := run(v); err != nil {
		fmt.Fprintf(os.Stderr, "killswitch: %v\n", err)
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	if err := logger.Init(); err != nil {
		return errors.Wrap(err, "init logger")
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("timeout"))
	defer cancel()

	client := terminalservice.NewClient(cfg)
	defer client.Close()
	if err := client.EnsureConnected(ctx); err != nil {
		return errors.Wrap(err, "connect terminal")
	}

	gw := gatewayservice.NewGateway(cfg, client)
	market := marketservice.NewMarket(cfg, gw)
	auto := automation.NewService(cfg, gw, market, automation.NewRegistry())

	svc := scenario.NewService(cfg, gw, market, auto,
		guards.NewPipeline(), notify.New(cfg), journalservice.Disabled())

	magic := v.GetInt("magic")
	res, err := svc.KillSwitchReview(ctx, models.OrderFilter{
		Symbol:   v.GetString("symbol"),
		Magic:    magic,
		HasMagic: magic != 0,
	})
	if err != nil {
		return errors.Wrap(err, "kill switch")
	}

	fmt.Printf("status: %s\n", res.Status)
	if res.Snapshot != nil {
		fmt.Printf("equity: %.2f, open orders left: %d\n",
			res.Snapshot.Account.Equity, res.Snapshot.OpenOrdersCount)
	}
	for k, val := range res.Meta {
		fmt.Printf("%s: %v\n", k, val)
	}
	return nil
}
