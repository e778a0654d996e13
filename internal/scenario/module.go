package scenario

import (
	"time"

	"trade_engine/internal/guards"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/internal/notify"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("scenario",
		fx.Provide(
			notify.New,
			newPipeline,
			NewService,
		),
	)
}

// newPipeline собирает стандартный пайплайн из конфига. Порядок
// фиксированный: дешёвые проверки времени, потом спред, эквити и в
// конце расчёт допуска.
func newPipeline(cfg *config.Config, gw *gatewayservice.Gateway, market *marketservice.Market) (*guards.Pipeline, error) {
	gc := cfg.Guards

	session, err := guards.NewSessionGuard(gw, guards.SessionConfig{
		Windows:  sessionWindows(gc.SessionWindows),
		Weekdays: weekdays(gc.SessionWeekdays),
		TZ:       gc.SessionTZ,
		Blackout: gc.SessionBlackout,
	})
	if err != nil {
		return nil, err
	}

	rollover, err := guards.NewRolloverGuard(gw, gc.RolloverHHMM, time.Duration(gc.RolloverBufferMin)*time.Minute)
	if err != nil {
		return nil, err
	}

	return guards.NewPipeline(
		session,
		rollover,
		guards.NewSpreadGuard(market, gc.MaxSpreadPips),
		guards.NewEquityGuard(gw, guards.EquityLimits{
			MinEquity:             gc.Equity.MinEquity,
			DailyDrawdownPct:      gc.Equity.DailyDrawdownPct,
			DailyLossMoney:        gc.Equity.DailyLossMoney,
			MaxOpenPositions:      gc.Equity.MaxOpenPositions,
			MaxPositionsPerSymbol: gc.Equity.MaxPositionsPerSymbol,
			RiskPerTradeCap:       gc.Equity.RiskPerTradeCap,
		}),
		guards.NewDeviationGuard(market, guards.DeviationConfig{
			Mode:       gc.Deviation.Mode,
			FixedPips:  pickFixed(gc.Deviation.FixedPips, cfg.DefaultDeviationPips),
			SpreadMult: gc.Deviation.SpreadMult,
			ATRMult:    gc.Deviation.ATRMult,
			ATRPeriod:  gc.Deviation.ATRPeriod,
			ATRBar:     time.Duration(gc.Deviation.ATRBarMin) * time.Minute,
			MinPips:    gc.Deviation.MinPips,
			MaxPips:    gc.Deviation.MaxPips,
		}),
	), nil
}

func sessionWindows(ws []config.ClockWindow) []guards.SessionWindow {
	out := make([]guards.SessionWindow, 0, len(ws))
	for _, w := range ws {
		out = append(out, guards.SessionWindow{From: w.From, To: w.To})
	}
	return out
}

func weekdays(days []int) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d%7))
	}
	return out
}

func pickFixed(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
