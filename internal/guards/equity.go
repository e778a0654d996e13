package guards

import (
	"context"
	"sync"
	"time"

	"trade_engine/internal/models"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	"trade_engine/pkg/logger"
)

type EquityLimits struct {
	MinEquity        float64 `yaml:"min_equity"`
	DailyDrawdownPct float64 `yaml:"daily_drawdown_pct"`
	DailyLossMoney   float64 `yaml:"daily_loss_money"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	// MaxPositionsPerSymbol считает только позиции по символу сделки.
	MaxPositionsPerSymbol int     `yaml:"max_positions_per_symbol"`
	RiskPerTradeCap       float64 `yaml:"risk_per_trade_cap"` // проценты
}

// EquityGuard — автоматический выключатель по состоянию счёта. Слои
// проверяются строго по порядку, срабатывает первый нарушенный. Слой с
// нулевым лимитом или без данных пропускается, а не блокирует.
type EquityGuard struct {
	gw     *gatewayservice.Gateway
	limits EquityLimits

	mu           sync.Mutex
	baselineDay  string
	baselineEqty float64

	nowFn func() time.Time
}

func NewEquityGuard(gw *gatewayservice.Gateway, limits EquityLimits) *EquityGuard {
	return &EquityGuard{gw: gw, limits: limits, nowFn: time.Now}
}

func (g *EquityGuard) Name() string { return "equity" }

func (g *EquityGuard) Check(ctx context.Context, cp *Checkpoint) models.GuardDecision {
	meta := map[string]any{}

	acc, accErr := g.gw.AccountSummary(ctx)
	if accErr != nil {
		logger.Warn("equity guard: account unavailable: %v", accErr)
		meta["account_skipped"] = accErr.Error()
	} else {
		meta["equity"] = acc.Equity

		// Слой 1: абсолютный минимум эквити.
		if g.limits.MinEquity > 0 && acc.Equity < g.limits.MinEquity {
			meta["min_equity"] = g.limits.MinEquity
			return models.Block(models.StatusBlockedMinEquity, "equity below floor", meta)
		}

		baseline := g.dayBaseline(acc.Equity)
		meta["day_baseline"] = baseline

		// Слой 2: дневная просадка в процентах от утреннего эквити.
		if g.limits.DailyDrawdownPct > 0 && baseline > 0 {
			ddPct := (baseline - acc.Equity) / baseline * 100
			meta["daily_drawdown_pct"] = ddPct
			if ddPct > g.limits.DailyDrawdownPct {
				return models.Block(models.StatusBlockedDailyDrawdown, "daily drawdown limit", meta)
			}
		}

		// Слой 3: дневной убыток в деньгах.
		if g.limits.DailyLossMoney > 0 {
			loss := baseline - acc.Equity
			meta["daily_loss_money"] = loss
			if loss > g.limits.DailyLossMoney {
				return models.Block(models.StatusBlockedDailyLoss, "daily loss limit", meta)
			}
		}
	}

	// Слой 4: лимит открытых позиций, общий и по символу сделки.
	if g.limits.MaxOpenPositions > 0 || (g.limits.MaxPositionsPerSymbol > 0 && cp.Symbol != "") {
		orders, err := g.gw.FindOrders(ctx, models.OrderFilter{State: models.StateOpen})
		if err != nil {
			logger.Warn("equity guard: orders unavailable: %v", err)
			meta["positions_skipped"] = err.Error()
		} else {
			meta["open_positions"] = len(orders)
			if g.limits.MaxOpenPositions > 0 && len(orders) >= g.limits.MaxOpenPositions {
				return models.Block(models.StatusBlockedMaxOpenPositions, "open positions limit", meta)
			}
			if g.limits.MaxPositionsPerSymbol > 0 && cp.Symbol != "" {
				bySymbol := 0
				for _, o := range orders {
					if o.Symbol == cp.Symbol {
						bySymbol++
					}
				}
				meta["open_positions_symbol"] = bySymbol
				if bySymbol >= g.limits.MaxPositionsPerSymbol {
					return models.Block(models.StatusBlockedMaxOpenPositions, "symbol positions limit", meta)
				}
			}
		}
	}

	// Слой 5: потолок риска на одну сделку.
	if g.limits.RiskPerTradeCap > 0 && cp.RiskPct > 0 {
		meta["risk_pct"] = cp.RiskPct
		if cp.RiskPct > g.limits.RiskPerTradeCap {
			return models.Block(models.StatusBlockedRiskPerTradeCap, "risk per trade above cap", meta)
		}
	}

	return models.Allow(meta)
}

// dayBaseline фиксирует эквити первого замера суток и держит его до
// смены даты.
func (g *EquityGuard) dayBaseline(equity float64) float64 {
	day := g.nowFn().Format("2006-01-02")

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.baselineDay != day {
		g.baselineDay = day
		g.baselineEqty = equity
	}
	return g.baselineEqty
}
