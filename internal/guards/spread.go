package guards

import (
	"context"

	"trade_engine/internal/models"
	marketservice "trade_engine/internal/modules/market/service"
)

// SpreadGuard блокирует вход при раздутом спреде.
type SpreadGuard struct {
	market  *marketservice.Market
	maxPips float64
}

func NewSpreadGuard(market *marketservice.Market, maxPips float64) *SpreadGuard {
	return &SpreadGuard{market: market, maxPips: maxPips}
}

func (g *SpreadGuard) Name() string { return "spread" }

func (g *SpreadGuard) Check(ctx context.Context, cp *Checkpoint) models.GuardDecision {
	if g.maxPips <= 0 {
		return models.Allow(nil)
	}

	pips, q, err := g.market.SpreadPips(ctx, cp.Symbol)
	if err != nil {
		// Нет котировки — нечего и торговать.
		return models.Block(models.StatusSkippedSpread, "quote unavailable", map[string]any{"error": err.Error()})
	}

	meta := map[string]any{
		"spread_pips": pips,
		"max_pips":    g.maxPips,
		"bid":         q.Bid,
		"ask":         q.Ask,
	}
	if pips > g.maxPips {
		return models.Block(models.StatusSkippedSpread, "spread above limit", meta)
	}
	return models.Allow(meta)
}
