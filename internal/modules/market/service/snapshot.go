package service

import (
	"context"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

// ExposureSummary сводит открытые позиции в нетто-экспозицию по
// символам. Отложки в экспозицию не входят.
func ExposureSummary(orders []models.OrderView) models.Exposure {
	exp := models.Exposure{BySymbol: map[string]models.ExposureBucket{}}
	for _, o := range orders {
		if o.IsPending {
			continue
		}
		b := exp.BySymbol[o.Symbol]
		if o.Side == models.SideBuy {
			b.LotsLong += o.Lots
			b.LotsNet += o.Lots
			exp.Total.LotsLong += o.Lots
			exp.Total.LotsNet += o.Lots
		} else {
			b.LotsShort += o.Lots
			b.LotsNet -= o.Lots
			exp.Total.LotsShort += o.Lots
			exp.Total.LotsNet -= o.Lots
		}
		b.PnL += o.Profit
		exp.Total.PnL += o.Profit
		exp.BySymbol[o.Symbol] = b
	}
	return exp
}

// DiagSnapshot — срез счёта для ручной диагностики и для review после
// kill switch. Спреды собираются по запрошенным символам плюс по всем
// символам открытых позиций; ошибка котировки одного символа снимок
// не роняет.
func (m *Market) DiagSnapshot(ctx context.Context, symbols []string) (*models.Snapshot, error) {
	acc, err := m.gw.AccountSummary(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := m.gw.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	want := map[string]struct{}{}
	for _, s := range symbols {
		want[s] = struct{}{}
	}
	for _, o := range orders {
		want[o.Symbol] = struct{}{}
	}

	spreads := map[string]models.SpreadInfo{}
	for s := range want {
		pips, q, err := m.SpreadPips(ctx, s)
		if err != nil {
			logger.Warn("snapshot: spread unavailable symbol=%s: %v", s, err)
			continue
		}
		spreads[s] = models.SpreadInfo{Bid: q.Bid, Ask: q.Ask, SpreadPips: pips, Time: q.Time}
	}

	return &models.Snapshot{
		GeneratedAt:     time.Now(),
		Account:         acc,
		Exposure:        ExposureSummary(orders),
		OpenOrdersCount: len(orders),
		Spreads:         spreads,
	}, nil
}
