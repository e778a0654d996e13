package scenario

import (
	"context"

	"trade_engine/internal/guards"
	"trade_engine/internal/models"
)

// MarketOneShot — одиночный вход по рынку с брекетом и опциональными
// воркерами.
func (s *Service) MarketOneShot(ctx context.Context, p EntryParams) (*models.Result, error) {
	cp := &guards.Checkpoint{Symbol: p.Symbol, RiskPct: p.riskPct(s.cfg)}
	if p.Lots > 0 {
		cp.RiskPct = 0 // фиксированный лот, cap-слой не применяется
	}

	res, err := s.pipeline.Run(ctx, cp, func(ctx context.Context, cp *guards.Checkpoint) (*models.Result, error) {
		lots, err := s.resolveLots(ctx, p)
		if err != nil {
			return nil, err
		}

		q, err := s.gw.Quote(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		entry := q.Ask
		if p.Side == models.SideSell {
			entry = q.Bid
		}
		sl, tp, err := s.bracket(ctx, p.Symbol, p.Side, entry, p.StopPips, p.TargetPips)
		if err != nil {
			return nil, err
		}

		ticket, err := s.gw.Submit(ctx, models.OrderRequest{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Kind:          models.OrderMarket,
			Lots:          lots,
			StopLoss:      sl,
			TakeProfit:    tp,
			Comment:       p.Comment,
			Magic:         p.Magic,
			DeviationPips: s.deviation(cp),
		})
		if err != nil {
			return nil, err
		}

		res := &models.Result{Status: models.StatusOK, Ticket: ticket}
		res.WithMeta("lots", lots)
		s.attachWorkers(ctx, ticket, p, res)
		s.notify.Sendf("market %s %s %.2f lots, ticket %d", p.Side, p.Symbol, lots, ticket)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, "market_one_shot", p.Symbol, res), nil
}
